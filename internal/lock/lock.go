// Package lock serializes finalize and close operations across processes
// sharing one database. The store transaction remains the correctness
// boundary; a lock only reduces contention retries.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultTTL = 30 * time.Second

type Locker interface {
	// Acquire returns a release func. It never fails the caller: when the
	// lock is busy or the backend is down it logs and returns a no-op.
	Acquire(ctx context.Context, key string) func()
}

type Noop struct{}

func (Noop) Acquire(_ context.Context, _ string) func() {
	return func() {}
}

type Redis struct {
	locker *redislock.Client
	logger *logrus.Logger
	ttl    time.Duration
	wait   time.Duration
}

func NewRedis(client *redis.Client, logger *logrus.Logger) *Redis {
	return &Redis{
		locker: redislock.New(client),
		logger: logger,
		ttl:    defaultTTL,
		wait:   2 * time.Second,
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) func() {
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), int(r.wait/(50*time.Millisecond))),
	}
	l, err := r.locker.Obtain(ctx, "magazin:lock:"+key, r.ttl, opts)
	if err != nil {
		entry := r.logger.WithField("key", key)
		if errors.Is(err, redislock.ErrNotObtained) {
			entry.Warn("lock busy, continuing without it")
		} else {
			entry.WithError(err).Warn("lock backend unavailable, continuing without it")
		}
		return func() {}
	}
	return func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.logger.WithField("key", key).WithError(err).Warn("lock release failed")
		}
	}
}

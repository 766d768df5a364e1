package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	stockKeyPrefix = "magazin:stock:"
	genKeyPrefix   = "magazin:stock:gen:"
)

// setIfCurrent writes KEYS[1] only while KEYS[2] still holds ARGV[1].
// A missing generation key counts as 0.
var setIfCurrent = redis.NewScript(`
local g = redis.call('GET', KEYS[2])
if g == false then g = '0' end
if g ~= ARGV[1] then return 0 end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

type RedisStockCache struct {
	client *redis.Client
}

func NewRedisStockCache(addr string, password string, db int) *RedisStockCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStockCache{client: client}
}

// NewRedisStockCacheFromClient shares an existing client, for example with
// the lock package.
func NewRedisStockCacheFromClient(client *redis.Client) *RedisStockCache {
	return &RedisStockCache{client: client}
}

func (c *RedisStockCache) Client() *redis.Client {
	return c.client
}

func (c *RedisStockCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisStockCache) Close() error {
	return c.client.Close()
}

func stockKey(productID int64) string {
	return stockKeyPrefix + strconv.FormatInt(productID, 10)
}

func genKey(productID int64) string {
	return genKeyPrefix + strconv.FormatInt(productID, 10)
}

func (c *RedisStockCache) Get(ctx context.Context, productID int64) (int64, bool, error) {
	val, err := c.client.Get(ctx, stockKey(productID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}

func (c *RedisStockCache) Generation(ctx context.Context, productID int64) (int64, error) {
	gen, err := c.client.Get(ctx, genKey(productID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisStockCache) Set(ctx context.Context, productID int64, gen int64, stockBase int64, ttl time.Duration) error {
	keys := []string{stockKey(productID), genKey(productID)}
	err := setIfCurrent.Run(ctx, c.client, keys, gen, stockBase, ttl.Milliseconds()).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// Invalidate bumps each generation before dropping the value, in one
// MULTI block, so a Set racing with it cannot land afterwards.
func (c *RedisStockCache) Invalidate(ctx context.Context, productIDs ...int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range productIDs {
			pipe.Incr(ctx, genKey(id))
			pipe.Del(ctx, stockKey(id))
		}
		return nil
	})
	return err
}

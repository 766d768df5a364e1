package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"magazin/backend/internal/cache"
	"magazin/backend/internal/domain"
	"magazin/backend/internal/lock"
	"magazin/backend/internal/store"
)

var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// Options tunes a Service. Zero values pick the defaults documented on
// each field.
type Options struct {
	Cache    cache.StockCache // NoopStockCache
	CacheTTL time.Duration    // one minute
	Locker   lock.Locker      // lock.Noop
	Logger   *logrus.Logger   // discards below warn
	Now      func() time.Time // time.Now
	// InternalEANPrefix leads internally issued EAN-13 codes ("290").
	InternalEANPrefix string
	DefaultVATRate    *int  // 9
	ExpiryAlertDays   []int // 7, 14, 30
	LowStockThreshold float64
}

type Service struct {
	store      store.Store
	cache      cache.StockCache
	cacheTTL   time.Duration
	locker     lock.Locker
	logger     *logrus.Logger
	validate   *validator.Validate
	now        func() time.Time
	eanPrefix  string
	defaultVAT int
	expiryDays []int
	lowStock   float64
}

func New(st store.Store, opts Options) *Service {
	s := &Service{
		store:      st,
		cache:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
		locker:     opts.Locker,
		logger:     opts.Logger,
		validate:   validator.New(),
		now:        opts.Now,
		eanPrefix:  opts.InternalEANPrefix,
		defaultVAT: 9,
		expiryDays: opts.ExpiryAlertDays,
		lowStock:   opts.LowStockThreshold,
	}
	if s.cache == nil {
		s.cache = cache.NoopStockCache{}
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = time.Minute
	}
	if s.locker == nil {
		s.locker = lock.Noop{}
	}
	if s.logger == nil {
		s.logger = logrus.New()
		s.logger.SetLevel(logrus.WarnLevel)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.eanPrefix == "" {
		s.eanPrefix = "290"
	}
	if opts.DefaultVATRate != nil {
		s.defaultVAT = *opts.DefaultVATRate
	}
	if len(s.expiryDays) == 0 {
		s.expiryDays = []int{7, 14, 30}
	}
	if s.lowStock <= 0 {
		s.lowStock = 5
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// scope is the handle passed to transactional service code. It records
// which products had their stock changed so their cache entries can be
// dropped after commit.
type scope struct {
	store.Tx
	touched map[int64]struct{}
}

func (sc *scope) touch(productIDs ...int64) {
	for _, id := range productIDs {
		sc.touched[id] = struct{}{}
	}
}

// inTx runs fn in a write transaction and retries it once when the store
// reports transient contention.
func (s *Service) inTx(ctx context.Context, op string, fn func(sc *scope) error) error {
	var touched map[int64]struct{}
	run := func() error {
		touched = make(map[int64]struct{})
		return s.store.InTx(ctx, func(tx store.Tx) error {
			return fn(&scope{Tx: tx, touched: touched})
		})
	}

	err := run()
	if errors.Is(err, store.ErrTransientContention) {
		s.logger.WithFields(logrus.Fields{"module": "service", "op": op}).WithError(err).Warn("retrying after contention")
		err = run()
	}
	if err != nil {
		return err
	}

	if len(touched) > 0 {
		ids := make([]int64, 0, len(touched))
		for id := range touched {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		if cerr := s.cache.Invalidate(ctx, ids...); cerr != nil {
			s.logger.WithFields(logrus.Fields{"module": "service", "op": op, "product_ids": ids}).WithError(cerr).Warn("stock cache invalidate failed")
		}
	}
	return nil
}

func (s *Service) view(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.store.View(ctx, fn)
	if errors.Is(err, store.ErrTransientContention) {
		err = s.store.View(ctx, fn)
	}
	return err
}

func (s *Service) log(ctx context.Context, op string, fields logrus.Fields) *logrus.Entry {
	entry := s.logger.WithFields(logrus.Fields{"module": "service", "op": op})
	if actor, ok := ActorFromContext(ctx); ok {
		entry = entry.WithField("actor", actor.Username)
	}
	return entry.WithFields(fields)
}

func (s *Service) validateStruct(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", store.ErrInvalidInput, err.Error())
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, invalid("date %q must be YYYY-MM-DD", raw)
	}
	d = domain.DateUTC(d)
	return &d, nil
}

func (s *Service) today() time.Time {
	return domain.DateUTC(s.clock())
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"magazin/backend/internal/cache"
	"magazin/backend/internal/config"
	"magazin/backend/internal/domain"
	"magazin/backend/internal/httpapi"
	"magazin/backend/internal/lock"
	"magazin/backend/internal/logging"
	"magazin/backend/internal/service"
	"magazin/backend/internal/store"
	"magazin/backend/internal/store/memory"
	pgstore "magazin/backend/internal/store/postgres"
	sqlitestore "magazin/backend/internal/store/sqlite"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)

	repo, err := openStore(ctx, cfg)
	if err != nil {
		logger.WithField("driver", cfg.StoreDriver).Fatalf("store unavailable: %v", err)
	}
	closers = append(closers, repo.Close)
	logger.WithField("driver", cfg.StoreDriver).Info("store ready")

	var stockCache cache.StockCache = cache.NewMemoryStockCache()
	var locker lock.Locker = lock.Noop{}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("redis unavailable (%v), using in-process cache", err)
			_ = client.Close()
		} else {
			stockCache = cache.NewRedisStockCacheFromClient(client)
			locker = lock.NewRedis(client, logger)
			closers = append(closers, client.Close)
			logger.WithField("addr", cfg.RedisAddr).Info("cache: redis")
		}
	} else {
		logger.Info("cache: in-process")
	}

	vat := cfg.DefaultVATRate
	svc := service.New(repo, service.Options{
		Cache:             stockCache,
		CacheTTL:          time.Duration(cfg.StockCacheTTLSeconds) * time.Second,
		Locker:            locker,
		Logger:            logger,
		InternalEANPrefix: cfg.InternalEANPrefix,
		DefaultVATRate:    &vat,
		ExpiryAlertDays:   cfg.ExpiryAlertDays,
		LowStockThreshold: cfg.LowStockThreshold,
	})

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute)
	if err := auth.AddUser("admin", cfg.AdminPassword, domain.RoleAdmin); err != nil {
		logger.Fatalf("admin account: %v", err)
	}
	if err := auth.AddUser("cashier", cfg.CashierPassword, domain.RoleCashier); err != nil {
		logger.Fatalf("cashier account: %v", err)
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("inventory backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "main", "main", "shutdown", nil, err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logging.LogError(logger, "main", "main", "close", nil, err)
		}
	}

	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres driver")
		}
		st, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverSQLite:
		st, err := sqlitestore.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverMemory:
		return memory.NewSeeded(), nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.AdminPassword) < 8 {
		return fmt.Errorf("ADMIN_PASSWORD must be set and at least 8 characters")
	}
	if len(cfg.CashierPassword) < 8 {
		return fmt.Errorf("CASHIER_PASSWORD must be set and at least 8 characters")
	}
	if cfg.AdminPassword == cfg.CashierPassword {
		return fmt.Errorf("ADMIN_PASSWORD and CASHIER_PASSWORD must differ")
	}
	return nil
}


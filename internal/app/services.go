package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-stock/internal/api"
	"github.com/odyssey-erp/odyssey-stock/internal/invoicing"
	"github.com/odyssey-erp/odyssey-stock/internal/jobs"
	"github.com/odyssey-erp/odyssey-stock/internal/observability"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/memstore"
	"github.com/odyssey-erp/odyssey-stock/internal/purchasing"
	"github.com/odyssey-erp/odyssey-stock/internal/sales"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

// runners is implemented by both the Postgres transactor and the in-memory store.
type runners interface {
	StockRunner() stock.TxRunner
	InvoiceRunner() invoicing.TxRunner
	SalesRunner() sales.TxRunner
	PurchasingRunner() purchasing.TxRunner
}

// Services holds the wired domain services and their backends.
type Services struct {
	Stock      *stock.Service
	Invoices   *invoicing.Service
	Sales      *sales.Service
	Purchasing *purchasing.Service
	Facade     *api.Facade

	Pool  *pgxpool.Pool
	Redis *redis.Client
	// Keys is set only when idempotency keys live in Postgres.
	Keys *shared.IdempotencyStore

	closers []func()
}

// BuildServices opens the configured backends and wires every service.
func BuildServices(ctx context.Context, cfg *Config, logger *slog.Logger, metrics *observability.Metrics) (*Services, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{}

	var (
		backend runners
		audit   shared.AuditPort = shared.LogAuditor{Logger: logger}
	)
	switch cfg.StorageDriver {
	case StorageMemory:
		backend = memstore.New()
		logger.Warn("using in-memory storage; state is lost on exit")
	default:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
		if err != nil {
			return nil, err
		}
		s.Pool = pool
		s.closers = append(s.closers, pool.Close)
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				s.Close()
				return nil, fmt.Errorf("app: migrate: %w", err)
			}
		}
		var observer db.RetryObserver
		if metrics != nil {
			observer = metrics
		}
		backend = db.NewTransactor(pool, db.TxOptions{
			MaxRetries:  cfg.TxMaxRetries,
			LockTimeout: cfg.TxLockTimeout,
			Backoff:     cfg.TxBackoff,
			Observer:    observer,
			Logger:      logger,
		})
		audit = shared.NewAuditLogger(pool)
	}

	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.Redis())
		if err != nil {
			logger.Warn("redis unavailable; cache and queue disabled", slog.Any("error", err))
		} else {
			s.Redis = client
			s.closers = append(s.closers, func() { _ = client.Close() })
		}
	}

	stockDeps := stock.ServiceDeps{
		Clock:            shared.SystemClock{},
		Audit:            audit,
		Logger:           logger,
		ReconcileWorkers: cfg.ReconcileWorkers,
	}
	if metrics != nil {
		stockDeps.Metrics = metrics
	}
	if s.Redis != nil {
		stockDeps.Cache = stock.NewAvailabilityCache(s.Redis, cfg.CacheTTL)
	}
	switch {
	case cfg.IdempotencyDriver == "redis" && s.Redis != nil:
		stockDeps.Idempotency = shared.NewRedisIdempotencyStore(s.Redis, cfg.IdempotencyTTL)
	case cfg.IdempotencyDriver == StoragePostgres && s.Pool != nil:
		s.Keys = shared.NewIdempotencyStore(s.Pool)
		stockDeps.Idempotency = s.Keys
	}
	s.Stock = stock.NewService(backend.StockRunner(), stockDeps)

	invoiceDeps := invoicing.ServiceDeps{
		Clock:            shared.SystemClock{},
		PaymentTermsDays: cfg.PaymentTermsDays,
		Audit:            audit,
		Logger:           logger,
	}
	salesDeps := sales.ServiceDeps{
		Ledger:       s.Stock.Ledger(),
		Reservations: s.Stock.Reservations(),
		Clock:        shared.SystemClock{},
		Notifier:     s.Stock,
		Audit:        audit,
		Logger:       logger,
	}
	purchasingDeps := purchasing.ServiceDeps{
		Ledger:   s.Stock.Ledger(),
		Clock:    shared.SystemClock{},
		Notifier: s.Stock,
		Audit:    audit,
		Logger:   logger,
	}
	if metrics != nil {
		invoiceDeps.Metrics = metrics
		salesDeps.Metrics = metrics
		purchasingDeps.Metrics = metrics
	}
	s.Invoices = invoicing.NewService(backend.InvoiceRunner(), invoiceDeps)
	salesDeps.Invoices = s.Invoices.Lifecycle()
	s.Sales = sales.NewService(backend.SalesRunner(), salesDeps)
	s.Purchasing = purchasing.NewService(backend.PurchasingRunner(), purchasingDeps)
	s.Facade = api.NewFacade(s.Stock, s.Sales, s.Invoices, s.Purchasing, logger)
	return s, nil
}

// Jobs returns the background task handlers bound to these services.
func (s *Services) Jobs(cfg *Config, logger *slog.Logger, metrics *jobs.Metrics) *jobs.Jobs {
	j := &jobs.Jobs{
		Stock:        s.Stock,
		Invoices:     s.Invoices,
		Logger:       logger,
		Metrics:      metrics,
		KeyRetention: cfg.IdempotencyTTL,
	}
	if s.Keys != nil {
		j.Keys = s.Keys
	}
	return j
}

// Ready pings the configured backends.
func (s *Services) Ready(r *http.Request) error {
	if s.Pool != nil {
		if err := s.Pool.Ping(r.Context()); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Ping(r.Context()).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases backends in reverse order of acquisition.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

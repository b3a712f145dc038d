package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

// Reconciler checks stock balances.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]stock.Discrepancy, error)
}

// OverdueMarker flags past-due invoices.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// KeyCleaner purges idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Jobs holds the task handlers and their collaborators. A nil collaborator
// turns its handler into a logged no-op.
type Jobs struct {
	Stock        Reconciler
	Invoices     OverdueMarker
	Keys         KeyCleaner
	Logger       *slog.Logger
	Metrics      *Metrics
	KeyRetention time.Duration
}

// Handlers lists the task handlers for the worker mux.
func (j *Jobs) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskStockReconcile, Handler: j.HandleReconcile},
		{Type: TaskInvoiceOverdue, Handler: j.HandleOverdue},
		{Type: TaskIdempotencyCleanup, Handler: j.HandleCleanup},
	}
}

// HandleReconcile runs a ledger reconciliation. Discrepancies are reported,
// not retried.
func (j *Jobs) HandleReconcile(ctx context.Context, t *asynq.Task) (err error) {
	var payload ReconcilePayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	tracker := j.metrics().Track(TaskStockReconcile)
	defer func() { err = tracker.End(err) }()

	logger := j.logger(TaskStockReconcile)
	if j.Stock == nil {
		logger.Warn("reconciler not configured")
		return nil
	}
	found, err := j.Stock.Reconcile(ctx)
	if err != nil {
		logger.Error("reconcile", slog.Any("error", err))
		return err
	}
	level := slog.LevelInfo
	if len(found) > 0 {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "reconcile completed", slog.Int("discrepancies", len(found)), slog.String("requested_by", payload.RequestedBy))
	return nil
}

// HandleOverdue sweeps invoices past due.
func (j *Jobs) HandleOverdue(ctx context.Context, t *asynq.Task) (err error) {
	var payload OverduePayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	tracker := j.metrics().Track(TaskInvoiceOverdue)
	defer func() { err = tracker.End(err) }()

	logger := j.logger(TaskInvoiceOverdue)
	if j.Invoices == nil {
		logger.Warn("invoice service not configured")
		return nil
	}
	n, err := j.Invoices.MarkOverdue(ctx, payload.AsOf)
	if err != nil {
		logger.Error("overdue sweep", slog.Any("error", err))
		return err
	}
	logger.Info("overdue sweep completed", slog.Int("marked", n))
	return nil
}

// HandleCleanup removes idempotency keys past retention.
func (j *Jobs) HandleCleanup(ctx context.Context, t *asynq.Task) (err error) {
	var payload CleanupPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	tracker := j.metrics().Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	logger := j.logger(TaskIdempotencyCleanup)
	if j.Keys == nil {
		logger.Info("no persistent idempotency store, nothing to clean")
		return nil
	}
	retention := payload.OlderThan
	if retention <= 0 {
		retention = j.KeyRetention
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	n, err := j.Keys.Cleanup(ctx, retention)
	if err != nil {
		logger.Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	logger.Info("idempotency cleanup completed", slog.Int64("deleted", n), slog.Duration("retention", retention))
	return nil
}

func decode(t *asynq.Task, target any) error {
	if t == nil {
		return errors.Join(errors.New("jobs: nil task"), asynq.SkipRetry)
	}
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), target); err != nil {
		return errors.Join(err, asynq.SkipRetry)
	}
	return nil
}

func (j *Jobs) logger(job string) *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func (j *Jobs) metrics() *Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return NewMetrics(nil)
}

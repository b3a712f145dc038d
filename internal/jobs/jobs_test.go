package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/jobs"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/memstore"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

type overdueStub struct {
	asOf time.Time
	n    int
	err  error
}

func (s *overdueStub) MarkOverdue(_ context.Context, asOf time.Time) (int, error) {
	s.asOf = asOf
	return s.n, s.err
}

type cleanerStub struct{ olderThan time.Duration }

func (s *cleanerStub) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return 3, nil
}

type enqueuerStub struct {
	tasks []*asynq.Task
	err   error
}

func (e *enqueuerStub) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Queue: jobs.QueueDefault, Type: task.Type()}, nil
}

type inspectorStub struct{}

func (inspectorStub) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: 4, Active: 1}, nil
}

func TestReconcileAgainstLedger(t *testing.T) {
	db := memstore.New()
	svc := stock.NewService(db.StockRunner(), stock.ServiceDeps{})
	_, err := svc.RegisterProduct(context.Background(), stock.RegisterProductInput{SKU: "A", Name: "A", OpeningStock: 10})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := jobs.NewMetrics(reg)
	j := &jobs.Jobs{Stock: svc, Metrics: metrics}

	task, err := jobs.NewReconcileTask("tester")
	require.NoError(t, err)
	require.NoError(t, j.HandleReconcile(context.Background(), task))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsCounter(jobs.TaskStockReconcile, "success")))
}

func TestOverdueSweepPassesDate(t *testing.T) {
	asOf := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	stub := &overdueStub{n: 2}
	reg := prometheus.NewRegistry()
	metrics := jobs.NewMetrics(reg)
	j := &jobs.Jobs{Invoices: stub, Metrics: metrics}

	task, err := jobs.NewOverdueTask(asOf)
	require.NoError(t, err)
	require.NoError(t, j.HandleOverdue(context.Background(), task))
	require.True(t, stub.asOf.Equal(asOf))

	stub.err = errors.New("db down")
	require.Error(t, j.HandleOverdue(context.Background(), task))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsCounter(jobs.TaskInvoiceOverdue, "failure")))
}

func TestCleanupFallsBackToRetention(t *testing.T) {
	cleaner := &cleanerStub{}
	j := &jobs.Jobs{Keys: cleaner, Metrics: jobs.NewMetrics(prometheus.NewRegistry()), KeyRetention: 48 * time.Hour}

	task, err := jobs.NewCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, j.HandleCleanup(context.Background(), task))
	require.Equal(t, 48*time.Hour, cleaner.olderThan)
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	j := &jobs.Jobs{Metrics: jobs.NewMetrics(prometheus.NewRegistry())}
	err := j.HandleOverdue(context.Background(), asynq.NewTask(jobs.TaskInvoiceOverdue, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlersCoverEveryTask(t *testing.T) {
	j := &jobs.Jobs{}
	types := map[string]bool{}
	for _, h := range j.Handlers() {
		types[h.Type] = true
	}
	require.True(t, types[jobs.TaskStockReconcile])
	require.True(t, types[jobs.TaskInvoiceOverdue])
	require.True(t, types[jobs.TaskIdempotencyCleanup])

	cron, err := jobs.DefaultCron(time.Hour)
	require.NoError(t, err)
	require.Len(t, cron, 3)
}

func TestJobsHTTP(t *testing.T) {
	enq := &enqueuerStub{}
	h := jobs.NewHandler(inspectorStub{}, jobs.NewClientWith(enq), nil)
	r := chi.NewRouter()
	h.MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, float64(4), health["pending"])

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reconcile", nil)
	req.Header.Set("X-Actor-ID", "ops")
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, enq.tasks, 1)
	var payload jobs.ReconcilePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, "ops", payload.RequestedBy)

	enq.err = asynq.ErrDuplicateTask
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconcile", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "already queued")
}

func TestReconcileWithoutQueue(t *testing.T) {
	h := jobs.NewHandler(nil, nil, nil)
	r := chi.NewRouter()
	h.MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconcile", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

// Package jobs runs the stock engine's background work on asynq: ledger
// reconciliation, the overdue invoice sweep and idempotency key cleanup.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskStockReconcile compares balances with ledger sums and holds.
	TaskStockReconcile = "stock:reconcile"
	// TaskInvoiceOverdue flags invoices past their due date.
	TaskInvoiceOverdue = "invoicing:overdue"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ReconcilePayload carries who asked for the run.
type ReconcilePayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// OverduePayload optionally pins the sweep date. Zero means now.
type OverduePayload struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// CleanupPayload sets the key retention.
type CleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewReconcileTask constructs a reconciliation task.
func NewReconcileTask(requestedBy string) (*asynq.Task, error) {
	return newTask(TaskStockReconcile, ReconcilePayload{RequestedBy: requestedBy})
}

// NewOverdueTask constructs an overdue sweep task.
func NewOverdueTask(asOf time.Time) (*asynq.Task, error) {
	return newTask(TaskInvoiceOverdue, OverduePayload{AsOf: asOf})
}

// NewCleanupTask constructs an idempotency cleanup task.
func NewCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, CleanupPayload{OlderThan: olderThan})
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}

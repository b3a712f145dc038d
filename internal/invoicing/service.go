package invoicing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Metrics receives status transition counters.
type Metrics interface {
	Transition(entity, from, to string)
}

type noopMetrics struct{}

func (noopMetrics) Transition(string, string, string) {}

// ServiceDeps groups optional collaborators.
type ServiceDeps struct {
	Clock            shared.Clock
	PaymentTermsDays int
	Audit            shared.AuditPort
	Metrics          Metrics
	Logger           *slog.Logger
}

// Service runs invoice operations, one unit of work per call.
type Service struct {
	runner    TxRunner
	lifecycle *Lifecycle
	clock     shared.Clock
	audit     shared.AuditPort
	metrics   Metrics
	logger    *slog.Logger
}

// NewService builds Service.
func NewService(runner TxRunner, deps ServiceDeps) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		runner:    runner,
		lifecycle: NewLifecycle(clock, deps.PaymentTermsDays),
		clock:     clock,
		audit:     deps.Audit,
		metrics:   metrics,
		logger:    logger.With(slog.String("module", "invoicing")),
	}
}

// Lifecycle exposes the tx-scoped lifecycle for the sales order flow.
func (s *Service) Lifecycle() *Lifecycle { return s.lifecycle }

// Get loads an invoice with its items.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	var inv Invoice
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		inv, err = st.GetInvoice(ctx, id)
		return err
	})
	return inv, err
}

// GetBySalesOrder loads the invoice issued for an order.
func (s *Service) GetBySalesOrder(ctx context.Context, salesOrderID int64) (Invoice, error) {
	var inv Invoice
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		inv, err = st.FindBySalesOrder(ctx, salesOrderID)
		return err
	})
	return inv, err
}

// ListPayments lists payments of an invoice.
func (s *Service) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	var payments []Payment
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		if _, err := st.GetInvoice(ctx, invoiceID); err != nil {
			return err
		}
		var err error
		payments, err = st.ListPayments(ctx, invoiceID)
		return err
	})
	return payments, err
}

// Send moves a Draft invoice to Sent.
func (s *Service) Send(ctx context.Context, id int64, actor string) (Invoice, error) {
	return s.transition(ctx, id, actor, "send", func(ctx context.Context, st Store) (Invoice, error) {
		return s.lifecycle.Send(ctx, st, id)
	})
}

// RecordPayment applies a payment.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (Invoice, error) {
	var payment Payment
	inv, err := s.transition(ctx, in.InvoiceID, in.Actor, "payment", func(ctx context.Context, st Store) (Invoice, error) {
		inv, p, err := s.lifecycle.RecordPayment(ctx, st, in)
		payment = p
		return inv, err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.logger.Info("payment recorded",
		slog.String("invoice", inv.Number),
		slog.String("amount", payment.Amount.StringFixed(2)),
		slog.String("balance", inv.BalanceAmount.StringFixed(2)))
	return inv, nil
}

// Cancel cancels an invoice.
func (s *Service) Cancel(ctx context.Context, id int64, reason, actor string) (Invoice, error) {
	return s.transition(ctx, id, actor, "cancel", func(ctx context.Context, st Store) (Invoice, error) {
		return s.lifecycle.Cancel(ctx, st, id, reason)
	})
}

// RequestRefund requests a refund.
func (s *Service) RequestRefund(ctx context.Context, req RefundRequest, actor string) (Invoice, error) {
	return s.transition(ctx, req.InvoiceID, actor, "refund_request", func(ctx context.Context, st Store) (Invoice, error) {
		return s.lifecycle.RequestRefund(ctx, st, req)
	})
}

// ProcessRefund resolves a refund.
func (s *Service) ProcessRefund(ctx context.Context, in ProcessRefundInput, actor string) (Invoice, error) {
	return s.transition(ctx, in.InvoiceID, actor, "refund", func(ctx context.Context, st Store) (Invoice, error) {
		return s.lifecycle.ProcessRefund(ctx, st, in)
	})
}

// UpdateDraft edits a Draft invoice.
func (s *Service) UpdateDraft(ctx context.Context, in DraftUpdate) (Invoice, error) {
	var inv Invoice
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		inv, err = s.lifecycle.UpdateDraft(ctx, st, in)
		return err
	})
	return inv, err
}

// DeleteDraft soft-deletes a Draft invoice.
func (s *Service) DeleteDraft(ctx context.Context, id int64, actor string) error {
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		return s.lifecycle.DeleteDraft(ctx, st, id)
	})
	if err != nil {
		return err
	}
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		Actor: actor, Action: "invoicing:delete", Entity: "invoice", EntityID: fmt.Sprintf("%d", id),
	})
	return nil
}

// MarkOverdue flags invoices past due as of asOf. Zero asOf means now.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	var marked []OverdueMark
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		marked, err = s.lifecycle.MarkOverdue(ctx, st, asOf)
		return err
	})
	if err != nil {
		return 0, err
	}
	for _, m := range marked {
		s.metrics.Transition("invoice", string(m.From), string(StatusOverdue))
		s.logger.Info("invoice overdue", slog.String("invoice", m.Invoice.Number), slog.Time("due_date", m.Invoice.DueDate))
	}
	return len(marked), nil
}

func (s *Service) transition(ctx context.Context, id int64, actor, action string, fn func(context.Context, Store) (Invoice, error)) (Invoice, error) {
	var (
		before Status
		after  Invoice
	)
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		current, err := st.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		before = current.Status
		after, err = fn(ctx, st)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.metrics.Transition("invoice", string(before), string(after.Status))
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		Actor:    actor,
		Action:   "invoicing:" + action,
		Entity:   "invoice",
		EntityID: after.Number,
		Meta: map[string]any{
			"from":    string(before),
			"to":      string(after.Status),
			"paid":    after.PaidAmount.StringFixed(2),
			"balance": after.BalanceAmount.StringFixed(2),
		},
	})
	return after, nil
}

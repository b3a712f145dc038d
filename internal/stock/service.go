package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Metrics receives stock counters after commit.
type Metrics interface {
	MovementRecorded(kind string)
	ReservationRejected()
	LedgerDiscrepancies(n int)
}

type noopMetrics struct{}

func (noopMetrics) MovementRecorded(string) {}
func (noopMetrics) ReservationRejected()    {}
func (noopMetrics) LedgerDiscrepancies(int) {}

// ServiceDeps groups optional collaborators.
type ServiceDeps struct {
	Clock       shared.Clock
	Cache       *AvailabilityCache
	Idempotency shared.IdempotencyPort
	Audit       shared.AuditPort
	Metrics     Metrics
	Logger      *slog.Logger
	// ReconcileWorkers bounds parallel product checks during Reconcile.
	ReconcileWorkers int
}

// Service exposes the stock engine, one unit of work per call.
type Service struct {
	runner       TxRunner
	ledger       *Ledger
	reservations *Reservations
	cache        *AvailabilityCache
	idempotency  shared.IdempotencyPort
	audit        shared.AuditPort
	metrics      Metrics
	logger       *slog.Logger
	workers      int
}

// NewService builds Service.
func NewService(runner TxRunner, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	workers := deps.ReconcileWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Service{
		runner:       runner,
		ledger:       NewLedger(deps.Clock),
		reservations: NewReservations(deps.Clock),
		cache:        deps.Cache,
		idempotency:  deps.Idempotency,
		audit:        deps.Audit,
		metrics:      metrics,
		logger:       logger.With(slog.String("module", "stock")),
		workers:      workers,
	}
}

// Ledger exposes the tx-scoped ledger for lifecycles sharing a unit of work.
func (s *Service) Ledger() *Ledger { return s.ledger }

// Reservations exposes the tx-scoped reservation manager.
func (s *Service) Reservations() *Reservations { return s.reservations }

// RegisterProductInput seeds a product with an opening balance.
type RegisterProductInput struct {
	SKU          string
	Name         string
	OpeningStock int64
	Actor        string
}

// RegisterProduct inserts the product at zero and books the opening balance
// through the ledger so balance and movements agree from the first row.
func (s *Service) RegisterProduct(ctx context.Context, in RegisterProductInput) (Product, error) {
	sku := strings.TrimSpace(in.SKU)
	if sku == "" {
		return Product{}, fmt.Errorf("%w: stock: sku required", shared.ErrValidation)
	}
	if in.OpeningStock < 0 {
		return Product{}, shared.NewInvalidQuantity("opening stock", in.OpeningStock, "must not be negative")
	}
	var product Product
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		id, err := st.InsertProduct(ctx, Product{SKU: sku, Name: strings.TrimSpace(in.Name)})
		if err != nil {
			return err
		}
		if in.OpeningStock > 0 {
			if _, err := s.ledger.RecordMovement(ctx, st, MovementInput{
				ProductID: id,
				Quantity:  in.OpeningStock,
				Kind:      KindStockIn,
				Reference: "OPENING-" + sku,
				Reason:    "opening balance",
				Actor:     in.Actor,
			}); err != nil {
				return err
			}
		}
		product, err = st.GetProduct(ctx, id)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.logger.Info("product registered", slog.Int64("product_id", product.ID), slog.String("sku", product.SKU))
	return product, nil
}

// GetProduct loads a product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	var product Product
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		product, err = st.GetProduct(ctx, id)
		return err
	})
	return product, err
}

// ReserveStock reserves every line or nothing.
func (s *Service) ReserveStock(ctx context.Context, in ReserveInput) ([]Reservation, error) {
	var created []Reservation
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		created, err = s.reservations.Reserve(ctx, st, in)
		return err
	})
	if err != nil {
		var short *shared.InsufficientStockError
		if errors.As(err, &short) {
			s.metrics.ReservationRejected()
		}
		return nil, err
	}
	s.invalidate(ctx, reservationProducts(created)...)
	s.logger.Info("stock reserved", slog.String("reference", in.Reference), slog.Int("lines", len(created)))
	return created, nil
}

// ReleaseStockReservation releases holds of a reference, optionally limited to products.
func (s *Service) ReleaseStockReservation(ctx context.Context, in ReleaseInput) (int, error) {
	var released int
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		released, err = s.reservations.Release(ctx, st, in)
		return err
	})
	if err != nil {
		return 0, err
	}
	if released > 0 {
		s.invalidate(ctx, in.ProductIDs...)
		s.invalidateReference(ctx, in.Reference)
	}
	return released, nil
}

// ReleaseReservation releases one reservation by id.
func (s *Service) ReleaseReservation(ctx context.Context, id int64, actor string) (bool, error) {
	var (
		released bool
		product  int64
	)
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		res, err := st.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		product = res.ProductID
		released, err = s.reservations.ReleaseByID(ctx, st, id, actor)
		return err
	})
	if err != nil {
		return false, err
	}
	if released {
		s.invalidate(ctx, product)
	}
	return released, nil
}

// MovementRequest is the API-facing movement. Quantity may be a magnitude; the kind supplies the sign.
type MovementRequest struct {
	ProductID      int64
	Quantity       int64
	Kind           MovementKind
	Reference      string
	Reason         string
	Actor          string
	AllowNegative  bool
	IdempotencyKey string
}

// ProcessStockMovement records a single movement in its own unit of work.
func (s *Service) ProcessStockMovement(ctx context.Context, req MovementRequest) (Movement, error) {
	in := MovementInput{
		ProductID:     req.ProductID,
		Quantity:      req.Kind.Signed(req.Quantity),
		Kind:          req.Kind,
		Reference:     strings.TrimSpace(req.Reference),
		Reason:        req.Reason,
		Actor:         req.Actor,
		AllowNegative: req.AllowNegative,
	}
	key := ""
	if req.IdempotencyKey != "" && s.idempotency != nil {
		key = uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d:%s", req.IdempotencyKey, req.ProductID, req.Kind))).String()
		if err := s.idempotency.CheckAndInsert(ctx, key, "stock"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Movement{}, &shared.AlreadyProcessedError{Entity: "stock movement", ID: req.IdempotencyKey, Detail: "duplicate idempotency key"}
			}
			return Movement{}, err
		}
	}

	var movement Movement
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		movement, err = s.ledger.RecordMovement(ctx, st, in)
		return err
	})
	if err != nil {
		if key != "" {
			if delErr := s.idempotency.Delete(ctx, key, "stock"); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return Movement{}, err
	}
	s.metrics.MovementRecorded(string(movement.Kind))
	s.invalidate(ctx, movement.ProductID)
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		Actor:    movement.Actor,
		Action:   "stock:" + strings.ToLower(string(movement.Kind)),
		Entity:   "stock_movement",
		EntityID: fmt.Sprintf("%d", movement.ID),
		Meta: map[string]any{
			"product_id":     movement.ProductID,
			"quantity":       movement.Quantity,
			"balance_before": movement.BalanceBefore,
			"balance_after":  movement.BalanceAfter,
			"reference":      movement.Reference,
		},
		At: movement.CreatedAt,
	})
	return movement, nil
}

// GetAvailableStock returns available-to-sell quantity, served from cache when configured.
func (s *Service) GetAvailableStock(ctx context.Context, productID int64) (int64, error) {
	return s.cache.Fetch(ctx, productID, func(ctx context.Context) (int64, error) {
		var available int64
		err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
			var err error
			available, err = AvailableStock(ctx, st, productID)
			return err
		})
		return available, err
	})
}

// GetStockLevel reports on-hand, reserved and available quantities.
func (s *Service) GetStockLevel(ctx context.Context, productID int64) (StockLevel, error) {
	var level StockLevel
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		level, err = Level(ctx, st, productID)
		return err
	})
	return level, err
}

// ListMovements lists ledger rows; hidden rows only with IncludeDeleted.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 200
	}
	var rows []Movement
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		rows, err = st.ListMovements(ctx, filter)
		return err
	})
	return rows, err
}

// ListReservations lists reservations matching filter.
func (s *Service) ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error) {
	var rows []Reservation
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		rows, err = st.ListReservations(ctx, filter)
		return err
	})
	return rows, err
}

// HideMovement soft-deletes a movement for audit views. Balances are untouched.
func (s *Service) HideMovement(ctx context.Context, id int64, actor string) error {
	return s.setMovementDeleted(ctx, id, true, actor)
}

// RestoreMovement reverses HideMovement.
func (s *Service) RestoreMovement(ctx context.Context, id int64, actor string) error {
	return s.setMovementDeleted(ctx, id, false, actor)
}

func (s *Service) setMovementDeleted(ctx context.Context, id int64, deleted bool, actor string) error {
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		movement, err := st.GetMovement(ctx, id)
		if err != nil {
			return err
		}
		if movement.IsDeleted == deleted {
			return nil
		}
		return st.SetMovementDeleted(ctx, id, deleted)
	})
	if err != nil {
		return err
	}
	action := "stock:movement_restore"
	if deleted {
		action = "stock:movement_hide"
	}
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		Actor: actor, Action: action, Entity: "stock_movement", EntityID: fmt.Sprintf("%d", id),
	})
	return nil
}

// Reconcile checks every product's balance against its ledger and holds.
// Products are checked in parallel, each in its own read unit of work.
func (s *Service) Reconcile(ctx context.Context) ([]Discrepancy, error) {
	var ids []int64
	err := s.runner.WithTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		ids, err = st.ListProductIDs(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	results := make([]*Discrepancy, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, id := range ids {
		g.Go(func() error {
			return s.runner.WithTx(gctx, func(ctx context.Context, st Store) error {
				d, ok, err := checkProduct(ctx, st, id)
				if err != nil {
					return fmt.Errorf("stock: reconcile product %d: %w", id, err)
				}
				if ok {
					results[i] = &d
				}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := []Discrepancy{}
	for _, d := range results {
		if d != nil {
			out = append(out, *d)
		}
	}
	s.metrics.LedgerDiscrepancies(len(out))
	for _, d := range out {
		s.logger.Error("stock discrepancy",
			slog.Int64("product_id", d.ProductID),
			slog.Int64("current_stock", d.CurrentStock),
			slog.Int64("ledger_sum", d.LedgerSum),
			slog.Int64("reserved", d.Reserved))
	}
	return out, nil
}

func checkProduct(ctx context.Context, st Store, productID int64) (Discrepancy, bool, error) {
	product, err := st.GetProduct(ctx, productID)
	if err != nil {
		return Discrepancy{}, false, err
	}
	sum, err := st.SumMovements(ctx, productID)
	if err != nil {
		return Discrepancy{}, false, err
	}
	reserved, err := st.SumActiveReserved(ctx, productID, "")
	if err != nil {
		return Discrepancy{}, false, err
	}
	d := Discrepancy{ProductID: productID, SKU: product.SKU, CurrentStock: product.CurrentStock, LedgerSum: sum, Reserved: reserved}
	return d, sum != product.CurrentStock || d.Oversold(), nil
}

// Invalidate drops cached availability for products changed by another module's unit of work.
func (s *Service) Invalidate(ctx context.Context, productIDs ...int64) {
	s.invalidate(ctx, productIDs...)
}

func (s *Service) invalidate(ctx context.Context, productIDs ...int64) {
	if err := s.cache.Invalidate(ctx, productIDs...); err != nil {
		s.logger.Warn("invalidate availability cache", slog.Any("error", err))
	}
}

func (s *Service) invalidateReference(ctx context.Context, reference string) {
	if s.cache == nil {
		return
	}
	rows, err := s.ListReservations(ctx, ReservationFilter{Reference: reference})
	if err != nil {
		s.logger.Warn("list reservations for cache invalidation", slog.Any("error", err))
		return
	}
	s.invalidate(ctx, reservationProducts(rows)...)
}

func reservationProducts(rows []Reservation) []int64 {
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ProductID)
	}
	return ids
}

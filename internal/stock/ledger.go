package stock

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Ledger appends movements and is the only writer of Product.CurrentStock.
// It never opens a transaction; callers pass the unit of work's store.
type Ledger struct {
	clock shared.Clock
}

// NewLedger builds a Ledger.
func NewLedger(clock shared.Clock) *Ledger {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Ledger{clock: clock}
}

// RecordMovement locks the product row, checks the resulting balance, appends
// the movement and writes the new balance back.
func (l *Ledger) RecordMovement(ctx context.Context, st Store, in MovementInput) (Movement, error) {
	if in.ProductID == 0 {
		return Movement{}, ErrProductRequired
	}
	if !in.Kind.Valid() {
		return Movement{}, fmt.Errorf("%w: %q", ErrUnknownKind, in.Kind)
	}
	if err := in.Kind.CheckQuantity(in.Quantity); err != nil {
		return Movement{}, err
	}
	if in.AllowNegative && in.Kind != KindAdjustment {
		return Movement{}, ErrNegativeOnlyForAdjustment
	}

	product, err := st.GetProductForUpdate(ctx, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	before := product.CurrentStock
	after := before + in.Quantity

	if in.Quantity < 0 && !in.AllowNegative {
		if after < 0 {
			return Movement{}, &shared.InsufficientStockError{
				ProductID: product.ID,
				SKU:       product.SKU,
				Requested: -in.Quantity,
				Available: before,
				Context:   movementContext(in.Kind),
			}
		}
		// Holds of other orders must stay covered by what is left on hand.
		reserved, err := st.SumActiveReserved(ctx, product.ID, in.Reference)
		if err != nil {
			return Movement{}, err
		}
		if after < reserved {
			return Movement{}, &shared.InsufficientStockError{
				ProductID: product.ID,
				SKU:       product.SKU,
				Requested: -in.Quantity,
				Available: before - reserved,
				Context:   movementContext(in.Kind),
			}
		}
	}

	now := l.clock.Now()
	movement := Movement{
		ProductID:     product.ID,
		Quantity:      in.Quantity,
		Kind:          in.Kind,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     in.Reference,
		Reason:        strings.TrimSpace(in.Reason),
		Actor:         in.Actor,
		CreatedAt:     now,
	}
	id, err := st.InsertMovement(ctx, movement)
	if err != nil {
		return Movement{}, fmt.Errorf("stock: insert movement: %w", err)
	}
	movement.ID = id
	if err := st.UpdateProductStock(ctx, product.ID, after, now); err != nil {
		return Movement{}, fmt.Errorf("stock: update balance: %w", err)
	}
	return movement, nil
}

func movementContext(kind MovementKind) string {
	switch kind {
	case KindStockOut:
		return "Cannot issue stock"
	case KindDamaged:
		return "Cannot write off damaged stock"
	case KindExpired:
		return "Cannot write off expired stock"
	case KindTransfer:
		return "Cannot transfer stock"
	default:
		return "Cannot adjust stock"
	}
}

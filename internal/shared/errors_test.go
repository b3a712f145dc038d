package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfClassifiesWrappedErrors(t *testing.T) {
	stockErr := &InsufficientStockError{ProductID: 7, SKU: "SKU-7", Requested: 1500, Available: 20, Context: "Cannot ship order", Reserved: true}
	wrapped := fmt.Errorf("sales: ship: %w", stockErr)

	require.Equal(t, KindInsufficientStock, KindOf(wrapped))
	require.Equal(t, "Cannot ship order: insufficient reserved stock for SKU SKU-7: requested 1,500, available 20 (short by 1,480)", stockErr.Error())
	require.Equal(t, int64(1480), stockErr.Shortfall())

	notFound := fmt.Errorf("sales: order %w", ErrNotFound)
	require.Equal(t, KindNotFound, KindOf(notFound))
	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
	require.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestConflictUnwrap(t *testing.T) {
	cause := errors.New("could not serialize access")
	err := fmt.Errorf("stock: reserve: %w", &ConcurrencyConflictError{Cause: cause})
	require.True(t, IsConflict(err))
	require.ErrorIs(t, err, cause)
	require.False(t, IsConflict(cause))
}

func TestResultOfHidesInternalErrors(t *testing.T) {
	ok := ResultOf(int64(70), nil)
	require.True(t, ok.Success)
	require.Equal(t, int64(70), ok.Data)
	require.Nil(t, ok.Error)

	failed := ResultOf(false, &InvalidStatusTransitionError{Entity: "sales order", Current: "Completed", Requested: "Processing"})
	require.False(t, failed.Success)
	require.Equal(t, KindInvalidStatusTransition, failed.Error.Kind)
	require.Equal(t, "cannot move sales order from Completed to Processing", failed.Error.Message)

	internal := Fail[int](errors.New("pq: connection reset"))
	require.Equal(t, KindInternal, internal.Error.Kind)
	require.Equal(t, "internal error", internal.Error.Message)
}

func TestActorPermissions(t *testing.T) {
	actor := Actor{ID: "u-1", Permissions: []string{"purchasing.return.*", "stock.view"}}
	require.True(t, actor.Can("purchasing.return.approve"))
	require.True(t, actor.Can("stock.view"))
	require.False(t, actor.Can("stock.adjust"))
	require.True(t, Actor{Permissions: []string{"*"}}.Can("anything"))
}

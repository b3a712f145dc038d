package stock

import "context"

// AvailableStock is on-hand stock minus active reservations, read from st's snapshot.
func AvailableStock(ctx context.Context, st Store, productID int64) (int64, error) {
	return AvailableStockExcluding(ctx, st, productID, "")
}

// AvailableStockExcluding adds back reservations held under reference so an
// order being edited does not compete with itself.
func AvailableStockExcluding(ctx context.Context, st Store, productID int64, reference string) (int64, error) {
	product, err := st.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	return availableFor(ctx, st, product, reference)
}

func availableFor(ctx context.Context, st Store, product Product, excludeRef string) (int64, error) {
	reserved, err := st.SumActiveReserved(ctx, product.ID, excludeRef)
	if err != nil {
		return 0, err
	}
	return product.CurrentStock - reserved, nil
}

// Level reports on-hand, reserved and available quantities together.
func Level(ctx context.Context, st Store, productID int64) (StockLevel, error) {
	product, err := st.GetProduct(ctx, productID)
	if err != nil {
		return StockLevel{}, err
	}
	reserved, err := st.SumActiveReserved(ctx, productID, "")
	if err != nil {
		return StockLevel{}, err
	}
	return StockLevel{
		ProductID: product.ID,
		SKU:       product.SKU,
		OnHand:    product.CurrentStock,
		Reserved:  reserved,
		Available: product.CurrentStock - reserved,
	}, nil
}

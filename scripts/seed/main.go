package main

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/app"
	"github.com/odyssey-erp/odyssey-stock/internal/purchasing"
	"github.com/odyssey-erp/odyssey-stock/internal/sales"
	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

type seedProduct struct {
	sku     string
	name    string
	opening int64
}

var catalogue = []seedProduct{
	{"WID-001", "Widget", 120},
	{"GAD-002", "Gadget", 40},
	{"BOLT-10", "Hex bolt M10", 2000},
	{"PAN-200", "Mounting panel", 0},
}

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)
	svcs, err := app.BuildServices(ctx, cfg, logger, nil)
	if err != nil {
		log.Fatalf("build services: %v", err)
	}
	defer svcs.Close()

	fmt.Println("→ Seeding products...")
	products := make(map[string]stock.Product, len(catalogue))
	for _, p := range catalogue {
		created, err := svcs.Stock.RegisterProduct(ctx, stock.RegisterProductInput{SKU: p.sku, Name: p.name, OpeningStock: p.opening, Actor: "seed"})
		if err != nil {
			log.Fatalf("register %s: %v", p.sku, err)
		}
		products[p.sku] = created
	}

	fmt.Println("→ Seeding purchasing...")
	po, err := svcs.Purchasing.CreateOrder(ctx, purchasing.CreateOrderInput{
		SupplierID: 1,
		Items: []purchasing.ItemInput{
			{ProductID: products["PAN-200"].ID, Quantity: 25, UnitCost: decimal.RequireFromString("35.50")},
			{ProductID: products["GAD-002"].ID, Quantity: 60, UnitCost: decimal.RequireFromString("21.00")},
		},
		Actor: "seed",
	})
	if err != nil {
		log.Fatalf("create purchase order: %v", err)
	}
	for _, step := range []func(context.Context, int64, string) (purchasing.Order, error){
		svcs.Purchasing.Submit, svcs.Purchasing.Approve, svcs.Purchasing.MarkSent,
	} {
		if po, err = step(ctx, po.ID, "seed"); err != nil {
			log.Fatalf("advance purchase order: %v", err)
		}
	}
	if _, err := svcs.Purchasing.ReceiveItem(ctx, purchasing.ReceiveInput{ItemID: po.Items[0].ID, Quantity: 25, Actor: "seed"}); err != nil {
		log.Fatalf("receive: %v", err)
	}

	fmt.Println("→ Seeding sales...")
	order, err := svcs.Sales.CreateOrder(ctx, sales.CreateOrderInput{
		CustomerID: 100,
		Items: []sales.ItemInput{
			{ProductID: products["WID-001"].ID, Quantity: 10, UnitPrice: decimal.RequireFromString("12.50"), TaxPercent: decimal.NewFromInt(11)},
			{ProductID: products["PAN-200"].ID, Quantity: 5, UnitPrice: decimal.RequireFromString("80.00"), DiscountPercent: decimal.NewFromInt(5)},
		},
		Actor: "seed",
	})
	if err != nil {
		log.Fatalf("create sales order: %v", err)
	}
	if _, err := svcs.Sales.UpdateStatus(ctx, sales.StatusUpdate{OrderID: order.ID, Status: sales.StatusProcessing, Actor: "seed"}); err != nil {
		log.Fatalf("process sales order: %v", err)
	}

	fmt.Println("✓ Seed completed")
}

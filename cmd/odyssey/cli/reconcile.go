// Package cli holds the operator subcommands of the odyssey binary.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/odyssey-erp/odyssey-stock/internal/stock"
)

// Exit codes for the reconcile command.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitDiscrepancy = 10
)

// Reconciler checks ledger consistency.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]stock.Discrepancy, error)
}

// ReconcileOptions defines the flags of the reconcile command.
type ReconcileOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReconcileSummary is the JSON output of reconcile.
type ReconcileSummary struct {
	OK            bool                `json:"ok"`
	Discrepancies []stock.Discrepancy `json:"discrepancies"`
}

// ReconcileCommand runs a reconciliation and prints the outcome. It exits
// with ExitDiscrepancy when any product disagrees with its ledger.
func ReconcileCommand(ctx context.Context, r Reconciler, opts ReconcileOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	found, err := r.Reconcile(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "reconcile: %v\n", err)
		return ExitFailure
	}
	if found == nil {
		found = []stock.Discrepancy{}
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(ReconcileSummary{OK: len(found) == 0, Discrepancies: found}); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile: encode json: %v\n", err)
			return ExitFailure
		}
	} else {
		renderReconcileHuman(opts.Stdout, found)
	}
	if len(found) > 0 {
		return ExitDiscrepancy
	}
	return ExitOK
}

func renderReconcileHuman(w io.Writer, found []stock.Discrepancy) {
	if len(found) == 0 {
		_, _ = fmt.Fprintln(w, "ledger consistent")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PRODUCT\tSKU\tBALANCE\tLEDGER\tRESERVED\tOVERSOLD")
	for _, d := range found {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%t\n", d.ProductID, d.SKU, d.CurrentStock, d.LedgerSum, d.Reserved, d.Oversold())
	}
	_ = tw.Flush()
}

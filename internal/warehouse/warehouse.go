// Package warehouse reads the analysis views that feed the pipelines: PO
// lines pending an accrual decision and the vendor bills recorded against
// them. All reads happen once per batch run; per-item lookups go through the
// in-memory evidence index instead of repeated queries.
package warehouse

import (
	"context"

	"github.com/sells-group/accruals-cli/internal/model"
)

// Client defines the warehouse read operations used by the pipelines.
type Client interface {
	// POLines returns every candidate line from the accrual analysis view.
	// The view is already deduplicated by lookup key.
	POLines(ctx context.Context) ([]model.POLine, error)

	// BillsByPO returns all related bills grouped by PO number, fetched in
	// a single query to avoid per-item fan-out.
	BillsByPO(ctx context.Context) (map[string][]model.Bill, error)

	// ExtractedInvoicesByBill returns previously extracted invoice
	// summaries grouped by bill ID, used as supporting evidence in accrual
	// prompts.
	ExtractedInvoicesByBill(ctx context.Context) (map[string][]model.InvoiceRecord, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	Close() error
}

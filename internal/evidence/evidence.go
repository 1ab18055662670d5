// Package evidence provides the per-run read-only index of supporting data
// for accrual decisions. The index is built once from bulk warehouse queries
// before workers start; lookups during the concurrent stage are pure map
// reads with no I/O.
package evidence

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/accruals-cli/internal/model"
	"github.com/sells-group/accruals-cli/internal/warehouse"
)

// Index holds bills grouped by PO and extracted invoice summaries grouped by
// bill. Missing keys yield empty slices, never errors; a PO with no bills is
// a normal case the decision stage handles with reduced context.
type Index struct {
	billsByPO      map[string][]model.Bill
	invoicesByBill map[string][]model.InvoiceRecord
}

// Build fetches and groups all evidence in two bulk queries. Bill ordering
// within a PO follows the warehouse query (posting period descending), which
// keeps prompt content deterministic between runs.
func Build(ctx context.Context, wh warehouse.Client) (*Index, error) {
	bills, err := wh.BillsByPO(ctx)
	if err != nil {
		return nil, err
	}
	invoices, err := wh.ExtractedInvoicesByBill(ctx)
	if err != nil {
		return nil, err
	}

	zap.L().Info("evidence: index built",
		zap.Int("pos_with_bills", len(bills)),
		zap.Int("bills_with_invoices", len(invoices)),
	)
	return &Index{billsByPO: bills, invoicesByBill: invoices}, nil
}

// NewIndex constructs an index from pre-grouped data, used by tests and by
// callers that already hold the groupings.
func NewIndex(billsByPO map[string][]model.Bill, invoicesByBill map[string][]model.InvoiceRecord) *Index {
	if billsByPO == nil {
		billsByPO = map[string][]model.Bill{}
	}
	if invoicesByBill == nil {
		invoicesByBill = map[string][]model.InvoiceRecord{}
	}
	return &Index{billsByPO: billsByPO, invoicesByBill: invoicesByBill}
}

// BillsFor returns the bills recorded against a PO, possibly empty.
func (ix *Index) BillsFor(poID string) []model.Bill {
	return ix.billsByPO[poID]
}

// InvoicesFor returns extracted invoice summaries for a bill, possibly empty.
func (ix *Index) InvoicesFor(billID string) []model.InvoiceRecord {
	return ix.invoicesByBill[billID]
}

// InvoicesForBills flattens invoice summaries across a set of bills,
// preserving bill order.
func (ix *Index) InvoicesForBills(bills []model.Bill) []model.InvoiceRecord {
	var out []model.InvoiceRecord
	for _, b := range bills {
		out = append(out, ix.invoicesByBill[b.BillID]...)
	}
	return out
}

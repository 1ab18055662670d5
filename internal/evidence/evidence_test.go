package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sells-group/accruals-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestBillsForMissingPOIsEmpty(t *testing.T) {
	ix := NewIndex(nil, nil)

	bills := ix.BillsFor("PO-404")

	assert.Empty(t, bills)
}

func TestInvoicesForBillsFlattensInBillOrder(t *testing.T) {
	ix := NewIndex(
		map[string][]model.Bill{
			"PO-1": {{BillID: "B-2"}, {BillID: "B-1"}},
		},
		map[string][]model.InvoiceRecord{
			"B-1": {{Key: model.InvoiceKey{BillID: "B-1", FileName: "a.pdf"}}},
			"B-2": {{Key: model.InvoiceKey{BillID: "B-2", FileName: "b.pdf"}}},
			"B-3": {{Key: model.InvoiceKey{BillID: "B-3", FileName: "c.pdf"}}},
		},
	)

	invoices := ix.InvoicesForBills(ix.BillsFor("PO-1"))

	assert.Len(t, invoices, 2)
	assert.Equal(t, "B-2", invoices[0].Key.BillID)
	assert.Equal(t, "B-1", invoices[1].Key.BillID)
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceKey is the stable identity of one invoice document. A document is
// uniquely identified by the bill it was attached to plus its file name; the
// pair is the sole dedup key across extraction runs.
type InvoiceKey struct {
	BillID   string `json:"bill_id"`
	FileName string `json:"file_name"`
}

// String renders the key in the "bill|file" form used by the record store.
func (k InvoiceKey) String() string {
	return k.BillID + "|" + k.FileName
}

// InvoiceRecord is the structured data extracted from one invoice document.
// Records are immutable evidence once produced; Outcome distinguishes clean
// extractions from failures and non-invoice documents.
type InvoiceRecord struct {
	Key                InvoiceKey      `json:"key"`
	Outcome            Outcome         `json:"outcome"`
	IsInvoice          bool            `json:"is_invoice"`
	InvoiceNumber      string          `json:"invoice_number"`
	InvoiceDate        *time.Time      `json:"invoice_date,omitempty"`
	ServiceDescription string          `json:"service_description"`
	ServicePeriod      string          `json:"service_period"`
	LineItemsSummary   string          `json:"line_items_summary"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	NetAmount          decimal.Decimal `json:"net_amount"`
	Currency           string          `json:"currency"`
	Confidence         float64         `json:"confidence_score"`
	Tokens             TokenUsage      `json:"tokens"`
	Elapsed            time.Duration   `json:"elapsed"`
	FilePath           string          `json:"file_path"`
	ExtractedAt        time.Time       `json:"extracted_at"`
}

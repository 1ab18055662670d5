package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// POLine is a single purchase-order line pulled from the warehouse analysis
// view. LookupKey is the stable identity used for month-level dedup; it is
// unique per (PO, line) and does not change across runs.
type POLine struct {
	LookupKey           string          `json:"lookup_key"`
	PONumber            string          `json:"po_number"`
	LineID              string          `json:"line_id"`
	VendorName          string          `json:"vendor_name"`
	Requestor           string          `json:"requestor,omitempty"`
	LegalEntity         string          `json:"legal_entity,omitempty"`
	GLAccount           string          `json:"gl_account"`
	Description         string          `json:"description"`
	Memo                string          `json:"memo,omitempty"`
	Currency            string          `json:"currency"`
	Amount              decimal.Decimal `json:"amount"`
	AmountUSD           decimal.Decimal `json:"amount_usd"`
	BilledAmount        decimal.Decimal `json:"billed_amount"`
	RemainingBalance    decimal.Decimal `json:"remaining_balance"`
	RemainingBalanceUSD decimal.Decimal `json:"remaining_balance_usd"`
	DeliveryDate        *time.Time      `json:"delivery_date,omitempty"`
	PrepaidStartDate    *time.Time      `json:"prepaid_start_date,omitempty"`
	PrepaidEndDate      *time.Time      `json:"prepaid_end_date,omitempty"`
}

// GLAccountNumber extracts the numeric account code from a GL account string.
// Warehouse rows format the account as "4550 - Marketing Expense"; the code is
// everything before the first space.
func (p POLine) GLAccountNumber() string {
	for i := 0; i < len(p.GLAccount); i++ {
		if p.GLAccount[i] == ' ' {
			return p.GLAccount[:i]
		}
	}
	return p.GLAccount
}

// LocalToUSDRatio derives the line's own local-to-USD conversion ratio from
// its known amount pairs, preferring the remaining-balance pair because it
// reflects the most recent warehouse revaluation. The second return value is
// false when no ratio can be derived (all local amounts are zero).
func (p POLine) LocalToUSDRatio() (decimal.Decimal, bool) {
	if !p.RemainingBalance.IsZero() && !p.RemainingBalanceUSD.IsZero() {
		return p.RemainingBalanceUSD.Div(p.RemainingBalance), true
	}
	if !p.Amount.IsZero() && !p.AmountUSD.IsZero() {
		return p.AmountUSD.Div(p.Amount), true
	}
	return decimal.Zero, false
}

// Bill is a vendor bill transaction recorded against a PO, fetched from the
// warehouse bills view. Bills are read-only evidence; the pipeline never
// mutates them.
type Bill struct {
	BillID        string          `json:"bill_id"`
	POID          string          `json:"po_id"`
	VendorName    string          `json:"vendor_name"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PostingPeriod string          `json:"posting_period"`
	PaymentStatus string          `json:"payment_status"`
	CreatedDate   time.Time       `json:"created_date"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
}

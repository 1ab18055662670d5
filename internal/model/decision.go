package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outcome classifies the terminal state of processing one work item.
// Downstream consumers branch on this value, never on error types.
type Outcome string

const (
	OutcomeAccrual          Outcome = "accrual"
	OutcomeNoAccrual        Outcome = "no_accrual"
	OutcomeExtracted        Outcome = "extracted"
	OutcomeNotInvoice       Outcome = "not_invoice"
	OutcomeExtractionFailed Outcome = "extraction_failed"
	OutcomeError            Outcome = "error"
)

// Recordable reports whether the outcome belongs in the output artifact.
// Not-an-invoice exclusions are dropped entirely; they must not occupy a row.
func (o Outcome) Recordable() bool {
	return o != OutcomeNotInvoice
}

// TokenUsage accumulates AI token consumption for a decision or a whole run.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Add accumulates another usage into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Decision is the result of analyzing one PO line for accrual need.
// AmountLocal and AmountUSD are always set on terminal success: zero when no
// accrual is needed, never left undefined.
type Decision struct {
	LookupKey     string          `json:"lookup_key"`
	PONumber      string          `json:"po_number"`
	VendorName    string          `json:"vendor_name"`
	GLAccount     string          `json:"gl_account"`
	Outcome       Outcome         `json:"outcome"`
	NeedsAccrual  bool            `json:"needs_accrual"`
	AmountLocal   decimal.Decimal `json:"accrual_amount"`
	AmountUSD     decimal.Decimal `json:"accrual_amount_usd"`
	Currency      string          `json:"currency"`
	ShortSummary  string          `json:"short_summary"`
	Reasoning     string          `json:"reasoning"`
	Confidence    float64         `json:"confidence_score"`
	Tokens        TokenUsage      `json:"tokens"`
	CostUSD       float64         `json:"cost_usd"`
	Elapsed       time.Duration   `json:"elapsed"`
	AnalysisMonth string          `json:"analysis_month"`
	AnalyzedAt    time.Time       `json:"analyzed_at"`
}

package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/accruals-cli/internal/model"
)

const systemPrompt = `You are a financial expert specializing in accrual accounting.
Analyze the provided purchase order line and its related bills and invoices,
then decide whether a month-end accrual is needed based on accounting
principles and the business rules in the request.

Respond with valid JSON only, no prose, in exactly this shape:
{
  "needs_accrual": boolean,
  "accrual_amount": number (in the PO line's local currency, 0 if none),
  "reasoning": "detailed explanation of the decision",
  "short_summary": "one-line summary",
  "confidence": number between 0 and 1
}`

// promptPayload is the structured evidence handed to the judge. Serializing
// the whole payload as JSON keeps the prompt unambiguous about field
// boundaries and avoids free-text escaping issues.
type promptPayload struct {
	AnalysisMonth string          `json:"analysis_month"`
	POLine        promptPOLine    `json:"po_line"`
	RelatedBills  []promptBill    `json:"related_bills"`
	Invoices      []promptInvoice `json:"extracted_invoices"`
	BillCount     int             `json:"bill_count"`
}

type promptPOLine struct {
	PONumber         string `json:"po_number"`
	Vendor           string `json:"vendor"`
	GLAccount        string `json:"gl_account"`
	Description      string `json:"description"`
	Memo             string `json:"memo,omitempty"`
	Currency         string `json:"currency"`
	TotalAmount      string `json:"total_amount"`
	BilledAmount     string `json:"billed_amount"`
	RemainingBalance string `json:"remaining_balance"`
	DeliveryDate     string `json:"delivery_date,omitempty"`
	PrepaidStart     string `json:"prepaid_start,omitempty"`
	PrepaidEnd       string `json:"prepaid_end,omitempty"`
}

type promptBill struct {
	BillID        string `json:"bill_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	PaymentStatus string `json:"payment_status"`
	PostingPeriod string `json:"posting_period"`
	CreatedDate   string `json:"created_date"`
}

type promptInvoice struct {
	InvoiceNumber      string `json:"invoice_number"`
	ServiceDescription string `json:"service_description"`
	ServicePeriod      string `json:"service_period"`
	TotalAmount        string `json:"total_amount"`
	Currency           string `json:"currency"`
	LineItemsSummary   string `json:"line_items_summary"`
}

// buildPrompt assembles the user message for one PO line from the evidence
// index. Evidence lookups never fail; a line with no bills is analyzed with
// reduced context.
func (s *Stage) buildPrompt(line model.POLine) (string, error) {
	bills := s.ev.BillsFor(line.PONumber)
	invoices := s.ev.InvoicesForBills(bills)

	payload := promptPayload{
		AnalysisMonth: s.month,
		POLine: promptPOLine{
			PONumber:         line.PONumber,
			Vendor:           line.VendorName,
			GLAccount:        line.GLAccount,
			Description:      line.Description,
			Memo:             line.Memo,
			Currency:         line.Currency,
			TotalAmount:      line.Amount.String(),
			BilledAmount:     line.BilledAmount.String(),
			RemainingBalance: line.RemainingBalance.String(),
			DeliveryDate:     formatDate(line.DeliveryDate),
			PrepaidStart:     formatDate(line.PrepaidStartDate),
			PrepaidEnd:       formatDate(line.PrepaidEndDate),
		},
		RelatedBills: make([]promptBill, 0, len(bills)),
		Invoices:     make([]promptInvoice, 0, len(invoices)),
		BillCount:    len(bills),
	}

	for _, b := range bills {
		payload.RelatedBills = append(payload.RelatedBills, promptBill{
			BillID:        b.BillID,
			Amount:        b.Amount.String(),
			Currency:      b.Currency,
			PaymentStatus: b.PaymentStatus,
			PostingPeriod: b.PostingPeriod,
			CreatedDate:   b.CreatedDate.Format("2006-01-02"),
		})
	}
	for _, inv := range invoices {
		payload.Invoices = append(payload.Invoices, promptInvoice{
			InvoiceNumber:      inv.InvoiceNumber,
			ServiceDescription: inv.ServiceDescription,
			ServicePeriod:      inv.ServicePeriod,
			TotalAmount:        inv.TotalAmount.String(),
			Currency:           inv.Currency,
			LineItemsSummary:   inv.LineItemsSummary,
		})
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "engine: marshal prompt payload")
	}

	return fmt.Sprintf(`Analyze whether an accrual is needed for this purchase order line.

BUSINESS RULES:
1. No negative accruals for prepaid services.
2. Accrue when services were provided but not yet expensed.
3. For subscription services, estimate the monthly accrual amount.
4. Check whether previous months were already paid or accrued.
5. Accrue for the analysis month only: %s

DATA:
%s`, s.month, string(data)), nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

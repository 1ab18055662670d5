// Package extractor turns invoice documents into structured records. Each
// document is read through the docstore, handed to the AI for field
// extraction, and classified: a real invoice yields an extracted record, a
// non-invoice document is deleted at the source, and unreadable or malformed
// results become failed records that still mark the document as processed.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/accruals-cli/internal/config"
	"github.com/sells-group/accruals-cli/internal/docstore"
	"github.com/sells-group/accruals-cli/internal/model"
	"github.com/sells-group/accruals-cli/pkg/anthropic"
)

const systemPrompt = `You are an expert at reading vendor invoices. Extract
structured data from the document text provided. If the document is not an
invoice (e.g. a contract, statement, receipt confirmation or unrelated file),
set is_invoice to false and leave the other fields empty.

Respond with valid JSON only, no prose, in exactly this shape:
{
  "is_invoice": boolean,
  "invoice_number": "string",
  "invoice_date": "YYYY-MM-DD or null",
  "service_description": "string - services or products billed, in English",
  "service_period": "string - e.g. 2026-08-01 to 2026-08-31, empty if none",
  "line_items_summary": "string - one line per item with amount",
  "total_amount": number,
  "tax_amount": number,
  "net_amount": number,
  "currency": "string - ISO code",
  "confidence": number between 0 and 1
}`

// deleter is the single docstore mutation the stage performs.
type deleter interface {
	Delete(doc docstore.Document) error
}

// Stage extracts one invoice document per call. Safe for concurrent use.
type Stage struct {
	judge  anthropic.Client
	docs   deleter
	text   docstore.Extractor
	model  string
	maxTok int64
}

// New builds an extraction stage.
func New(judge anthropic.Client, docs deleter, text docstore.Extractor, cfg config.AnthropicConfig) *Stage {
	return &Stage{
		judge:  judge,
		docs:   docs,
		text:   text,
		model:  cfg.Model,
		maxTok: cfg.MaxTokens,
	}
}

// Extract processes one document. All failures become terminal record
// outcomes; the returned record always carries the document's key so the run
// never loses track of a file.
func (s *Stage) Extract(ctx context.Context, doc docstore.Document) model.InvoiceRecord {
	start := time.Now()

	rec := model.InvoiceRecord{
		Key:         doc.Key,
		FilePath:    doc.Path,
		ExtractedAt: time.Now(),
	}

	content, err := s.text.ExtractText(doc.Path)
	if err != nil {
		zap.L().Warn("extractor: unreadable document",
			zap.String("bill_id", doc.Key.BillID),
			zap.String("file", doc.Key.FileName),
			zap.Error(err),
		)
		rec.Outcome = model.OutcomeExtractionFailed
		rec.Elapsed = time.Since(start)
		return rec
	}

	resp, err := s.judge.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTok,
		System:    systemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf("Document file name: %s\n\nDocument text:\n%s", doc.Key.FileName, content)},
		},
	})
	if err != nil {
		zap.L().Warn("extractor: extraction call failed",
			zap.String("bill_id", doc.Key.BillID),
			zap.String("file", doc.Key.FileName),
			zap.Error(err),
		)
		rec.Outcome = model.OutcomeError
		rec.Elapsed = time.Since(start)
		return rec
	}
	rec.Tokens = model.TokenUsage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}

	fields, err := parseFields(resp.Text())
	if err != nil {
		zap.L().Warn("extractor: malformed extraction response",
			zap.String("bill_id", doc.Key.BillID),
			zap.String("file", doc.Key.FileName),
			zap.Error(err),
		)
		rec.Outcome = model.OutcomeExtractionFailed
		rec.Elapsed = time.Since(start)
		return rec
	}

	if !fields.isInvoice {
		// Remove the document so it never re-enters a scan; the record is
		// still returned so the store remembers the classification.
		if err := s.docs.Delete(doc); err != nil {
			zap.L().Error("extractor: delete non-invoice failed",
				zap.String("bill_id", doc.Key.BillID),
				zap.String("file", doc.Key.FileName),
				zap.Error(err),
			)
		}
		rec.Outcome = model.OutcomeNotInvoice
		rec.Confidence = fields.confidence
		rec.Elapsed = time.Since(start)
		return rec
	}

	rec.Outcome = model.OutcomeExtracted
	rec.IsInvoice = true
	rec.InvoiceNumber = fields.invoiceNumber
	rec.InvoiceDate = fields.invoiceDate
	rec.ServiceDescription = fields.serviceDescription
	rec.ServicePeriod = fields.servicePeriod
	rec.LineItemsSummary = fields.lineItemsSummary
	rec.TotalAmount = fields.totalAmount
	rec.TaxAmount = fields.taxAmount
	rec.NetAmount = fields.netAmount
	rec.Currency = fields.currency
	rec.Confidence = fields.confidence
	rec.Elapsed = time.Since(start)

	zap.L().Info("extractor: document extracted",
		zap.String("bill_id", doc.Key.BillID),
		zap.String("file", doc.Key.FileName),
		zap.String("invoice_number", rec.InvoiceNumber),
		zap.String("total", rec.TotalAmount.String()),
		zap.Int64("tokens", rec.Tokens.Total()),
	)
	return rec
}

type extractedFields struct {
	isInvoice          bool
	invoiceNumber      string
	invoiceDate        *time.Time
	serviceDescription string
	servicePeriod      string
	lineItemsSummary   string
	totalAmount        decimal.Decimal
	taxAmount          decimal.Decimal
	netAmount          decimal.Decimal
	currency           string
	confidence         float64
}

// parseFields validates the extraction JSON. is_invoice and confidence are
// required; monetary and date fields may be absent for non-invoices.
func parseFields(text string) (extractedFields, error) {
	cleaned := anthropic.CleanJSON(text)

	var raw struct {
		IsInvoice          *bool    `json:"is_invoice"`
		InvoiceNumber      string   `json:"invoice_number"`
		InvoiceDate        string   `json:"invoice_date"`
		ServiceDescription string   `json:"service_description"`
		ServicePeriod      string   `json:"service_period"`
		LineItemsSummary   string   `json:"line_items_summary"`
		TotalAmount        float64  `json:"total_amount"`
		TaxAmount          float64  `json:"tax_amount"`
		NetAmount          float64  `json:"net_amount"`
		Currency           string   `json:"currency"`
		Confidence         *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return extractedFields{}, eris.Wrap(err, "extractor: parse extraction JSON")
	}
	if raw.IsInvoice == nil {
		return extractedFields{}, eris.New("extractor: extraction missing is_invoice")
	}
	if raw.Confidence == nil {
		return extractedFields{}, eris.New("extractor: extraction missing confidence")
	}

	f := extractedFields{
		isInvoice:          *raw.IsInvoice,
		invoiceNumber:      raw.InvoiceNumber,
		serviceDescription: raw.ServiceDescription,
		servicePeriod:      raw.ServicePeriod,
		lineItemsSummary:   raw.LineItemsSummary,
		totalAmount:        decimal.NewFromFloat(raw.TotalAmount),
		taxAmount:          decimal.NewFromFloat(raw.TaxAmount),
		netAmount:          decimal.NewFromFloat(raw.NetAmount),
		currency:           raw.Currency,
		confidence:         *raw.Confidence,
	}
	if raw.InvoiceDate != "" && raw.InvoiceDate != "null" {
		if d, err := time.Parse("2006-01-02", raw.InvoiceDate); err == nil {
			f.invoiceDate = &d
		}
	}
	return f, nil
}

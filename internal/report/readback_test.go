package report

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/accruals-cli/internal/model"
)

func TestDecisionsRoundTrip(t *testing.T) {
	sink := NewSink(t.TempDir())

	analyzedAt := time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC)
	in := []model.Decision{{
		LookupKey:     "PO-1|1",
		PONumber:      "PO-1",
		VendorName:    "Acme Corp",
		GLAccount:     "6010 Software",
		Outcome:       model.OutcomeAccrual,
		NeedsAccrual:  true,
		AmountLocal:   decimal.NewFromInt(10000),
		AmountUSD:     decimal.NewFromInt(11000),
		Currency:      "EUR",
		ShortSummary:  "Accrue August",
		Reasoning:     "Services delivered, no bill posted.",
		Confidence:    0.9,
		Tokens:        model.TokenUsage{InputTokens: 100, OutputTokens: 50},
		CostUSD:       0.05,
		Elapsed:       2 * time.Second,
		AnalysisMonth: "August 2026",
		AnalyzedAt:    analyzedAt,
	}}

	path, err := sink.WriteDecisions(in)
	require.NoError(t, err)

	out, err := ReadDecisions(path)
	require.NoError(t, err)
	require.Len(t, out, 1)

	got := out[0]
	assert.Equal(t, in[0].LookupKey, got.LookupKey)
	assert.Equal(t, model.OutcomeAccrual, got.Outcome)
	assert.True(t, got.NeedsAccrual)
	assert.True(t, in[0].AmountUSD.Equal(got.AmountUSD))
	// The text guard is stripped on read-back.
	assert.Equal(t, "August 2026", got.AnalysisMonth)
	assert.Equal(t, analyzedAt, got.AnalyzedAt)
	assert.Equal(t, int64(150), got.Tokens.Total())
	assert.Equal(t, 2*time.Second, got.Elapsed)
}

func TestInvoiceRecordsRoundTrip(t *testing.T) {
	sink := NewSink(t.TempDir())

	invoiceDate := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	in := []model.InvoiceRecord{{
		Key:                model.InvoiceKey{BillID: "B-1", FileName: "inv.pdf"},
		Outcome:            model.OutcomeExtracted,
		IsInvoice:          true,
		InvoiceNumber:      "INV-42",
		InvoiceDate:        &invoiceDate,
		ServiceDescription: "Hosting",
		ServicePeriod:      "2026-08-01 to 2026-08-31",
		TotalAmount:        decimal.NewFromInt(500),
		TaxAmount:          decimal.NewFromInt(50),
		NetAmount:          decimal.NewFromInt(450),
		Currency:           "USD",
		Confidence:         0.95,
		FilePath:           "/data/invoices/B-1/inv.pdf",
	}}

	path, err := sink.WriteInvoiceRecords(in)
	require.NoError(t, err)

	out, err := ReadInvoiceRecords(path)
	require.NoError(t, err)
	require.Len(t, out, 1)

	got := out[0]
	assert.Equal(t, in[0].Key, got.Key)
	assert.True(t, got.IsInvoice)
	require.NotNil(t, got.InvoiceDate)
	assert.Equal(t, "2026-08-15", got.InvoiceDate.Format("2006-01-02"))
	assert.Equal(t, "2026-08-01 to 2026-08-31", got.ServicePeriod)
	assert.True(t, in[0].TotalAmount.Equal(got.TotalAmount))
}

func TestReadDecisionsRejectsWrongSchema(t *testing.T) {
	sink := NewSink(t.TempDir())
	path, err := sink.WriteInvoiceRecords(nil)
	require.NoError(t, err)

	_, err = ReadDecisions(path)
	assert.Error(t, err)
}

package report

import (
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/accruals-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteDecisionsPreservesInputOrder(t *testing.T) {
	sink := NewSink(t.TempDir())

	decisions := []model.Decision{
		{LookupKey: "PO-3|1", Outcome: model.OutcomeAccrual, NeedsAccrual: true, AmountUSD: decimal.NewFromInt(9000), AnalysisMonth: "August 2026"},
		{LookupKey: "PO-1|1", Outcome: model.OutcomeError, AnalysisMonth: "August 2026"},
		{LookupKey: "PO-2|1", Outcome: model.OutcomeNoAccrual, AnalysisMonth: "August 2026"},
	}

	path, err := sink.WriteDecisions(decisions)
	require.NoError(t, err)

	rows := readCSV(t, path)
	require.Len(t, rows, 4)
	assert.Equal(t, "lookup_key", rows[0][0])
	assert.Equal(t, "PO-3|1", rows[1][0])
	assert.Equal(t, "PO-1|1", rows[2][0])
	assert.Equal(t, "PO-2|1", rows[3][0])
	// Analysis month carries the spreadsheet text guard.
	assert.Equal(t, "'August 2026", rows[1][16])
}

func TestWriteInvoiceRecordsExcludesNonInvoices(t *testing.T) {
	sink := NewSink(t.TempDir())

	records := []model.InvoiceRecord{
		{Key: model.InvoiceKey{BillID: "B-1", FileName: "a.pdf"}, Outcome: model.OutcomeExtracted, IsInvoice: true, ServicePeriod: "2026-08-01 to 2026-08-31"},
		{Key: model.InvoiceKey{BillID: "B-2", FileName: "b.pdf"}, Outcome: model.OutcomeNotInvoice},
		{Key: model.InvoiceKey{BillID: "B-3", FileName: "c.pdf"}, Outcome: model.OutcomeExtractionFailed},
	}

	path, err := sink.WriteInvoiceRecords(records)
	require.NoError(t, err)

	rows := readCSV(t, path)
	// Header plus two rows: the not_invoice record must not occupy a row.
	require.Len(t, rows, 3)
	assert.Equal(t, "B-1", rows[1][0])
	assert.Equal(t, "'2026-08-01 to 2026-08-31", rows[1][7])
	assert.Equal(t, "B-3", rows[2][0])
}

func TestSummarizeSinglePass(t *testing.T) {
	decisions := []model.Decision{
		{Outcome: model.OutcomeAccrual, NeedsAccrual: true, GLAccount: "6010 Software", AmountUSD: decimal.NewFromInt(12000), Tokens: model.TokenUsage{InputTokens: 100, OutputTokens: 50}, CostUSD: 0.05, Elapsed: 2 * time.Second},
		{Outcome: model.OutcomeAccrual, NeedsAccrual: true, GLAccount: "6010 Software", AmountUSD: decimal.NewFromInt(3000), Tokens: model.TokenUsage{InputTokens: 80, OutputTokens: 40}, CostUSD: 0.04, Elapsed: 4 * time.Second},
		{Outcome: model.OutcomeNoAccrual, Elapsed: time.Second},
		{Outcome: model.OutcomeError},
	}

	sum := Summarize(decisions, time.Minute)

	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 2, sum.AccrualsNeeded)
	assert.True(t, decimal.NewFromInt(15000).Equal(sum.TotalAccrualUSD))
	assert.True(t, decimal.NewFromInt(15000).Equal(sum.AccrualUSDByGL["6010 Software"]))
	assert.Equal(t, int64(270), sum.Tokens.Total())
	assert.InDelta(t, 0.09, sum.CostUSD, 1e-9)
	assert.Equal(t, 2, sum.ByOutcome[model.OutcomeAccrual])
	assert.Equal(t, 1, sum.ByOutcome[model.OutcomeError])
	assert.Equal(t, 7*time.Second/4, sum.AverageItemTime())
	assert.Equal(t, time.Minute, sum.WallTime)
}

func TestWriteSummaryWorkbook(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(dir)

	sum := Summarize([]model.Decision{
		{Outcome: model.OutcomeAccrual, NeedsAccrual: true, GLAccount: "6010 Software", AmountUSD: decimal.NewFromInt(5000)},
	}, time.Minute)

	path, err := sink.WriteSummaryWorkbook(sum, "August 2026")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

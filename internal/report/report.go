// Package report is the result sink for both pipelines. It filters outcomes
// that belong in the artifact, writes the ordered CSV artifacts and the
// summary workbook, and appends recordable results to the record store. It
// performs no dedup; selecting which items run at all is the delta's job.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/accruals-cli/internal/model"
)

// Sink writes run artifacts under the results directory.
type Sink struct {
	dir string
}

// NewSink creates a sink. The directory is created on first write.
func NewSink(dir string) *Sink {
	return &Sink{dir: dir}
}

var analysisColumns = []string{
	"lookup_key", "po_number", "vendor_name", "gl_account", "outcome",
	"needs_accrual", "accrual_amount", "accrual_amount_usd", "currency",
	"short_summary", "reasoning", "confidence_score",
	"input_tokens", "output_tokens", "cost_usd", "processing_seconds",
	"analysis_month", "analyzed_at",
}

// WriteDecisions writes the accrual analysis artifact in input order. Every
// decision is recordable for PO lines, so no rows are dropped here; the
// filter still runs to keep the sink's contract uniform across pipelines.
func (s *Sink) WriteDecisions(decisions []model.Decision) (string, error) {
	path := filepath.Join(s.dir, "accrual_analysis_results.csv")
	w, f, err := s.openCSV(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck

	if err := w.Write(analysisColumns); err != nil {
		return "", eris.Wrap(err, "report: write header")
	}
	written := 0
	for _, d := range decisions {
		if !d.Outcome.Recordable() {
			continue
		}
		row := []string{
			d.LookupKey, d.PONumber, d.VendorName, d.GLAccount, string(d.Outcome),
			strconv.FormatBool(d.NeedsAccrual),
			d.AmountLocal.StringFixed(2), d.AmountUSD.StringFixed(2), d.Currency,
			d.ShortSummary, d.Reasoning, formatFloat(d.Confidence),
			strconv.FormatInt(d.Tokens.InputTokens, 10), strconv.FormatInt(d.Tokens.OutputTokens, 10),
			formatFloat(d.CostUSD), formatFloat(d.Elapsed.Seconds()),
			excelText(d.AnalysisMonth), d.AnalyzedAt.Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return "", eris.Wrapf(err, "report: write row %s", d.LookupKey)
		}
		written++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", eris.Wrap(err, "report: flush decisions csv")
	}

	zap.L().Info("report: wrote analysis artifact",
		zap.String("path", path),
		zap.Int("rows", written),
	)
	return path, nil
}

var extractionColumns = []string{
	"bill_id", "file_name", "outcome", "is_invoice", "invoice_number", "invoice_date",
	"service_description", "service_period", "line_items_summary",
	"total_amount", "tax_amount", "net_amount", "currency", "confidence_score",
	"input_tokens", "output_tokens", "processing_seconds", "file_path",
}

// WriteInvoiceRecords writes the extraction artifact in input order,
// excluding non-invoice classifications entirely: a deleted document must not
// occupy a row.
func (s *Sink) WriteInvoiceRecords(records []model.InvoiceRecord) (string, error) {
	path := filepath.Join(s.dir, "invoice_extraction_results.csv")
	w, f, err := s.openCSV(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck

	if err := w.Write(extractionColumns); err != nil {
		return "", eris.Wrap(err, "report: write header")
	}
	written := 0
	for _, r := range records {
		if !r.Outcome.Recordable() {
			continue
		}
		invoiceDate := ""
		if r.InvoiceDate != nil {
			invoiceDate = r.InvoiceDate.Format("2006-01-02")
		}
		row := []string{
			r.Key.BillID, r.Key.FileName, string(r.Outcome), strconv.FormatBool(r.IsInvoice),
			r.InvoiceNumber, invoiceDate,
			r.ServiceDescription, excelText(r.ServicePeriod), r.LineItemsSummary,
			r.TotalAmount.StringFixed(2), r.TaxAmount.StringFixed(2), r.NetAmount.StringFixed(2),
			r.Currency, formatFloat(r.Confidence),
			strconv.FormatInt(r.Tokens.InputTokens, 10), strconv.FormatInt(r.Tokens.OutputTokens, 10),
			formatFloat(r.Elapsed.Seconds()), r.FilePath,
		}
		if err := w.Write(row); err != nil {
			return "", eris.Wrapf(err, "report: write row %s", r.Key)
		}
		written++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", eris.Wrap(err, "report: flush extraction csv")
	}

	zap.L().Info("report: wrote extraction artifact",
		zap.String("path", path),
		zap.Int("rows", written),
	)
	return path, nil
}

func (s *Sink) openCSV(path string) (*csv.Writer, *os.File, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, nil, eris.Wrapf(err, "report: create results dir %s", s.dir)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "report: create %s", path)
	}
	return csv.NewWriter(f), f, nil
}

// excelText prefixes a value with a single quote so spreadsheet tools treat
// it as text instead of parsing it as a date.
func excelText(v string) string {
	if v == "" {
		return ""
	}
	return "'" + v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Summary aggregates a drained batch. Built in a single pass over the final
// results, never incremented concurrently during the run.
type Summary struct {
	Total           int
	ByOutcome       map[model.Outcome]int
	AccrualsNeeded  int
	TotalAccrualUSD decimal.Decimal
	AccrualUSDByGL  map[string]decimal.Decimal
	Tokens          model.TokenUsage
	CostUSD         float64
	ProcessingTime  time.Duration
	WallTime        time.Duration
}

// Summarize computes the run summary from the complete decision list.
func Summarize(decisions []model.Decision, wall time.Duration) Summary {
	sum := Summary{
		ByOutcome:       make(map[model.Outcome]int),
		TotalAccrualUSD: decimal.Zero,
		AccrualUSDByGL:  make(map[string]decimal.Decimal),
		WallTime:        wall,
	}
	for _, d := range decisions {
		sum.Total++
		sum.ByOutcome[d.Outcome]++
		sum.Tokens.Add(d.Tokens)
		sum.CostUSD += d.CostUSD
		sum.ProcessingTime += d.Elapsed
		if d.NeedsAccrual {
			sum.AccrualsNeeded++
			sum.TotalAccrualUSD = sum.TotalAccrualUSD.Add(d.AmountUSD)
			gl := d.GLAccount
			sum.AccrualUSDByGL[gl] = sum.AccrualUSDByGL[gl].Add(d.AmountUSD)
		}
	}
	return sum
}

// AverageItemTime returns the mean per-item processing time.
func (s Summary) AverageItemTime() time.Duration {
	if s.Total == 0 {
		return 0
	}
	return s.ProcessingTime / time.Duration(s.Total)
}

// SummarizeExtraction computes the extraction run summary.
func SummarizeExtraction(records []model.InvoiceRecord, wall time.Duration) Summary {
	sum := Summary{
		ByOutcome:       make(map[model.Outcome]int),
		TotalAccrualUSD: decimal.Zero,
		AccrualUSDByGL:  make(map[string]decimal.Decimal),
		WallTime:        wall,
	}
	for _, r := range records {
		sum.Total++
		sum.ByOutcome[r.Outcome]++
		sum.Tokens.Add(r.Tokens)
		sum.ProcessingTime += r.Elapsed
	}
	return sum
}

// Log emits the run-end summary so partial failures are visible without
// reading per-item logs.
func (s Summary) Log(pipeline string) {
	fields := []zap.Field{
		zap.String("pipeline", pipeline),
		zap.Int("total", s.Total),
		zap.Int("accruals_needed", s.AccrualsNeeded),
		zap.String("total_accrual_usd", s.TotalAccrualUSD.StringFixed(2)),
		zap.Int64("tokens", s.Tokens.Total()),
		zap.Float64("cost_usd", s.CostUSD),
		zap.Duration("avg_item_time", s.AverageItemTime()),
		zap.Duration("wall_time", s.WallTime),
	}
	for outcome, n := range s.ByOutcome {
		fields = append(fields, zap.Int(fmt.Sprintf("outcome_%s", outcome), n))
	}
	zap.L().Info("run summary", fields...)
}

package report

import (
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/accruals-cli/internal/model"
)

// summaryOutcomeOrder fixes the row order of the per-outcome counts so the
// workbook is diffable between runs.
var summaryOutcomeOrder = []model.Outcome{
	model.OutcomeAccrual,
	model.OutcomeNoAccrual,
	model.OutcomeExtracted,
	model.OutcomeNotInvoice,
	model.OutcomeExtractionFailed,
	model.OutcomeError,
}

// WriteSummaryWorkbook writes the month-end summary workbook: one sheet of
// run totals and per-outcome counts, one sheet of accrual USD sums by GL
// account.
func (s *Sink) WriteSummaryWorkbook(sum Summary, month string) (string, error) {
	file := xlsx.NewFile()

	sheet, err := file.AddSheet("Summary")
	if err != nil {
		return "", eris.Wrap(err, "report: add summary sheet")
	}
	addRow(sheet, "Analysis month", month)
	addRow(sheet, "Items processed", itoa(sum.Total))
	addRow(sheet, "Accruals needed", itoa(sum.AccrualsNeeded))
	addRow(sheet, "Total accrual (USD)", sum.TotalAccrualUSD.StringFixed(2))
	addRow(sheet, "Tokens used", i64toa(sum.Tokens.Total()))
	addRow(sheet, "Input tokens", i64toa(sum.Tokens.InputTokens))
	addRow(sheet, "Output tokens", i64toa(sum.Tokens.OutputTokens))
	addRow(sheet, "Cost (USD)", formatFloat(sum.CostUSD))
	addRow(sheet, "Average item time", sum.AverageItemTime().Round(10*time.Millisecond).String())
	addRow(sheet, "Wall time", sum.WallTime.Round(10*time.Millisecond).String())
	addRow(sheet, "", "")
	addRow(sheet, "Outcome", "Count")
	for _, outcome := range summaryOutcomeOrder {
		if n, ok := sum.ByOutcome[outcome]; ok {
			addRow(sheet, string(outcome), itoa(n))
		}
	}

	if len(sum.AccrualUSDByGL) > 0 {
		glSheet, err := file.AddSheet("Accruals by GL")
		if err != nil {
			return "", eris.Wrap(err, "report: add gl sheet")
		}
		addRow(glSheet, "GL account", "Accrual (USD)")
		for _, gl := range sortedKeys(sum.AccrualUSDByGL) {
			addRow(glSheet, gl, sum.AccrualUSDByGL[gl].StringFixed(2))
		}
	}

	path := filepath.Join(s.dir, "accrual_summary.xlsx")
	if err := file.Save(path); err != nil {
		return "", eris.Wrapf(err, "report: save workbook %s", path)
	}

	zap.L().Info("report: wrote summary workbook", zap.String("path", path))
	return path, nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

package report

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/accruals-cli/internal/model"
)

// ReadDecisions parses an analysis artifact back into decisions, used by the
// upload command after an operator has reviewed the CSV. The spreadsheet
// text guard on analysis_month is stripped.
func ReadDecisions(path string) ([]model.Decision, error) {
	rows, err := readRows(path, analysisColumns)
	if err != nil {
		return nil, err
	}

	decisions := make([]model.Decision, 0, len(rows))
	for i, row := range rows {
		d := model.Decision{
			LookupKey:     row[0],
			PONumber:      row[1],
			VendorName:    row[2],
			GLAccount:     row[3],
			Outcome:       model.Outcome(row[4]),
			Currency:      row[8],
			ShortSummary:  row[9],
			Reasoning:     row[10],
			AnalysisMonth: stripExcelText(row[16]),
		}
		d.NeedsAccrual, _ = strconv.ParseBool(row[5])
		if d.AmountLocal, err = decimal.NewFromString(row[6]); err != nil {
			return nil, eris.Wrapf(err, "report: row %d accrual_amount", i+1)
		}
		if d.AmountUSD, err = decimal.NewFromString(row[7]); err != nil {
			return nil, eris.Wrapf(err, "report: row %d accrual_amount_usd", i+1)
		}
		d.Confidence, _ = strconv.ParseFloat(row[11], 64)
		d.Tokens.InputTokens, _ = strconv.ParseInt(row[12], 10, 64)
		d.Tokens.OutputTokens, _ = strconv.ParseInt(row[13], 10, 64)
		d.CostUSD, _ = strconv.ParseFloat(row[14], 64)
		if secs, err := strconv.ParseFloat(row[15], 64); err == nil {
			d.Elapsed = time.Duration(secs * float64(time.Second))
		}
		if ts, err := time.Parse(time.RFC3339, row[17]); err == nil {
			d.AnalyzedAt = ts
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// ReadInvoiceRecords parses an extraction artifact back into records.
func ReadInvoiceRecords(path string) ([]model.InvoiceRecord, error) {
	rows, err := readRows(path, extractionColumns)
	if err != nil {
		return nil, err
	}

	records := make([]model.InvoiceRecord, 0, len(rows))
	for i, row := range rows {
		r := model.InvoiceRecord{
			Key:                model.InvoiceKey{BillID: row[0], FileName: row[1]},
			Outcome:            model.Outcome(row[2]),
			InvoiceNumber:      row[4],
			ServiceDescription: row[6],
			ServicePeriod:      stripExcelText(row[7]),
			LineItemsSummary:   row[8],
			Currency:           row[12],
			FilePath:           row[17],
		}
		r.IsInvoice, _ = strconv.ParseBool(row[3])
		if row[5] != "" {
			if d, err := time.Parse("2006-01-02", row[5]); err == nil {
				r.InvoiceDate = &d
			}
		}
		if r.TotalAmount, err = decimal.NewFromString(row[9]); err != nil {
			return nil, eris.Wrapf(err, "report: row %d total_amount", i+1)
		}
		if r.TaxAmount, err = decimal.NewFromString(row[10]); err != nil {
			return nil, eris.Wrapf(err, "report: row %d tax_amount", i+1)
		}
		if r.NetAmount, err = decimal.NewFromString(row[11]); err != nil {
			return nil, eris.Wrapf(err, "report: row %d net_amount", i+1)
		}
		r.Confidence, _ = strconv.ParseFloat(row[13], 64)
		r.Tokens.InputTokens, _ = strconv.ParseInt(row[14], 10, 64)
		r.Tokens.OutputTokens, _ = strconv.ParseInt(row[15], 10, 64)
		if secs, err := strconv.ParseFloat(row[16], 64); err == nil {
			r.Elapsed = time.Duration(secs * float64(time.Second))
		}
		records = append(records, r)
	}
	return records, nil
}

func readRows(path string, columns []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "report: parse %s", path)
	}
	if len(all) == 0 {
		return nil, eris.Errorf("report: %s is empty", path)
	}
	if len(all[0]) != len(columns) || all[0][0] != columns[0] {
		return nil, eris.Errorf("report: %s has unexpected columns", path)
	}
	return all[1:], nil
}

func stripExcelText(v string) string {
	return strings.TrimPrefix(v, "'")
}

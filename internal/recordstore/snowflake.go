package recordstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/accruals-cli/internal/model"
)

const (
	analyzedKeysQuery = `
		SELECT lookup_key FROM ACCRUALS_ANALYSIS_RESULTS
		WHERE analysis_month = ?`

	processedInvoiceKeysQuery = `
		SELECT bill_id, file_name FROM ACCRUALS_EXTRACTED_INVOICES`

	insertDecisionStmt = `
		INSERT INTO ACCRUALS_ANALYSIS_RESULTS (
			lookup_key, po_number, vendor_name, gl_account, outcome,
			needs_accrual, accrual_amount_local, accrual_amount_usd, currency,
			short_summary, reasoning, confidence_score,
			input_tokens, output_tokens, cost_usd, processing_seconds,
			analysis_month, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertInvoiceStmt = `
		INSERT INTO ACCRUALS_EXTRACTED_INVOICES (
			bill_id, file_name, outcome, is_invoice, invoice_number, invoice_date,
			service_description, service_period, line_items_summary,
			total_amount, tax_amount, net_amount, currency, confidence_score,
			input_tokens, output_tokens, processing_seconds, extracted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// SnowflakeStore implements Store on the same warehouse connection the read
// views use. Results land next to the source data so the finance team can
// query them directly.
type SnowflakeStore struct {
	db *sql.DB
}

// NewSnowflake wraps an existing warehouse handle. The store does not own the
// connection; Close is a no-op and the warehouse client remains responsible
// for teardown.
func NewSnowflake(db *sql.DB) *SnowflakeStore {
	return &SnowflakeStore{db: db}
}

func (s *SnowflakeStore) AnalyzedKeys(ctx context.Context, month string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, analyzedKeysQuery, month)
	if err != nil {
		return nil, eris.Wrap(err, "recordstore: query analyzed keys")
	}
	defer rows.Close() //nolint:errcheck

	keys := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, eris.Wrap(err, "recordstore: scan analyzed key")
		}
		keys[k] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "recordstore: iterate analyzed keys")
	}

	zap.L().Info("recordstore: loaded analyzed keys",
		zap.String("month", month),
		zap.Int("count", len(keys)),
	)
	return keys, nil
}

func (s *SnowflakeStore) ProcessedInvoiceKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, processedInvoiceKeysQuery)
	if err != nil {
		return nil, eris.Wrap(err, "recordstore: query processed invoices")
	}
	defer rows.Close() //nolint:errcheck

	keys := make(map[string]struct{})
	for rows.Next() {
		var key model.InvoiceKey
		if err := rows.Scan(&key.BillID, &key.FileName); err != nil {
			return nil, eris.Wrap(err, "recordstore: scan processed invoice")
		}
		keys[key.String()] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "recordstore: iterate processed invoices")
	}

	zap.L().Info("recordstore: loaded processed invoice keys", zap.Int("count", len(keys)))
	return keys, nil
}

func (s *SnowflakeStore) AppendDecisions(ctx context.Context, month string, decisions []model.Decision) error {
	if len(decisions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "recordstore: begin append decisions")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, d := range decisions {
		if _, err := tx.ExecContext(ctx, insertDecisionStmt,
			d.LookupKey, d.PONumber, d.VendorName, d.GLAccount, string(d.Outcome),
			d.NeedsAccrual, d.AmountLocal.InexactFloat64(), d.AmountUSD.InexactFloat64(), d.Currency,
			d.ShortSummary, d.Reasoning, d.Confidence,
			d.Tokens.InputTokens, d.Tokens.OutputTokens, d.CostUSD, d.Elapsed.Seconds(),
			month, d.AnalyzedAt,
		); err != nil {
			return eris.Wrapf(err, "recordstore: insert decision %s", d.LookupKey)
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "recordstore: commit decisions")
	}

	zap.L().Info("recordstore: appended decisions",
		zap.String("month", month),
		zap.Int("count", len(decisions)),
	)
	return nil
}

func (s *SnowflakeStore) AppendInvoices(ctx context.Context, records []model.InvoiceRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "recordstore: begin append invoices")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range records {
		var invoiceDate any
		if r.InvoiceDate != nil {
			invoiceDate = *r.InvoiceDate
		}
		if _, err := tx.ExecContext(ctx, insertInvoiceStmt,
			r.Key.BillID, r.Key.FileName, string(r.Outcome), r.IsInvoice, r.InvoiceNumber, invoiceDate,
			r.ServiceDescription, r.ServicePeriod, r.LineItemsSummary,
			r.TotalAmount.InexactFloat64(), r.TaxAmount.InexactFloat64(), r.NetAmount.InexactFloat64(),
			r.Currency, r.Confidence,
			r.Tokens.InputTokens, r.Tokens.OutputTokens, r.Elapsed.Seconds(), r.ExtractedAt,
		); err != nil {
			return eris.Wrapf(err, "recordstore: insert invoice %s", r.Key)
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "recordstore: commit invoices")
	}

	zap.L().Info("recordstore: appended invoice records", zap.Int("count", len(records)))
	return nil
}

func (s *SnowflakeStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return eris.Wrap(err, "recordstore: ping")
	}
	return nil
}

// Close is a no-op; the shared warehouse connection outlives the store.
func (s *SnowflakeStore) Close() error {
	return nil
}

package recordstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/accruals-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. Narrowed so tests can
// substitute a pgxmock pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store against a self-hosted mirror, used by teams
// without direct warehouse write access.
type PostgresStore struct {
	pool Pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS accrual_decisions (
	id                   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lookup_key           TEXT NOT NULL,
	po_number            TEXT NOT NULL,
	vendor_name          TEXT NOT NULL,
	gl_account           TEXT NOT NULL,
	outcome              TEXT NOT NULL,
	needs_accrual        BOOLEAN NOT NULL,
	accrual_amount_local NUMERIC NOT NULL DEFAULT 0,
	accrual_amount_usd   NUMERIC NOT NULL DEFAULT 0,
	currency             TEXT NOT NULL DEFAULT 'USD',
	short_summary        TEXT,
	reasoning            TEXT,
	confidence_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
	input_tokens         BIGINT NOT NULL DEFAULT 0,
	output_tokens        BIGINT NOT NULL DEFAULT 0,
	cost_usd             DOUBLE PRECISION NOT NULL DEFAULT 0,
	processing_seconds   DOUBLE PRECISION NOT NULL DEFAULT 0,
	analysis_month       TEXT NOT NULL,
	analyzed_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_accrual_decisions_month_key
	ON accrual_decisions(analysis_month, lookup_key);

CREATE TABLE IF NOT EXISTS extracted_invoices (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	bill_id            TEXT NOT NULL,
	file_name          TEXT NOT NULL,
	outcome            TEXT NOT NULL,
	is_invoice         BOOLEAN NOT NULL,
	invoice_number     TEXT,
	invoice_date       DATE,
	service_description TEXT,
	service_period     TEXT,
	line_items_summary TEXT,
	total_amount       NUMERIC NOT NULL DEFAULT 0,
	tax_amount         NUMERIC NOT NULL DEFAULT 0,
	net_amount         NUMERIC NOT NULL DEFAULT 0,
	currency           TEXT,
	confidence_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	input_tokens       BIGINT NOT NULL DEFAULT 0,
	output_tokens      BIGINT NOT NULL DEFAULT 0,
	processing_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	extracted_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_extracted_invoices_bill_file
	ON extracted_invoices(bill_id, file_name);
`

// NewPostgres creates a PostgresStore with a connection pool and runs the
// schema migration.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "recordstore: parse postgres config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "recordstore: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "recordstore: ping")
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresWithPool wraps an existing pool without running migrations.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "recordstore: run migration")
	}
	zap.L().Debug("recordstore: postgres schema ready")
	return nil
}

func (s *PostgresStore) AnalyzedKeys(ctx context.Context, month string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT lookup_key FROM accrual_decisions WHERE analysis_month = $1`, month)
	if err != nil {
		return nil, eris.Wrap(err, "recordstore: query analyzed keys")
	}
	defer rows.Close()

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
	return keys, nil
}

func (s *PostgresStore) ProcessedInvoiceKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT bill_id, file_name FROM extracted_invoices`)
	if err != nil {
		return nil, eris.Wrap(err, "recordstore: query processed invoices")
	}
	defer rows.Close()

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
	return keys, nil
}

func (s *PostgresStore) AppendDecisions(ctx context.Context, month string, decisions []model.Decision) error {
	for _, d := range decisions {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO accrual_decisions (
				lookup_key, po_number, vendor_name, gl_account, outcome,
				needs_accrual, accrual_amount_local, accrual_amount_usd, currency,
				short_summary, reasoning, confidence_score,
				input_tokens, output_tokens, cost_usd, processing_seconds,
				analysis_month, analyzed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			d.LookupKey, d.PONumber, d.VendorName, d.GLAccount, string(d.Outcome),
			d.NeedsAccrual, d.AmountLocal, d.AmountUSD, d.Currency,
			d.ShortSummary, d.Reasoning, d.Confidence,
			d.Tokens.InputTokens, d.Tokens.OutputTokens, d.CostUSD, d.Elapsed.Seconds(),
			month, d.AnalyzedAt,
		); err != nil {
			return eris.Wrapf(err, "recordstore: insert decision %s", d.LookupKey)
		}
	}

	zap.L().Info("recordstore: appended decisions",
		zap.String("month", month),
		zap.Int("count", len(decisions)),
	)
	return nil
}

func (s *PostgresStore) AppendInvoices(ctx context.Context, records []model.InvoiceRecord) error {
	for _, r := range records {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO extracted_invoices (
				bill_id, file_name, outcome, is_invoice, invoice_number, invoice_date,
				service_description, service_period, line_items_summary,
				total_amount, tax_amount, net_amount, currency, confidence_score,
				input_tokens, output_tokens, processing_seconds, extracted_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			r.Key.BillID, r.Key.FileName, string(r.Outcome), r.IsInvoice, r.InvoiceNumber, r.InvoiceDate,
			r.ServiceDescription, r.ServicePeriod, r.LineItemsSummary,
			r.TotalAmount, r.TaxAmount, r.NetAmount, r.Currency, r.Confidence,
			r.Tokens.InputTokens, r.Tokens.OutputTokens, r.Elapsed.Seconds(), r.ExtractedAt,
		); err != nil {
			return eris.Wrapf(err, "recordstore: insert invoice %s", r.Key)
		}
	}

	zap.L().Info("recordstore: appended invoice records", zap.Int("count", len(records)))
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		return eris.Wrap(err, "recordstore: ping")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

package warehouse

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/sells-group/accruals-cli/internal/config"
	"github.com/sells-group/accruals-cli/internal/model"
)

const (
	poLinesQuery = `
		SELECT lookup_key, po_number, line_id, vendor_name, requestor, legal_entity,
		       gl_account, description, memo, currency,
		       amount, amount_usd, billed_amount,
		       remaining_balance, remaining_balance_usd,
		       delivery_date, prepaid_start_date, prepaid_end_date
		FROM ACCRUALS_PO_ANALYSIS_INPUT
		ORDER BY po_number, line_id`

	billsQuery = `
		SELECT bill_id, po_id, vendor_name, amount, currency,
		       posting_period, payment_status, created_date, due_date
		FROM ACCRUALS_RELATED_BILLS
		ORDER BY po_id, posting_period DESC, bill_id`

	extractedInvoicesQuery = `
		SELECT bill_id, file_name, invoice_number, invoice_date,
		       service_description, service_period, line_items_summary,
		       total_amount, tax_amount, net_amount, currency, confidence_score
		FROM ACCRUALS_EXTRACTED_INVOICES
		WHERE is_invoice = TRUE
		ORDER BY bill_id, file_name`
)

// SnowflakeClient implements Client against the finance warehouse views.
type SnowflakeClient struct {
	db *sql.DB
}

// Open connects to Snowflake using the configured credentials.
func Open(cfg config.WarehouseConfig) (*SnowflakeClient, error) {
	dsn, err := sf.DSN(&sf.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	})
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: build DSN")
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: open connection")
	}

	zap.L().Info("warehouse: client initialized",
		zap.String("database", cfg.Database),
		zap.String("schema", cfg.Schema),
	)
	return &SnowflakeClient{db: db}, nil
}

// DB exposes the underlying handle so the snowflake record store can share
// the same connection pool instead of opening a second one.
func (c *SnowflakeClient) DB() *sql.DB {
	return c.db
}

func (c *SnowflakeClient) POLines(ctx context.Context) ([]model.POLine, error) {
	rows, err := c.db.QueryContext(ctx, poLinesQuery)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: query po lines")
	}
	defer rows.Close() //nolint:errcheck

	var lines []model.POLine
	for rows.Next() {
		var (
			l                                  model.POLine
			requestor, legalEntity, memo       sql.NullString
			amount, amountUSD, billed          sql.NullFloat64
			remaining, remainingUSD            sql.NullFloat64
			deliveryDate, prepaidFrom, prepaidTo sql.NullTime
		)
		if err := rows.Scan(
			&l.LookupKey, &l.PONumber, &l.LineID, &l.VendorName, &requestor, &legalEntity,
			&l.GLAccount, &l.Description, &memo, &l.Currency,
			&amount, &amountUSD, &billed,
			&remaining, &remainingUSD,
			&deliveryDate, &prepaidFrom, &prepaidTo,
		); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan po line")
		}

		l.Requestor = requestor.String
		l.LegalEntity = legalEntity.String
		l.Memo = memo.String
		l.Amount = nullDecimal(amount)
		l.AmountUSD = nullDecimal(amountUSD)
		l.BilledAmount = nullDecimal(billed)
		l.RemainingBalance = nullDecimal(remaining)
		l.RemainingBalanceUSD = nullDecimal(remainingUSD)
		l.DeliveryDate = nullTime(deliveryDate)
		l.PrepaidStartDate = nullTime(prepaidFrom)
		l.PrepaidEndDate = nullTime(prepaidTo)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "warehouse: iterate po lines")
	}

	zap.L().Info("warehouse: fetched po lines", zap.Int("count", len(lines)))
	return lines, nil
}

func (c *SnowflakeClient) BillsByPO(ctx context.Context) (map[string][]model.Bill, error) {
	rows, err := c.db.QueryContext(ctx, billsQuery)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: query bills")
	}
	defer rows.Close() //nolint:errcheck

	byPO := make(map[string][]model.Bill)
	total := 0
	for rows.Next() {
		var (
			b       model.Bill
			amount  sql.NullFloat64
			dueDate sql.NullTime
		)
		if err := rows.Scan(
			&b.BillID, &b.POID, &b.VendorName, &amount, &b.Currency,
			&b.PostingPeriod, &b.PaymentStatus, &b.CreatedDate, &dueDate,
		); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan bill")
		}
		b.Amount = nullDecimal(amount)
		b.DueDate = nullTime(dueDate)
		byPO[b.POID] = append(byPO[b.POID], b)
		total++
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "warehouse: iterate bills")
	}

	zap.L().Info("warehouse: fetched bills",
		zap.Int("bills", total),
		zap.Int("pos", len(byPO)),
	)
	return byPO, nil
}

func (c *SnowflakeClient) ExtractedInvoicesByBill(ctx context.Context) (map[string][]model.InvoiceRecord, error) {
	rows, err := c.db.QueryContext(ctx, extractedInvoicesQuery)
	if err != nil {
		return nil, eris.Wrap(err, "warehouse: query extracted invoices")
	}
	defer rows.Close() //nolint:errcheck

	byBill := make(map[string][]model.InvoiceRecord)
	for rows.Next() {
		var (
			r                               model.InvoiceRecord
			invoiceNumber, description      sql.NullString
			period, lineItems, currency     sql.NullString
			invoiceDate                     sql.NullTime
			totalAmount, taxAmount, netAmt  sql.NullFloat64
			confidence                      sql.NullFloat64
		)
		if err := rows.Scan(
			&r.Key.BillID, &r.Key.FileName, &invoiceNumber, &invoiceDate,
			&description, &period, &lineItems,
			&totalAmount, &taxAmount, &netAmt, &currency, &confidence,
		); err != nil {
			return nil, eris.Wrap(err, "warehouse: scan extracted invoice")
		}

		r.IsInvoice = true
		r.InvoiceNumber = invoiceNumber.String
		r.InvoiceDate = nullTime(invoiceDate)
		r.ServiceDescription = description.String
		r.ServicePeriod = period.String
		r.LineItemsSummary = lineItems.String
		r.TotalAmount = nullDecimal(totalAmount)
		r.TaxAmount = nullDecimal(taxAmount)
		r.NetAmount = nullDecimal(netAmt)
		r.Currency = currency.String
		r.Confidence = confidence.Float64
		byBill[r.Key.BillID] = append(byBill[r.Key.BillID], r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "warehouse: iterate extracted invoices")
	}

	return byBill, nil
}

func (c *SnowflakeClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := c.db.PingContext(ctx); err != nil {
		return eris.Wrap(err, "warehouse: ping")
	}
	return nil
}

func (c *SnowflakeClient) Close() error {
	return c.db.Close()
}

func nullDecimal(v sql.NullFloat64) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v.Float64)
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

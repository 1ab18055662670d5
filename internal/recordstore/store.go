// Package recordstore persists processing results durably so repeated runs
// skip work already done. The store is append-only: decisions and extracted
// invoices are inserted once and never updated, and the known-key reads feed
// the delta selection at the start of each run.
package recordstore

import (
	"context"

	"github.com/sells-group/accruals-cli/internal/model"
)

// Store defines the durable record operations used by the pipelines. A run
// touches the store exactly twice: one read of known keys before work starts
// and one append after the batch drains.
type Store interface {
	// AnalyzedKeys returns the lookup keys already decided for the given
	// analysis month. Keys from other months never suppress work.
	AnalyzedKeys(ctx context.Context, month string) (map[string]struct{}, error)

	// ProcessedInvoiceKeys returns the composite bill|file keys of every
	// document previously run through extraction, regardless of outcome.
	ProcessedInvoiceKeys(ctx context.Context) (map[string]struct{}, error)

	// AppendDecisions inserts the batch's recordable decisions. Existing
	// rows are never modified.
	AppendDecisions(ctx context.Context, month string, decisions []model.Decision) error

	// AppendInvoices inserts extraction results, including non-invoice and
	// failed outcomes so documents are never re-extracted.
	AppendInvoices(ctx context.Context, records []model.InvoiceRecord) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	Close() error
}

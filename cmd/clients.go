package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/accruals-cli/internal/recordstore"
	"github.com/sells-group/accruals-cli/internal/warehouse"
	"github.com/sells-group/accruals-cli/pkg/anthropic"
)

// openWarehouse connects to the warehouse and verifies connectivity before
// any work is scheduled.
func openWarehouse(ctx context.Context) (*warehouse.SnowflakeClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	wh, err := warehouse.Open(cfg.Warehouse)
	if err != nil {
		return nil, err
	}
	if err := wh.Ping(ctx); err != nil {
		wh.Close() //nolint:errcheck
		return nil, err
	}
	return wh, nil
}

// openRecordStore builds the configured record store backend. The snowflake
// driver shares the warehouse connection; postgres opens its own pool.
func openRecordStore(ctx context.Context, wh *warehouse.SnowflakeClient) (recordstore.Store, error) {
	switch cfg.RecordStore.Driver {
	case "snowflake":
		return recordstore.NewSnowflake(wh.DB()), nil
	case "postgres":
		return recordstore.NewPostgres(ctx, cfg.RecordStore.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown record_store.driver %q", cfg.RecordStore.Driver)
	}
}

func newJudge() anthropic.Client {
	return anthropic.NewClient(cfg.Anthropic.Key, anthropic.Options{
		Timeout:        time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second,
		RequestsPerMin: cfg.Anthropic.RequestsPerMin,
	})
}

// resolveMonth validates the analysis month flag ("January 2006" form) and
// defaults to the current month.
func resolveMonth(month string) (string, error) {
	if month == "" {
		return time.Now().Format("January 2006"), nil
	}
	if _, err := time.Parse("January 2006", month); err != nil {
		return "", eris.Errorf("invalid month %q: use the form \"October 2025\"", month)
	}
	return month, nil
}

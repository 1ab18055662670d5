package main

import (
	"fmt"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/accruals-cli/internal/report"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Append reviewed CSV artifacts to the record store",
}

var uploadAnalysisCmd = &cobra.Command{
	Use:   "analysis",
	Short: "Upload the accrual analysis artifact",
	Long: `Upload the accrual analysis artifact.

Appends the reviewed accrual_analysis_results.csv to the record store. Rows
are always appended, never updated; re-running analyze skips lookup keys that
already exist for the month, so duplicate uploads of the same artifact should
be avoided by the operator.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		path := filepath.Join(cfg.Paths.ResultsDir, "accrual_analysis_results.csv")
		decisions, err := report.ReadDecisions(path)
		if err != nil {
			return err
		}
		if len(decisions) == 0 {
			return eris.Errorf("%s has no data rows", path)
		}
		month := decisions[0].AnalysisMonth

		wh, err := openWarehouse(ctx)
		if err != nil {
			return err
		}
		defer wh.Close() //nolint:errcheck

		store, err := openRecordStore(ctx, wh)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		if err := store.AppendDecisions(ctx, month, decisions); err != nil {
			return err
		}

		fmt.Printf("Uploaded %d decisions for %s\n", len(decisions), month)
		return nil
	},
}

var uploadExtractionCmd = &cobra.Command{
	Use:   "extraction",
	Short: "Upload the invoice extraction artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		path := filepath.Join(cfg.Paths.ResultsDir, "invoice_extraction_results.csv")
		records, err := report.ReadInvoiceRecords(path)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return eris.Errorf("%s has no data rows", path)
		}

		wh, err := openWarehouse(ctx)
		if err != nil {
			return err
		}
		defer wh.Close() //nolint:errcheck

		store, err := openRecordStore(ctx, wh)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		if err := store.AppendInvoices(ctx, records); err != nil {
			return err
		}

		fmt.Printf("Uploaded %d invoice records\n", len(records))
		return nil
	},
}

func init() {
	uploadCmd.AddCommand(uploadAnalysisCmd)
	uploadCmd.AddCommand(uploadExtractionCmd)
	rootCmd.AddCommand(uploadCmd)
}

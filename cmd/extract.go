package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/accruals-cli/internal/delta"
	"github.com/sells-group/accruals-cli/internal/docstore"
	"github.com/sells-group/accruals-cli/internal/extractor"
	"github.com/sells-group/accruals-cli/internal/model"
	"github.com/sells-group/accruals-cli/internal/report"
	"github.com/sells-group/accruals-cli/internal/workpool"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract structured data from invoice documents",
	Long: `Extract structured data from invoice documents.

Scans the invoices directory (one subfolder per bill), skips documents already
processed in a previous run, and extracts the rest with bounded concurrency.
Documents the AI classifies as non-invoices are deleted at the source and
excluded from the artifact. --upload appends results to the record store so
future runs skip them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(
			zap.String("command", "extract"),
			zap.String("run_id", uuid.NewString()),
		)
		start := time.Now()

		billID, _ := cmd.Flags().GetString("bill")
		dir, _ := cmd.Flags().GetString("dir")
		workers, _ := cmd.Flags().GetInt("workers")
		upload, _ := cmd.Flags().GetBool("upload")
		assumeAllNew, _ := cmd.Flags().GetBool("assume-all-new")

		if workers <= 0 {
			workers = cfg.Extract.Workers
		}
		root := cfg.Paths.InvoicesDir
		if dir != "" {
			root = dir
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

		var docs []docstore.Document
		docStore := docstore.New(root)
		if billID != "" {
			docs, err = docStore.ScanBill(billID)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return eris.Errorf("bill %s has no documents under %s", billID, root)
			}
		} else {
			docs, err = docStore.Scan()
			if err != nil {
				return err
			}
		}

		known := delta.KeySet(nil)
		if !assumeAllNew {
			known, err = store.ProcessedInvoiceKeys(ctx)
			if err != nil {
				return eris.Wrap(err, "extract: load processed keys (pass --assume-all-new to proceed without the record store)")
			}
		}

		todo := delta.Select(docs, func(d docstore.Document) string { return d.Key.String() }, known)
		log.Info("delta selected",
			zap.Int("documents", len(docs)),
			zap.Int("already_processed", len(docs)-len(todo)),
			zap.Int("to_extract", len(todo)),
		)
		if len(todo) == 0 {
			fmt.Printf("All %d documents already processed\n", len(docs))
			return nil
		}

		stage := extractor.New(newJudge(), docStore, docstore.TextExtractor{}, cfg.Anthropic)
		results := workpool.Run(ctx, todo, workers, func(ctx context.Context, doc docstore.Document) (model.InvoiceRecord, error) {
			return stage.Extract(ctx, doc), nil
		})

		records := make([]model.InvoiceRecord, len(results))
		for i, res := range results {
			if res.Err != nil {
				records[i] = model.InvoiceRecord{
					Key:         todo[i].Key,
					FilePath:    todo[i].Path,
					Outcome:     model.OutcomeError,
					ExtractedAt: time.Now(),
				}
				continue
			}
			records[i] = res.Value
		}

		sink := report.NewSink(cfg.Paths.ResultsDir)
		csvPath, err := sink.WriteInvoiceRecords(records)
		if err != nil {
			return err
		}
		sum := report.SummarizeExtraction(records, time.Since(start))
		sum.Log("extract")

		if upload {
			if err := store.AppendInvoices(ctx, records); err != nil {
				return err
			}
		}

		fmt.Printf("Processed %d documents (%d extracted, %d not invoices, %d failed)\n",
			sum.Total,
			sum.ByOutcome[model.OutcomeExtracted],
			sum.ByOutcome[model.OutcomeNotInvoice],
			sum.ByOutcome[model.OutcomeExtractionFailed]+sum.ByOutcome[model.OutcomeError],
		)
		fmt.Printf("Results: %s\n", csvPath)
		return nil
	},
}

func init() {
	extractCmd.Flags().String("bill", "", "extract documents for a single bill ID")
	extractCmd.Flags().String("dir", "", "override the invoices directory")
	extractCmd.Flags().Int("workers", 0, "parallel workers (default: extract.workers config)")
	extractCmd.Flags().Bool("upload", false, "append results to the record store")
	extractCmd.Flags().Bool("assume-all-new", false, "skip the already-processed check and treat every document as new")
	rootCmd.AddCommand(extractCmd)
}

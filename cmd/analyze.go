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
	"github.com/sells-group/accruals-cli/internal/engine"
	"github.com/sells-group/accruals-cli/internal/evidence"
	"github.com/sells-group/accruals-cli/internal/model"
	"github.com/sells-group/accruals-cli/internal/report"
	"github.com/sells-group/accruals-cli/internal/workpool"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze open PO lines for month-end accruals",
	Long: `Analyze open PO lines for month-end accruals.

Loads candidate PO lines from the warehouse, skips lines already decided for
the analysis month, and runs the remainder through the decision engine with
bounded concurrency. Results are written to a CSV artifact and a summary
workbook; --upload also appends them to the record store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(
			zap.String("command", "analyze"),
			zap.String("run_id", uuid.NewString()),
		)
		start := time.Now()

		monthFlag, _ := cmd.Flags().GetString("month")
		poNumber, _ := cmd.Flags().GetString("po")
		workers, _ := cmd.Flags().GetInt("workers")
		upload, _ := cmd.Flags().GetBool("upload")
		assumeAllNew, _ := cmd.Flags().GetBool("assume-all-new")

		month, err := resolveMonth(monthFlag)
		if err != nil {
			return err
		}
		if workers <= 0 {
			workers = cfg.Engine.Workers
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

		lines, err := wh.POLines(ctx)
		if err != nil {
			return err
		}
		if poNumber != "" {
			lines = filterPO(lines, poNumber)
			if len(lines) == 0 {
				return eris.Errorf("PO %s not found in the analysis view", poNumber)
			}
		}

		// A store failure aborts before workers start unless the operator
		// explicitly opts into reprocessing everything.
		known := delta.KeySet(nil)
		if !assumeAllNew {
			known, err = store.AnalyzedKeys(ctx, month)
			if err != nil {
				return eris.Wrap(err, "analyze: load analyzed keys (pass --assume-all-new to proceed without the record store)")
			}
		}

		todo := delta.Select(lines, func(l model.POLine) string { return l.LookupKey }, known)
		log.Info("delta selected",
			zap.String("month", month),
			zap.Int("candidates", len(lines)),
			zap.Int("already_analyzed", len(lines)-len(todo)),
			zap.Int("to_analyze", len(todo)),
		)
		if len(todo) == 0 {
			fmt.Printf("All %d PO lines already analyzed for %s\n", len(lines), month)
			return nil
		}

		ev, err := evidence.Build(ctx, wh)
		if err != nil {
			return err
		}

		stage := engine.New(newJudge(), ev, cfg.Anthropic, cfg.Engine, month)
		results := workpool.Run(ctx, todo, workers, func(ctx context.Context, line model.POLine) (model.Decision, error) {
			return stage.Analyze(ctx, line), nil
		})

		decisions := make([]model.Decision, len(results))
		for i, res := range results {
			if res.Err != nil {
				decisions[i] = errorDecision(todo[i], month, res.Err)
				continue
			}
			decisions[i] = res.Value
		}

		sink := report.NewSink(cfg.Paths.ResultsDir)
		csvPath, err := sink.WriteDecisions(decisions)
		if err != nil {
			return err
		}
		sum := report.Summarize(decisions, time.Since(start))
		if _, err := sink.WriteSummaryWorkbook(sum, month); err != nil {
			return err
		}
		sum.Log("analyze")

		if upload {
			if err := store.AppendDecisions(ctx, month, decisions); err != nil {
				return err
			}
		}

		fmt.Printf("Analyzed %d PO lines (%d accruals needed, %s USD total)\n",
			sum.Total, sum.AccrualsNeeded, sum.TotalAccrualUSD.StringFixed(2))
		fmt.Printf("Results: %s\n", csvPath)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("month", "", `analysis month, e.g. "October 2025" (default: current month)`)
	analyzeCmd.Flags().String("po", "", "analyze a single PO number")
	analyzeCmd.Flags().Int("workers", 0, "parallel workers (default: engine.workers config)")
	analyzeCmd.Flags().Bool("upload", false, "append results to the record store")
	analyzeCmd.Flags().Bool("assume-all-new", false, "skip the already-analyzed check and treat every line as new")
	rootCmd.AddCommand(analyzeCmd)
}

func filterPO(lines []model.POLine, poNumber string) []model.POLine {
	var out []model.POLine
	for _, l := range lines {
		if l.PONumber == poNumber {
			out = append(out, l)
		}
	}
	return out
}

// errorDecision records a worker panic as a terminal per-item outcome so the
// artifact still carries one row per submitted line.
func errorDecision(line model.POLine, month string, err error) model.Decision {
	return model.Decision{
		LookupKey:     line.LookupKey,
		PONumber:      line.PONumber,
		VendorName:    line.VendorName,
		GLAccount:     line.GLAccount,
		Currency:      line.Currency,
		Outcome:       model.OutcomeError,
		Reasoning:     fmt.Sprintf("ERROR: %s", err.Error()),
		ShortSummary:  "Worker failure",
		AnalysisMonth: month,
		AnalyzedAt:    time.Now(),
	}
}

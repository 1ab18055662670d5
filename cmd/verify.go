package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify configuration and connectivity",
	Long:  "Validates the configuration, connects to the warehouse and record store, and runs a smoke query against the analysis view.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		wh, err := openWarehouse(ctx)
		if err != nil {
			return err
		}
		defer wh.Close() //nolint:errcheck
		fmt.Println("✓ warehouse connection OK")

		store, err := openRecordStore(ctx, wh)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck
		if err := store.Ping(ctx); err != nil {
			return err
		}
		fmt.Printf("✓ record store OK (driver: %s)\n", cfg.RecordStore.Driver)

		lines, err := wh.POLines(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("✓ analysis view OK (%d candidate PO lines)\n", len(lines))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

// File: cmd/check.go
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/orchestrator"
	"github.com/xkilldash9x/formpilot/internal/service"
)

// openDataStore opens the record source for check. Tests swap it for a fake.
var openDataStore = service.InitializeDataStore

func newCheckCmd() *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Loads the records and prints the batch plan without opening a browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger().Named("check")

			ds, err := openDataStore(ctx, cfg.Source(), logger)
			if err != nil {
				return err
			}
			records, err := ds.LoadRecords(ctx)
			if err != nil {
				return fmt.Errorf("failed to load records: %w", err)
			}

			out := cmd.OutOrStdout()
			sizes := orchestrator.GroupSizes(len(records), cfg.Orchestrator().Concurrency)
			fmt.Fprintf(out, "Records: %d\n", len(records))
			fmt.Fprintf(out, "Groups: %d %v\n", len(sizes), sizes)
			if len(records) == 0 {
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ROW\tFIELDS\tURL")
			for _, r := range records {
				fmt.Fprintf(tw, "%d\t%d\t%s\n", r.RowIndex(), len(r.SharedFields()), r.URL())
			}
			return tw.Flush()
		},
	}
	checkCmd.Flags().IntP("concurrency", "j", 0, "Number of sites processed at once (overrides config)")
	checkCmd.Flags().String("source", "", "Record source backend: sheets or csv (overrides config)")
	checkCmd.Flags().String("spreadsheet-id", "", "Google Sheets spreadsheet ID (overrides config)")
	checkCmd.Flags().String("credentials", "", "Service account credentials file (overrides config)")
	return checkCmd
}

// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/reporting"
	"github.com/xkilldash9x/formpilot/internal/service"
)

// componentFactory builds the run components. Tests swap it for a fake.
var componentFactory = service.NewComponentFactory

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Fills and submits the contact form of every site in the spreadsheet",
		Long: `Loads the target records, then visits each site in groups of --concurrency
browser sessions. Every group finishes before the next one starts. The status
column of each row is updated as the run progresses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runBatch(cmd.Context(), cfg, componentFactory())
		},
	}

	runCmd.Flags().IntP("concurrency", "j", 0, "Number of sites processed at once (overrides config)")
	runCmd.Flags().Bool("headless", true, "Run the browser without a visible window (overrides config)")
	runCmd.Flags().String("source", "", "Record source backend: sheets or csv (overrides config)")
	runCmd.Flags().String("spreadsheet-id", "", "Google Sheets spreadsheet ID (overrides config)")
	runCmd.Flags().String("credentials", "", "Service account credentials file (overrides config)")
	runCmd.Flags().StringP("report", "o", "", "Report output path, or 'stdout' (overrides config)")
	runCmd.Flags().String("report-format", "", "Report format: text or json (overrides config)")
	runCmd.Flags().Bool("dry-run", false, "Fill forms without submitting them")

	return runCmd
}

// runBatch executes one batch run end to end.
func runBatch(ctx context.Context, cfg config.Interface, factory service.ComponentFactory) error {
	logger := observability.GetLogger().Named("run")

	reportCfg := cfg.Report()
	reporter, err := reporting.New(reportCfg.Format, reportCfg.Output)
	if err != nil {
		return fmt.Errorf("failed to create reporter: %w", err)
	}
	defer func() {
		if cerr := reporter.Close(); cerr != nil {
			logger.Warn("Failed to close reporter.", zap.Error(cerr))
		}
	}()

	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize run components: %w", err)
	}
	defer components.Shutdown()

	records, err := components.DataStore.LoadRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}
	if len(records) == 0 {
		logger.Info("No records to process.")
		return nil
	}
	logger.Info("Records loaded.", zap.Int("count", len(records)))

	result := components.Orchestrator.Run(ctx, records)

	if err := reporter.Write(result); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if result.Summary.Canceled || errors.Is(ctx.Err(), context.Canceled) {
		logger.Warn("Run aborted before every record was processed.")
		return fmt.Errorf("run aborted: %w", context.Canceled)
	}
	logger.Info("Run complete.", zap.Int("total", result.Summary.Total), zap.Duration("duration", result.Summary.Duration()))
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/council-da-scraper/internal/da"
)

// newRetentionCmd creates the 'retention' subcommand for operational maintenance.
func newRetentionCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Delete stale records and compact the store",
		Long: `Runs only the retention pass against the configured store. With --force
(or VACUUM set in the environment) deletion and compaction run even when
nothing is stale.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := appInstance.Logger()

			report, err := appInstance.Retention(force).Run(cmd.Context(), appInstance.Clock().Now())
			pushMetrics(cmd.Context(), appInstance)
			if err != nil {
				logger.Error("retention failed", zap.Error(err))
				return fmt.Errorf("retention: %w", err)
			}
			logger.Info("retention finished",
				zap.String("cutoff", da.FormatDate(report.Cutoff)),
				zap.Int64("deleted", report.Deleted),
				zap.Bool("compacted", report.Compacted),
				zap.String("compaction_reason", report.CompactionReason),
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "run deletion and compaction regardless of thresholds (VACUUM=0 or VACUUM=false in the environment does not force them)")
	return cmd
}

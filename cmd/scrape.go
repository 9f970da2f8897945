package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/council-da-scraper/internal/da"
)

// newScrapeCmd creates the 'scrape' subcommand: one fetch, extract, persist,
// and retention pass over the configured listing page.
func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Scrape the listing page once",
		Long: `Fetches the configured listing page, upserts every complete application,
applies retention, and exits non-zero if the page appears to be paginated.`,
		Args: cobra.NoArgs,
		RunE: runScrapeCommand,
	}
}

func runScrapeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	p, err := appInstance.Pipeline()
	if err != nil {
		return err
	}
	result, runErr := p.Run(cmd.Context())
	pushMetrics(cmd.Context(), appInstance)

	switch {
	case runErr == nil:
		logger.Info("scrape finished",
			zap.Int("found", result.Found),
			zap.Int("added", result.Added),
			zap.Int64("deleted", result.Retention.Deleted),
		)
	case errors.Is(runErr, da.ErrMultiplePages), errors.Is(runErr, da.ErrPaginationUndetermined):
		logger.Error("pagination is not supported; only the first page was processed", zap.Error(runErr))
	default:
		logger.Error("scrape failed", zap.Error(runErr))
	}
	return runErr
}

// Package cmd defines and implements the CLI commands for the da-scraper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/council-da-scraper/internal/app"
	"github.com/JakeFAU/council-da-scraper/internal/config"
	"github.com/JakeFAU/council-da-scraper/internal/da"
	"github.com/JakeFAU/council-da-scraper/internal/logging"
	"github.com/JakeFAU/council-da-scraper/internal/pipeline"
	"github.com/JakeFAU/council-da-scraper/internal/retention"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// pushTimeout bounds the Pushgateway call made after every command.
const pushTimeout = 10 * time.Second

// App defines the services commands use. It allows tests to inject a fake.
type App interface {
	Close()
	Logger() *zap.Logger
	Clock() da.Clock
	Pipeline() (*pipeline.Pipeline, error)
	Retention(force bool) *retention.Manager
	PushMetrics(ctx context.Context) error
}

// newApp is the application factory; tests replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command. The returned cleanup
// closes whatever services the command opened; cobra skips post-run hooks when
// RunE fails, so callers run it after Execute returns.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile string
		envFile string
		opened  App
	)

	cmd := &cobra.Command{
		Use:   "da-scraper",
		Short: "Scrapes advertised development applications from a council listing page.",
		Long: `da-scraper fetches a council's advertised development-application listing,
stores each application keyed by its council reference, and prunes records that
have not been seen for the configured retention window.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds the application after configuration is loaded but before the
		// subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			opened = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json, or toml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration, if present")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newRetentionCmd())

	cleanup := func() {
		if opened == nil {
			return
		}
		logger := opened.Logger()
		opened.Close()
		_ = logger.Sync()
		opened = nil
	}
	return cmd, cleanup
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// pushMetrics is best effort; a missing Pushgateway never fails the command.
func pushMetrics(ctx context.Context, appInstance App) {
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	if err := appInstance.PushMetrics(pushCtx); err != nil {
		appInstance.Logger().Warn("metrics push failed", zap.Error(err))
	}
}

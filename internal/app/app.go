// Package app initializes and holds the services a command needs, acting as a
// dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/council-da-scraper/internal/clock/system"
	"github.com/JakeFAU/council-da-scraper/internal/config"
	"github.com/JakeFAU/council-da-scraper/internal/da"
	"github.com/JakeFAU/council-da-scraper/internal/extract"
	collyfetcher "github.com/JakeFAU/council-da-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/council-da-scraper/internal/id/uuid"
	"github.com/JakeFAU/council-da-scraper/internal/logging"
	"github.com/JakeFAU/council-da-scraper/internal/metrics"
	"github.com/JakeFAU/council-da-scraper/internal/pipeline"
	"github.com/JakeFAU/council-da-scraper/internal/retention"
	"github.com/JakeFAU/council-da-scraper/internal/storage/gcs"
	"github.com/JakeFAU/council-da-scraper/internal/storage/local"
	"github.com/JakeFAU/council-da-scraper/internal/storage/memory"
	"github.com/JakeFAU/council-da-scraper/internal/storage/postgres"
	"github.com/JakeFAU/council-da-scraper/internal/storage/sqlite"
	"github.com/JakeFAU/council-da-scraper/internal/throttle"
)

type closer interface {
	Close() error
}

// App holds the long-lived services for one command invocation.
type App struct {
	cfg       config.Config
	runID     string
	logger    *zap.Logger
	clock     da.Clock
	store     da.RecordStore
	snapshots da.BlobStore
	metrics   *metrics.Recorder
}

// RunID returns the identifier attached to this invocation's logs and snapshots.
func (a *App) RunID() string { return a.runID }

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store exposes the configured record store.
func (a *App) Store() da.RecordStore { return a.store }

// Metrics exposes the run's metrics recorder.
func (a *App) Metrics() *metrics.Recorder { return a.metrics }

// Clock returns the clock used to stamp records.
func (a *App) Clock() da.Clock { return a.clock }

// New builds every service named by cfg. It fails fast when a store cannot be
// opened; anything already opened is closed before returning the error.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	runID, err := uuid.New().NewID()
	if err != nil {
		return nil, err
	}
	logger = logging.WithRun(logger, runID)

	clk, err := system.Load(cfg.Scraper.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scraper.timezone: %w", err)
	}

	a := &App{
		cfg:     cfg,
		runID:   runID,
		logger:  logger,
		clock:   clk,
		metrics: metrics.New(cfg.Scraper.URL),
	}

	a.store, err = openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	a.snapshots, err = openSnapshots(ctx, cfg.Snapshot)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	logger.Debug("services initialized",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("snapshot", cfg.Snapshot.Provider),
	)
	return a, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (da.RecordStore, error) {
	switch cfg.Provider {
	case config.ProviderSQLite:
		store, err := sqlite.Open(sqlite.Config{Path: cfg.SQLite.Path, Table: cfg.Table}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.ProviderPostgres:
		store, err := postgres.NewRecordStore(ctx, postgres.RecordStoreConfig{
			DSN:             cfg.Postgres.DSN,
			Table:           cfg.Table,
			MaxConns:        cfg.Postgres.MaxConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.ProviderMemory:
		return memory.NewRecordStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

func openSnapshots(ctx context.Context, cfg config.SnapshotConfig) (da.BlobStore, error) {
	switch cfg.Provider {
	case "", config.SnapshotNone:
		return nil, nil
	case config.SnapshotLocal:
		store, err := local.New(local.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.SnapshotGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.GCS.Bucket})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown snapshot provider: %s", cfg.Provider)
	}
}

// Retention builds the retention manager; force ORs with retention.force_maintenance.
func (a *App) Retention(force bool) *retention.Manager {
	rc := a.cfg.Retention
	return retention.NewManager(a.store, retention.Config{
		MaxAgeDays:            rc.MaxAgeDays,
		CompactionAgeDays:     rc.CompactionAgeDays,
		CompactionProbability: rc.CompactionProbability,
		Force:                 force || rc.ForceMaintenance,
	}, a.logger, retention.WithMetrics(a.metrics))
}

// Pipeline wires the fetcher, extractor, store, snapshots, and retention into a
// scrape run. Each call gets a fresh pacer seeded with throttle.initial_pause.
func (a *App) Pipeline() (*pipeline.Pipeline, error) {
	pacer := throttle.NewPacer(a.cfg.Throttle.ExtraDelay, throttle.WithInitialPause(a.cfg.Throttle.InitialPause))
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:          a.cfg.Scraper.UserAgent,
		Timeout:            a.cfg.HTTP.Timeout,
		InsecureSkipVerify: a.cfg.HTTP.InsecureSkipVerify,
		RespectRobots:      a.cfg.HTTP.RespectRobots,
	}, pacer, a.logger)

	sel := a.cfg.Selectors
	extractor := extract.New(extract.Config{
		Selectors: extract.Selectors{
			Container:  sel.Container,
			Item:       sel.Item,
			Link:       sel.Link,
			Reference:  sel.Reference,
			Address:    sel.Address,
			Pagination: sel.Pagination,
		},
		Jurisdiction: a.cfg.Scraper.Jurisdiction,
	})

	return pipeline.New(pipeline.Deps{
		Fetcher:   fetcher,
		Extractor: extractor,
		Store:     a.store,
		Snapshots: a.snapshots,
		Retention: a.Retention(false),
		Clock:     a.clock,
		Metrics:   a.metrics,
	}, pipeline.Config{
		URL:            a.cfg.Scraper.URL,
		RunID:          a.runID,
		SinglePageText: a.cfg.Scraper.SinglePageText,
		SnapshotPrefix: a.cfg.Snapshot.Prefix,
		ContentType:    a.cfg.Snapshot.ContentType,
	}, a.logger)
}

// PushMetrics sends the run's metrics to the configured Pushgateway, if any.
func (a *App) PushMetrics(ctx context.Context) error {
	return a.metrics.Push(ctx, a.cfg.Metrics.PushURL, a.cfg.Metrics.Job)
}

// Close shuts down every service in the container. Errors are logged.
func (a *App) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("error closing record store", zap.Error(err))
		}
	}
	if c, ok := a.snapshots.(closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("error closing snapshot store", zap.Error(err))
		}
	}
}

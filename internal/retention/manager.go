// Package retention deletes stale records and decides when to compact the store.
package retention

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/council-da-scraper/internal/da"
	"github.com/JakeFAU/council-da-scraper/internal/metrics"
)

// Default policy values. DefaultCompactionProbability is the configured default;
// NewManager never substitutes it, since a zero probability disables the random trigger.
const (
	DefaultMaxAgeDays            = 30
	DefaultCompactionAgeDays     = 35
	DefaultCompactionProbability = 0.03
)

// Compaction trigger reasons.
const (
	ReasonRandom  = "random"
	ReasonBacklog = "backlog"
	ReasonForced  = "forced"
)

// Config tunes the retention policy.
type Config struct {
	MaxAgeDays            int
	CompactionAgeDays     int
	CompactionProbability float64
	// Force runs deletion and compaction even when nothing is stale.
	Force bool
}

// Report summarises one retention pass.
type Report struct {
	Cutoff           time.Time
	CompactionCutoff time.Time
	Stale            int64
	Oldest           time.Time
	Deleted          int64
	Compacted        bool
	CompactionReason string
}

// Store is the subset of da.RecordStore retention needs.
type Store interface {
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, time.Time, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Compact(ctx context.Context) error
}

// Option customises a Manager.
type Option func(*Manager)

// WithRandom replaces the random source; fn must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(m *Manager) {
		if fn != nil {
			m.random = fn
		}
	}
}

// WithMetrics records deletions and compactions.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(m *Manager) { m.metrics = rec }
}

// Manager applies the retention policy against a Store.
type Manager struct {
	store   Store
	cfg     Config
	random  func() float64
	metrics *metrics.Recorder
	logger  *zap.Logger
}

// NewManager fills zero or negative ages with their defaults. A zero
// CompactionProbability is kept as is and turns the random trigger off.
func NewManager(store Store, cfg Config, logger *zap.Logger, opts ...Option) *Manager {
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = DefaultMaxAgeDays
	}
	if cfg.CompactionAgeDays <= 0 {
		cfg.CompactionAgeDays = DefaultCompactionAgeDays
	}
	if cfg.CompactionProbability < 0 {
		cfg.CompactionProbability = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:  store,
		cfg:    cfg,
		random: rand.Float64,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run deletes records scraped before today minus MaxAgeDays and compacts when
// the random trigger fires, the oldest stale record predates the compaction
// cutoff, or Force is set.
func (m *Manager) Run(ctx context.Context, today time.Time) (Report, error) {
	day := da.DateOf(today)
	report := Report{
		Cutoff:           day.AddDate(0, 0, -m.cfg.MaxAgeDays),
		CompactionCutoff: day.AddDate(0, 0, -m.cfg.CompactionAgeDays),
	}

	stale, oldest, err := m.store.CountOlderThan(ctx, report.Cutoff)
	if err != nil {
		return report, fmt.Errorf("count stale records: %w", err)
	}
	report.Stale, report.Oldest = stale, oldest

	if stale == 0 && !m.cfg.Force {
		m.logger.Debug("no stale records", zap.String("cutoff", da.FormatDate(report.Cutoff)))
		return report, nil
	}

	m.logger.Info(fmt.Sprintf("deleting %d applications scraped between %s and %s",
		stale, da.FormatDate(oldest), da.FormatDate(report.Cutoff)))

	deleted, err := m.store.DeleteOlderThan(ctx, report.Cutoff)
	if err != nil {
		return report, fmt.Errorf("delete stale records: %w", err)
	}
	report.Deleted = deleted
	m.metrics.RecordsDeleted(deleted)

	reason := m.compactionReason(oldest, report.CompactionCutoff)
	if reason == "" {
		return report, nil
	}

	m.logger.Info("running compaction to reclaim space", zap.String("reason", reason))
	if err := m.store.Compact(ctx); err != nil {
		return report, fmt.Errorf("compact store: %w", err)
	}
	report.Compacted = true
	report.CompactionReason = reason
	m.metrics.Compacted(reason)
	return report, nil
}

func (m *Manager) compactionReason(oldest, compactionCutoff time.Time) string {
	switch {
	case m.random() < m.cfg.CompactionProbability:
		return ReasonRandom
	case !oldest.IsZero() && oldest.Before(compactionCutoff):
		return ReasonBacklog
	case m.cfg.Force:
		return ReasonForced
	default:
		return ""
	}
}

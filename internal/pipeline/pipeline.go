// Package pipeline runs one scrape: fetch the listing, extract and validate
// candidates, upsert records, apply retention, then enforce the single-page guard.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/council-da-scraper/internal/da"
	"github.com/JakeFAU/council-da-scraper/internal/hash/sha256"
	"github.com/JakeFAU/council-da-scraper/internal/metrics"
	"github.com/JakeFAU/council-da-scraper/internal/retention"
)

// DefaultSinglePageText is the pagination summary of a one-page listing.
const DefaultSinglePageText = "Page 1 of 1"

// Retention applies the retention policy for a given day.
type Retention interface {
	Run(ctx context.Context, today time.Time) (retention.Report, error)
}

// Config controls Pipeline behavior.
type Config struct {
	URL            string
	RunID          string
	SinglePageText string
	SnapshotPrefix string
	ContentType    string
}

// Deps are the collaborators a Pipeline sequences. Snapshots, Retention, and
// Metrics are optional.
type Deps struct {
	Fetcher   da.Fetcher
	Extractor da.Extractor
	Store     da.RecordStore
	Snapshots da.BlobStore
	Retention Retention
	Clock     da.Clock
	Metrics   *metrics.Recorder
}

// Result summarises a run. It is populated as far as the run got, even on error.
type Result struct {
	Found       int
	Added       int
	PageDigest  string
	SnapshotURI string
	Pagination  da.Pagination
	Retention   retention.Report
}

// Skipped is the number of items found but not persisted.
func (r Result) Skipped() int {
	return r.Found - r.Added
}

// Pipeline is the scrape orchestrator.
type Pipeline struct {
	deps   Deps
	cfg    Config
	hasher *sha256.Hasher
	logger *zap.Logger
}

// New constructs a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if deps.Fetcher == nil || deps.Extractor == nil || deps.Store == nil || deps.Clock == nil {
		return nil, fmt.Errorf("fetcher, extractor, store, and clock are required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("listing url is required")
	}
	if cfg.SinglePageText == "" {
		cfg.SinglePageText = DefaultSinglePageText
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, cfg: cfg, hasher: sha256.New(), logger: logger}, nil
}

// Run executes a single scrape. Fetch, extraction, store, and retention failures
// abort the run; da.ErrMultiplePages and da.ErrPaginationUndetermined are
// returned only after records and retention have been processed.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	var result Result
	today := p.deps.Clock.Now()

	p.logger.Info("fetching listing page", zap.String("url", p.cfg.URL))
	page, err := p.deps.Fetcher.Fetch(ctx, p.cfg.URL)
	if err != nil {
		return result, fmt.Errorf("fetch listing: %w", err)
	}
	p.deps.Metrics.ObserveFetch(page.Elapsed, page.NextPause)
	result.PageDigest = p.hasher.Hash(page.Body)
	p.logger.Debug("fetched listing page",
		zap.Int("bytes", len(page.Body)),
		zap.String("sha256", result.PageDigest),
	)

	result.SnapshotURI = p.archive(ctx, today, page, result.PageDigest)

	listing, err := p.deps.Extractor.Extract(page)
	if err != nil {
		return result, fmt.Errorf("extract listing: %w", err)
	}
	result.Pagination = listing.Pagination

	for _, cand := range listing.Candidates {
		result.Found++
		p.deps.Metrics.ItemFound()

		saved, err := p.save(ctx, cand, today)
		if err != nil {
			return result, err
		}
		if saved {
			result.Added++
		}
	}
	p.logger.Info(fmt.Sprintf("added %d records, skipped %d unprocessable records", result.Added, result.Skipped()),
		zap.Int("found", result.Found),
		zap.Int("added", result.Added),
	)

	if p.deps.Retention != nil {
		report, err := p.deps.Retention.Run(ctx, today)
		result.Retention = report
		if err != nil {
			return result, fmt.Errorf("retention: %w", err)
		}
	}

	if listing.Pagination.Present {
		p.logger.Info("found pagination", zap.String("text", listing.Pagination.Text))
	}
	if err := listing.Pagination.Check(p.cfg.SinglePageText); err != nil {
		p.logger.Error("unsupported pagination", zap.Error(err))
		return result, err
	}

	p.deps.Metrics.MarkSuccess(p.deps.Clock.Now())
	return result, nil
}

// save validates and upserts one candidate. Per-item problems are logged and
// reported as not saved; only store failures are returned.
func (p *Pipeline) save(ctx context.Context, cand da.Candidate, today time.Time) (bool, error) {
	record, err := cand.Record(today)
	switch {
	case errors.Is(err, da.ErrMissingLink):
		p.logger.Debug("skipping item without a detail link")
		p.deps.Metrics.ItemSkipped(metrics.SkipNoLink)
		return false, nil
	case errors.Is(err, da.ErrMissingField):
		p.logger.Warn("skipping item",
			zap.String("reason", err.Error()),
			zap.String("council_reference", cand.CouncilReference),
			zap.String("address", cand.Address),
			zap.String("info_url", cand.InfoURL),
		)
		p.deps.Metrics.ItemSkipped(metrics.SkipMissingField)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("build record: %w", err)
	}

	p.logger.Info("saving record",
		zap.String("council_reference", record.CouncilReference),
		zap.String("address", record.Address),
	)
	if err := p.deps.Store.Upsert(ctx, record); err != nil {
		return false, fmt.Errorf("save record: %w", err)
	}
	p.deps.Metrics.RecordSaved()
	return true, nil
}

// archive stores the raw page; failures are logged and never abort the run.
func (p *Pipeline) archive(ctx context.Context, today time.Time, page da.Page, digest string) string {
	if p.deps.Snapshots == nil {
		return ""
	}
	path := p.snapshotPath(today)
	uri, err := p.deps.Snapshots.PutObject(ctx, path, p.cfg.ContentType, bytes.NewReader(page.Body))
	if err != nil {
		p.logger.Warn("snapshot failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	p.logger.Debug("snapshot stored", zap.String("uri", uri), zap.String("sha256", digest))
	return uri
}

func (p *Pipeline) snapshotPath(today time.Time) string {
	name := p.cfg.RunID
	if name == "" {
		name = fmt.Sprintf("%d", today.Unix())
	}
	day := da.FormatDate(da.DateOf(today))
	prefix := strings.Trim(p.cfg.SnapshotPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", day, name)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, day, name)
}

// Package metrics exposes Prometheus collectors for a scrape run.
//
// A run is a short-lived batch job, so collectors live on a per-run registry
// that is pushed to a Pushgateway when the run ends instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Skip reasons used for da_items_skipped_total.
const (
	SkipNoLink       = "no_link"
	SkipMissingField = "missing_field"
)

// Recorder owns the collectors for one run. A nil *Recorder is a no-op.
type Recorder struct {
	registry *prometheus.Registry
	site     string

	itemsFound    prometheus.Counter
	recordsSaved  prometheus.Counter
	itemsSkipped  *prometheus.CounterVec
	deleted       prometheus.Counter
	compactions   *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	pause         prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// New registers the run collectors on a fresh registry. site is the listing URL.
func New(site string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		site:     SanitizeSite(site),
		itemsFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "da_items_found_total",
			Help: "Listing items seen on the page.",
		}),
		recordsSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "da_records_saved_total",
			Help: "Records upserted into the store.",
		}),
		itemsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "da_items_skipped_total",
			Help: "Listing items dropped before reaching the store, labeled by reason.",
		}, []string{"reason"}),
		deleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "da_records_deleted_total",
			Help: "Records removed by retention.",
		}),
		compactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "da_compactions_total",
			Help: "Store compactions, labeled by trigger.",
		}, []string{"reason"}),
		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "da_fetch_duration_seconds",
			Help:    "Listing page fetch latency, labeled by site.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"site"}),
		pause: factory.NewGauge(prometheus.GaugeOpts{
			Name: "da_throttle_pause_seconds",
			Help: "Pause computed for the next request.",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "da_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without error.",
		}),
	}
}

// SanitizeSite extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Registry exposes the underlying registry (for tests and custom exporters).
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveFetch records how long the listing fetch took and the resulting pause.
func (r *Recorder) ObserveFetch(elapsed, nextPause time.Duration) {
	if r == nil {
		return
	}
	r.fetchDuration.WithLabelValues(r.site).Observe(elapsed.Seconds())
	r.pause.Set(nextPause.Seconds())
}

// ItemFound counts a listing item.
func (r *Recorder) ItemFound() {
	if r == nil {
		return
	}
	r.itemsFound.Inc()
}

// RecordSaved counts an upserted record.
func (r *Recorder) RecordSaved() {
	if r == nil {
		return
	}
	r.recordsSaved.Inc()
}

// ItemSkipped counts a dropped item.
func (r *Recorder) ItemSkipped(reason string) {
	if r == nil {
		return
	}
	r.itemsSkipped.WithLabelValues(reason).Inc()
}

// RecordsDeleted adds retention deletions.
func (r *Recorder) RecordsDeleted(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.deleted.Add(float64(n))
}

// Compacted counts a compaction with its trigger reason.
func (r *Recorder) Compacted(reason string) {
	if r == nil {
		return
	}
	r.compactions.WithLabelValues(reason).Inc()
}

// MarkSuccess stamps the last-success gauge.
func (r *Recorder) MarkSuccess(now time.Time) {
	if r == nil {
		return
	}
	r.lastSuccess.Set(float64(now.Unix()))
}

// Push sends the registry to the Pushgateway at gatewayURL under job, grouped by site.
// An empty gatewayURL disables pushing.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job string) error {
	if r == nil || strings.TrimSpace(gatewayURL) == "" {
		return nil
	}
	err := push.New(gatewayURL, job).
		Gatherer(r.registry).
		Grouping("site", r.site).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// Package collyfetcher implements a paced da.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/council-da-scraper/internal/da"
	"github.com/JakeFAU/council-da-scraper/internal/throttle"
)

// Config controls collector behavior.
type Config struct {
	UserAgent          string
	Timeout            time.Duration
	InsecureSkipVerify bool
	RespectRobots      bool
}

// Fetcher issues single GETs, pausing before each one for as long as the
// previous response took plus the pacer's extra delay.
type Fetcher struct {
	cfg           Config
	pacer         *throttle.Pacer
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. A nil pacer gets the default extra delay.
func New(cfg Config, pacer *throttle.Pacer, logger *zap.Logger) *Fetcher {
	if pacer == nil {
		pacer = throttle.NewPacer(throttle.DefaultExtraDelay)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport(cfg.InsecureSkipVerify))

	return &Fetcher{
		cfg:           cfg,
		pacer:         pacer,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch waits out the pending pause, then GETs url and records the next pause.
func (f *Fetcher) Fetch(ctx context.Context, url string) (da.Page, error) {
	if pause, primed := f.pacer.Pause(); primed {
		f.logger.Info("pausing before request", zap.Duration("pause", pause))
	}
	if _, err := f.pacer.Wait(ctx); err != nil {
		return da.Page{}, err
	}

	var (
		page     da.Page
		fetchErr error
	)
	collector := f.buildCollector(&page, &fetchErr)

	start := time.Now()
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return da.Page{}, err
	}
	elapsed := time.Since(start)
	next := f.pacer.Record(elapsed)

	page.URL = url
	page.Elapsed = elapsed
	page.NextPause = next
	f.logger.Debug("fetched page",
		zap.String("url", url),
		zap.Int("status", page.StatusCode),
		zap.Int("bytes", len(page.Body)),
		zap.Duration("elapsed", elapsed),
		zap.Duration("next_pause", next),
	)
	return page, nil
}

func (f *Fetcher) buildCollector(result *da.Page, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func configureCollectorHooks(hooks collectorHooks, result *da.Page, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = da.Page{
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport(insecure bool) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		// #nosec G402 -- the council site's certificate chain is not validated; opt-out via config.
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: insecure},
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Package ingest polls each configured run's metrics endpoint and
// appends the extracted scalar samples to the series store. It is the
// data-fetch collaborator of the compute engine: a run whose scrape
// fails simply contributes no new samples that cycle, which downstream
// code already treats as "no data yet".
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/scalarboard/scalarboard/internal/config"
	"github.com/scalarboard/scalarboard/internal/series"
	"github.com/scalarboard/scalarboard/internal/store"
)

const scrapeTimeout = 10 * time.Second

// Collector scrapes all configured sources on an interval.
type Collector struct {
	st     *store.Store
	client *http.Client
	now    func() time.Time // injectable for deterministic tests

	mu           sync.Mutex
	cfg          config.IngestConfig
	fallbackStep map[string]int64 // per-run scrape counter, used without a step metric
}

// New creates a Collector feeding st from the sources in cfg.
func New(st *store.Store, cfg config.IngestConfig) *Collector {
	return &Collector{
		st:           st,
		client:       &http.Client{Timeout: scrapeTimeout},
		now:          time.Now,
		cfg:          cfg,
		fallbackStep: make(map[string]int64),
	}
}

// SetSources swaps the scraped source list, used by config hot-reload.
func (c *Collector) SetSources(cfg config.IngestConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	slog.Info("ingest: sources updated", "sources", len(cfg.Sources))
}

// Run polls every source each ScrapeInterval until ctx is cancelled.
// One immediate scrape happens at startup so charts have data before the
// first tick.
func (c *Collector) Run(ctx context.Context) {
	c.ScrapeOnce(ctx)

	c.mu.Lock()
	interval := c.cfg.ScrapeInterval
	c.mu.Unlock()
	if interval <= 0 {
		interval = config.DefaultScrapeInterval
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.ScrapeOnce(ctx)
		}
	}
}

// ScrapeOnce scrapes every source a single time. Per-source failures are
// logged and skipped; the cycle always completes.
func (c *Collector) ScrapeOnce(ctx context.Context) {
	c.mu.Lock()
	sources := c.cfg.Sources
	c.mu.Unlock()

	for _, src := range sources {
		if err := c.scrapeSource(ctx, src); err != nil {
			slog.Warn("ingest: scrape failed", "run", src.Run, "endpoint", src.Endpoint, "err", err)
		}
	}
}

func (c *Collector) scrapeSource(ctx context.Context, src config.Source) error {
	mfs, err := c.fetch(ctx, src.Endpoint)
	if err != nil {
		return err
	}

	wallTime := float64(c.now().UnixNano()) / 1e9
	step := c.stepFor(src, mfs)

	for tag, metric := range src.Metrics {
		mf, ok := mfs[metric]
		if !ok {
			slog.Debug("ingest: metric absent from scrape", "run", src.Run, "metric", metric)
			continue
		}
		value, ok := firstValue(mf)
		if !ok {
			continue
		}
		if err := c.st.Append(src.Run, tag, series.Sample{
			Step:     step,
			WallTime: wallTime,
			Value:    value,
		}); err != nil {
			slog.Error("ingest: append failed", "run", src.Run, "tag", tag, "err", err)
		}
	}
	return nil
}

// stepFor resolves the sample step: the configured step counter when
// present in the scrape, otherwise a per-run scrape count.
func (c *Collector) stepFor(src config.Source, mfs map[string]*dto.MetricFamily) int64 {
	if src.StepMetric != "" {
		if mf, ok := mfs[src.StepMetric]; ok {
			if v, ok := firstValue(mf); ok {
				return int64(v)
			}
		}
		slog.Debug("ingest: step metric absent, using scrape count", "run", src.Run, "metric", src.StepMetric)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	step := c.fallbackStep[src.Run]
	c.fallbackStep[src.Run] = step + 1
	return step
}

// fetch performs an HTTP GET and parses the Prometheus text exposition.
func (c *Collector) fetch(ctx context.Context, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric
// families. A partial result with a non-fatal parse warning is still
// returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// firstValue extracts the first counter, gauge, or untyped value from a
// MetricFamily. Histograms and summaries are not scalar charts' input.
func firstValue(mf *dto.MetricFamily) (float64, bool) {
	for _, m := range mf.GetMetric() {
		switch {
		case m.Gauge != nil:
			return m.Gauge.GetValue(), true
		case m.Counter != nil:
			return m.Counter.GetValue(), true
		case m.Untyped != nil:
			return m.Untyped.GetValue(), true
		}
	}
	return 0, false
}

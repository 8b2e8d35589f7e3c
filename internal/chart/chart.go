package chart

import (
	"context"
	"sync"

	"github.com/scalarboard/scalarboard/internal/dispatch"
	"github.com/scalarboard/scalarboard/internal/locate"
	"github.com/scalarboard/scalarboard/internal/series"
	"github.com/scalarboard/scalarboard/internal/tooltip"
)

// palette provides per-run line colors, assigned by run index.
var palette = []string{
	"#ff7f0e", "#1f77b4", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

// RunData is one run's contribution to a chart: a label and its raw
// series. A nil Series means the run is still loading and is treated as
// empty.
type RunData struct {
	Name   string
	Series series.RawSeries
}

// Params are the user-tunable compute settings for a chart.
type Params struct {
	SmoothingFactor float64
	ExcludeOutliers bool
}

// SeriesView is one run's smoothed series plus display attributes.
type SeriesView struct {
	Run    string                `json:"run"`
	Color  string                `json:"color"`
	Points series.SmoothedSeries `json:"points"`
}

// Snapshot is the published, render-ready state of a chart. A nil range
// means auto-scale.
type Snapshot struct {
	Tag             string        `json:"tag"`
	Series          []SeriesView  `json:"series"`
	XRange          *series.Range `json:"x_range,omitempty"`
	YRange          *series.Range `json:"y_range,omitempty"`
	SmoothingFactor float64       `json:"smoothing_factor"`
	ExcludeOutliers bool          `json:"exclude_outliers"`
}

// TooltipRow is a TooltipEntry plus its aligned text rendering.
type TooltipRow struct {
	series.TooltipEntry
	StepText     string `json:"step_text"`
	ValueText    string `json:"value_text"`
	SmoothedText string `json:"smoothed_text"`
}

// Chart is one logical chart. All methods are safe for concurrent use.
type Chart struct {
	tag  string
	slot *dispatch.Slot

	mu      sync.Mutex
	snap    Snapshot
	hasSnap bool
	waiters []chan buildOutcome
}

type buildOutcome struct {
	snap Snapshot
	err  error
}

// New creates a chart for tag with its own dispatch slot.
func New(tag string, opts dispatch.Options) *Chart {
	return &Chart{
		tag:  tag,
		slot: dispatch.NewSlot(opts),
		snap: Snapshot{Tag: tag},
	}
}

// Close releases the chart's dispatch slot.
func (c *Chart) Close() { c.slot.Close() }

// Latest returns the most recently published snapshot. ok is false until
// the first refresh settles.
func (c *Chart) Latest() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap, c.hasSnap
}

// Update re-dispatches the chart's computation for new data or
// parameters and returns immediately. The result is published via
// Latest (and any pending Build calls) once it settles; superseded
// requests are silently discarded.
func (c *Chart) Update(ctx context.Context, runs []RunData, p Params) {
	c.refresh(ctx, runs, p)
}

// Build refreshes the chart and waits for a settled snapshot. If this
// request is superseded while in flight, Build returns the superseding
// request's snapshot instead — the caller only ever observes the latest
// state, per the dispatch contract.
func (c *Chart) Build(ctx context.Context, runs []RunData, p Params) (Snapshot, error) {
	wait := make(chan buildOutcome, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, wait)
	c.mu.Unlock()

	c.refresh(ctx, runs, p)

	select {
	case out := <-wait:
		return out.snap, out.err
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// refresh dispatches the smooth-then-range pipeline as one slot request
// and publishes on settlement. The whole pipeline holds a single
// generation, so a newer refresh supersedes every stage of an older one
// and a superseded pipeline can never publish. A nil range from the slot
// means there was nothing to range over (auto-scale axes).
func (c *Chart) refresh(ctx context.Context, runs []RunData, p Params) {
	datasets := make([]series.RawSeries, len(runs))
	labels := make([]string, len(runs))
	for i, r := range runs {
		datasets[i] = r.Series
		labels[i] = r.Name
	}

	c.slot.Process(ctx, datasets, p.SmoothingFactor, p.ExcludeOutliers, func(smoothed []series.SmoothedSeries, r *series.Range, err error) {
		if err != nil {
			c.settleErr(err)
			return
		}
		c.publish(c.compose(labels, smoothed, r, p))
	})
}

// compose assembles a Snapshot from settled results. The x range comes
// straight from the step extent (series are step-sorted); the y range is
// the computed one, widened if degenerate.
func (c *Chart) compose(labels []string, smoothed []series.SmoothedSeries, yr *series.Range, p Params) Snapshot {
	views := make([]SeriesView, len(smoothed))
	for i, ds := range smoothed {
		views[i] = SeriesView{
			Run:    labels[i],
			Color:  palette[i%len(palette)],
			Points: ds,
		}
	}
	return Snapshot{
		Tag:             c.tag,
		Series:          views,
		XRange:          stepExtent(smoothed),
		YRange:          widenDegenerate(yr),
		SmoothingFactor: p.SmoothingFactor,
		ExcludeOutliers: p.ExcludeOutliers,
	}
}

func (c *Chart) publish(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	c.hasSnap = true
	c.notify(buildOutcome{snap: snap})
}

// settleErr reports a failed refresh to waiters without disturbing the
// last good snapshot.
func (c *Chart) settleErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify(buildOutcome{snap: c.snap, err: err})
}

// notify delivers to all pending waiters and clears them. Callers hold c.mu.
func (c *Chart) notify(out buildOutcome) {
	for _, w := range c.waiters {
		w <- out // buffered, never blocks
	}
	c.waiters = nil
}

// TooltipAt answers a cursor hover against the latest published snapshot:
// locate the nearest sample per run, project, sort, and render with
// aligned step widths. Runs synchronously — O(runs · log points).
func (c *Chart) TooltipAt(queryStep, cursorValue float64, method tooltip.SortingMethod) []TooltipRow {
	snap, ok := c.Latest()
	if !ok {
		return nil
	}

	datasets := make([]series.SmoothedSeries, len(snap.Series))
	for i, v := range snap.Series {
		datasets[i] = v.Points
	}

	refs := locate.Nearest(datasets, queryStep)
	entries := make([]series.TooltipEntry, 0, len(refs))
	for _, ref := range refs {
		if ref.Absent() {
			continue
		}
		p := datasets[ref.Run][ref.Index]
		entries = append(entries, series.TooltipEntry{
			RunLabel: snap.Series[ref.Run].Run,
			Color:    snap.Series[ref.Run].Color,
			Value:    p.Value,
			Smoothed: p.Smoothed,
			Step:     p.Step,
			WallTime: p.WallTime,
		})
	}

	sorted := tooltip.Sort(entries, method, cursorValue)
	width := tooltip.StepWidth(datasets)
	rows := make([]TooltipRow, len(sorted))
	for i, e := range sorted {
		rows[i] = TooltipRow{
			TooltipEntry: e,
			StepText:     tooltip.FormatStep(e.Step, width),
			ValueText:    tooltip.FormatValue(e.Value),
			SmoothedText: tooltip.FormatValue(e.Smoothed),
		}
	}
	return rows
}

// stepExtent returns the inclusive step range across all runs, or nil
// (auto-scale) when there are no samples.
func stepExtent(datasets []series.SmoothedSeries) *series.Range {
	var min, max float64
	found := false
	for _, ds := range datasets {
		if len(ds) == 0 {
			continue
		}
		lo, hi := float64(ds[0].Step), float64(ds[len(ds)-1].Step)
		if !found {
			min, max = lo, hi
			found = true
			continue
		}
		if lo < min {
			min = lo
		}
		if hi > max {
			max = hi
		}
	}
	if !found {
		return nil
	}
	return &series.Range{Min: min, Max: max}
}

// widenDegenerate turns a min == max range into a renderable symmetric
// span around the value: ±5% of its magnitude, or ±1 around zero.
func widenDegenerate(r *series.Range) *series.Range {
	if r == nil || r.Min != r.Max {
		return r
	}
	v := r.Min
	pad := v * 0.05
	if pad < 0 {
		pad = -pad
	}
	if pad == 0 {
		pad = 1
	}
	return &series.Range{Min: v - pad, Max: v + pad}
}

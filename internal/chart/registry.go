package chart

import (
	"sort"
	"sync"

	"github.com/scalarboard/scalarboard/internal/dispatch"
)

// Registry tracks one Chart per tag, creating them lazily. Every chart
// gets its own dispatch slot; the slot options are shared.
type Registry struct {
	opts dispatch.Options

	mu     sync.Mutex
	charts map[string]*Chart
}

// NewRegistry creates an empty registry whose charts use opts.
func NewRegistry(opts dispatch.Options) *Registry {
	return &Registry{
		opts:   opts,
		charts: make(map[string]*Chart),
	}
}

// Chart returns the chart for tag, creating it on first use.
func (r *Registry) Chart(tag string) *Chart {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.charts[tag]; ok {
		return c
	}
	c := New(tag, r.opts)
	r.charts[tag] = c
	return c
}

// Tags returns the registered tags, sorted.
func (r *Registry) Tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.charts))
	for tag := range r.charts {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Snapshots returns the latest settled snapshot of every chart that has
// one, ordered by tag.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	charts := make([]*Chart, 0, len(r.charts))
	for _, c := range r.charts {
		charts = append(charts, c)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(charts))
	for _, c := range charts {
		if snap, ok := c.Latest(); ok {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// Close releases every chart's dispatch slot.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.charts {
		c.Close()
	}
	r.charts = make(map[string]*Chart)
}

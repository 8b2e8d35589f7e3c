package series

// Sample is one scalar observation logged by a run. Immutable once
// produced by the ingest layer.
type Sample struct {
	// Step is the logical time index within the run, distinct from wall
	// clock. Steps are strictly increasing within a RawSeries.
	Step int64

	// WallTime is the observation time in seconds since the Unix epoch.
	WallTime float64

	// Value is the logged scalar.
	Value float64
}

// RawSeries is the ordered sample sequence for one run, sorted by Step
// ascending. A nil or empty RawSeries means "no data yet" for that run;
// the engine treats both the same way.
type RawSeries []Sample

// Point is one entry of a SmoothedSeries: the raw sample plus its
// smoothed value.
type Point struct {
	Step     int64   `json:"step"`
	WallTime float64 `json:"wall_time"`
	Value    float64 `json:"value"` // raw logged value
	Smoothed float64 `json:"smoothed"`
}

// SmoothedSeries is index-aligned with the RawSeries it was derived from:
// same length, same order, no insertions or deletions.
type SmoothedSeries []Point

// Range is a closed numeric interval with Min <= Max. The degenerate
// Min == Max case is valid; consumers that need a renderable span must
// widen it themselves (see the chart package).
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// PointRef is a weak reference into a collection of SmoothedSeries:
// Run indexes the series, Index the point within it. It never owns data.
// Index < 0 marks an absent result (the run had no samples).
type PointRef struct {
	Run   int
	Index int
}

// Absent reports whether the reference points at nothing.
func (p PointRef) Absent() bool { return p.Index < 0 }

// TooltipEntry is a display-ready projection of one located point.
// Ephemeral — built for a single render and discarded.
type TooltipEntry struct {
	RunLabel string  `json:"run"`
	Color    string  `json:"color"`
	Value    float64 `json:"value"`
	Smoothed float64 `json:"smoothed"`
	Step     int64   `json:"step"`
	WallTime float64 `json:"wall_time"`
}

// Clone returns a deep copy of s. Used when a series crosses the worker
// boundary, where the original must never be shared.
func (s RawSeries) Clone() RawSeries {
	if s == nil {
		return nil
	}
	out := make(RawSeries, len(s))
	copy(out, s)
	return out
}

// CloneAll deep-copies a dataset collection, preserving nil entries
// (absent runs stay absent).
func CloneAll(datasets []RawSeries) []RawSeries {
	if datasets == nil {
		return nil
	}
	out := make([]RawSeries, len(datasets))
	for i, ds := range datasets {
		out[i] = ds.Clone()
	}
	return out
}

// CloneSmoothed deep-copies a smoothed dataset collection.
func CloneSmoothed(datasets []SmoothedSeries) []SmoothedSeries {
	if datasets == nil {
		return nil
	}
	out := make([]SmoothedSeries, len(datasets))
	for i, ds := range datasets {
		if ds == nil {
			continue
		}
		c := make(SmoothedSeries, len(ds))
		copy(c, ds)
		out[i] = c
	}
	return out
}

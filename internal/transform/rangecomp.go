package transform

import (
	"sort"

	"github.com/scalarboard/scalarboard/internal/series"
)

// Percentile cutoffs for outlier trimming. Not configurable: the engine
// provides one stable default, not tunable statistics.
const (
	lowerPercentile = 5.0
	upperPercentile = 95.0
)

// ComputeRange derives an axis range from the smoothed values of all
// datasets pooled together.
//
// Without exclusion the result is the plain min/max over every smoothed
// value — both endpoints are values actually present in the data. A
// single-point input yields the degenerate (v, v) range; widening it into
// something renderable is the caller's job.
//
// With excludeOutliers, values outside the pooled [P5, P95] nearest-rank
// percentile cutoffs are dropped before taking min/max, so one spike does
// not compress the visible range for everything else. If trimming would
// discard everything, the unfiltered range is returned instead.
//
// Zero total samples is an error (ErrEmptyInput); callers that want
// "auto-scale" semantics must special-case before calling.
func ComputeRange(datasets []series.SmoothedSeries, excludeOutliers bool) (series.Range, error) {
	return RangeOfValues(PoolSmoothed(nil, datasets), excludeOutliers)
}

// PoolSmoothed appends every smoothed value across all datasets to buf,
// run by run in order, and returns the extended slice. Passing a reusable
// buffer (buf[:0]) lets callers amortize the allocation.
func PoolSmoothed(buf []float64, datasets []series.SmoothedSeries) []float64 {
	for _, ds := range datasets {
		for _, p := range ds {
			buf = append(buf, p.Smoothed)
		}
	}
	return buf
}

// RangeOfValues computes the range of an already pooled value set. See
// ComputeRange for the trimming semantics. values is not modified.
func RangeOfValues(values []float64, excludeOutliers bool) (series.Range, error) {
	if len(values) == 0 {
		return series.Range{}, ErrEmptyInput
	}
	if !excludeOutliers {
		return minMax(values), nil
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	lo := percentile(sorted, lowerPercentile)
	hi := percentile(sorted, upperPercentile)

	kept := values[:0:0]
	for _, v := range values {
		if v < lo || v > hi {
			continue
		}
		kept = append(kept, v)
	}
	if len(kept) == 0 {
		// Pathological distribution (e.g. NaN-heavy) — fall back to the
		// unfiltered range rather than inventing one.
		return minMax(values), nil
	}
	return minMax(kept), nil
}

// percentile returns the nearest-rank percentile of an already sorted
// slice. p is in [0,100].
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p / 100.0)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func minMax(values []float64) series.Range {
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return series.Range{Min: min, Max: max}
}

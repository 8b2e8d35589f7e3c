// Package locate finds, per run, the sample nearest a queried x-position.
// It runs synchronously on every cursor movement, so the per-run cost is
// kept at O(log n) via binary search over the step-sorted series.
package locate

import (
	"math"
	"sort"

	"github.com/scalarboard/scalarboard/internal/series"
)

// Nearest returns one PointRef per dataset, referencing the sample whose
// step is closest to queryStep. Ties break toward the earlier step. A run
// with zero samples yields an absent reference (Index == -1); callers must
// handle partial results.
func Nearest(datasets []series.SmoothedSeries, queryStep float64) []series.PointRef {
	out := make([]series.PointRef, len(datasets))
	for r, ds := range datasets {
		out[r] = series.PointRef{Run: r, Index: nearestIndex(ds, queryStep)}
	}
	return out
}

// nearestIndex binary-searches for the insertion point of queryStep and
// compares the two neighboring candidates. Returns -1 for an empty series.
func nearestIndex(ds series.SmoothedSeries, queryStep float64) int {
	if len(ds) == 0 {
		return -1
	}
	// First index whose step is >= queryStep.
	i := sort.Search(len(ds), func(i int) bool {
		return float64(ds[i].Step) >= queryStep
	})
	if i == 0 {
		return 0
	}
	if i == len(ds) {
		return len(ds) - 1
	}
	before := math.Abs(queryStep - float64(ds[i-1].Step))
	after := math.Abs(float64(ds[i].Step) - queryStep)
	// Strict inequality keeps the earlier step on exact midpoints.
	if after < before {
		return i
	}
	return i - 1
}

// Package tooltip orders and renders located points for display. Sorting
// is stable so runs with equal values keep their original order; step
// formatting pads to a shared width derived from the full dataset so the
// tooltip columns line up as the cursor moves.
package tooltip

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/scalarboard/scalarboard/internal/series"
)

// SortingMethod selects how tooltip entries are ordered.
type SortingMethod string

const (
	// SortNone preserves run order.
	SortNone SortingMethod = "none"

	// SortValueDesc orders by smoothed value, highest first.
	SortValueDesc SortingMethod = "value-desc"

	// SortNearest orders by absolute distance between each entry's
	// smoothed value and the cursor's own value, closest first.
	SortNearest SortingMethod = "nearest"
)

// ParseSortingMethod maps a request string to a SortingMethod, defaulting
// to SortNone for unknown or empty input.
func ParseSortingMethod(raw string) SortingMethod {
	switch SortingMethod(strings.TrimSpace(strings.ToLower(raw))) {
	case SortValueDesc:
		return SortValueDesc
	case SortNearest:
		return SortNearest
	default:
		return SortNone
	}
}

// Sort returns the entries ordered by method. The input slice is not
// modified; cursorValue is only consulted for SortNearest.
func Sort(entries []series.TooltipEntry, method SortingMethod, cursorValue float64) []series.TooltipEntry {
	out := make([]series.TooltipEntry, len(entries))
	copy(out, entries)

	switch method {
	case SortValueDesc:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Smoothed > out[j].Smoothed
		})
	case SortNearest:
		sort.SliceStable(out, func(i, j int) bool {
			return math.Abs(out[i].Smoothed-cursorValue) < math.Abs(out[j].Smoothed-cursorValue)
		})
	}
	return out
}

// StepWidth returns the character width of the largest step across the
// datasets, so every step in the tooltip can be padded to the same width.
// Returns 1 for empty input.
func StepWidth(datasets []series.SmoothedSeries) int {
	var max int64
	for _, ds := range datasets {
		if len(ds) == 0 {
			continue
		}
		// Steps are sorted ascending; the last one is the largest.
		if s := ds[len(ds)-1].Step; s > max {
			max = s
		}
	}
	return len(strconv.FormatInt(max, 10))
}

// FormatStep zero-pads step to width characters.
func FormatStep(step int64, width int) string {
	return fmt.Sprintf("%0*d", width, step)
}

// FormatValue renders a scalar compactly: scientific notation for very
// small or very large magnitudes, trimmed fixed-point otherwise.
func FormatValue(v float64) string {
	abs := math.Abs(v)
	switch {
	case v == 0:
		return "0"
	case abs < 1e-3 || abs >= 1e6:
		return strconv.FormatFloat(v, 'e', 3, 64)
	default:
		s := strconv.FormatFloat(v, 'f', 4, 64)
		s = strings.TrimRight(s, "0")
		return strings.TrimRight(s, ".")
	}
}

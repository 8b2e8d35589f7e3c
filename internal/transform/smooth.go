package transform

import (
	"fmt"
	"math"

	"github.com/scalarboard/scalarboard/internal/series"
)

// ValidateFactor checks that a smoothing factor lies in [0,1).
func ValidateFactor(factor float64) error {
	if math.IsNaN(factor) || factor < 0 || factor >= 1 {
		return fmt.Errorf("%w: smoothing factor %v outside [0,1)", ErrInvalidParameter, factor)
	}
	return nil
}

// Smooth applies debiased exponential moving averaging to every dataset
// independently and returns a new collection index-aligned with the input.
//
// factor must be in [0,1). A factor of 0 is the identity pass: the
// smoothed field is still populated (with the raw value) so downstream
// consumers never special-case it. Empty or nil datasets yield empty
// SmoothedSeries. The input is never mutated.
func Smooth(datasets []series.RawSeries, factor float64) ([]series.SmoothedSeries, error) {
	if err := ValidateFactor(factor); err != nil {
		return nil, err
	}
	out := make([]series.SmoothedSeries, len(datasets))
	for i, ds := range datasets {
		out[i] = make(series.SmoothedSeries, len(ds))
		SmoothInto(out[i], ds, factor)
	}
	return out, nil
}

// SmoothInto runs the single-pass EWMA over one run, writing into dst,
// which must have the same length as src:
//
//	acc      = acc*factor + v*(1-factor)
//	smoothed = acc / (1 - factor^(i+1))
//
// The divisor removes the zero-initialization bias; at i == 0 the result
// reduces to the raw value itself. The caller is responsible for factor
// validation. This is the kernel every backend executes — the iteration
// order here is the cross-backend compatibility contract.
func SmoothInto(dst series.SmoothedSeries, src series.RawSeries, factor float64) {
	acc := 0.0
	pow := 1.0 // factor^(i+1), maintained incrementally
	for i, s := range src {
		acc = acc*factor + s.Value*(1-factor)
		pow *= factor
		smoothed := acc
		if debias := 1 - pow; debias > 0 {
			smoothed = acc / debias
		}
		dst[i] = series.Point{
			Step:     s.Step,
			WallTime: s.WallTime,
			Value:    s.Value,
			Smoothed: smoothed,
		}
	}
}

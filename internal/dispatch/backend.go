package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/scalarboard/scalarboard/internal/series"
	"github.com/scalarboard/scalarboard/internal/transform"
)

// Failure taxonomy for dispatched work.
var (
	// ErrBackendUnavailable marks a backend whose initialization failed.
	// Never surfaced to callers — it triggers the fallback chain instead.
	ErrBackendUnavailable = errors.New("dispatch: backend unavailable")

	// ErrComputationFailed marks a single request that errored inside a
	// backend. Recoverable: the backend stays cached for the next request.
	ErrComputationFailed = errors.New("dispatch: computation failed")
)

// Backend executes the two pure engine operations. Implementations must
// not retain references into caller-owned datasets beyond the call.
type Backend interface {
	Name() string
	Smooth(ctx context.Context, datasets []series.RawSeries, factor float64) ([]series.SmoothedSeries, error)
	Range(ctx context.Context, datasets []series.SmoothedSeries, excludeOutliers bool) (series.Range, error)
}

// syncBackend runs the reference kernel inline on the calling goroutine.
// Always available; last link of the fallback chain.
type syncBackend struct{}

func (syncBackend) Name() string { return "sync" }

func (syncBackend) Smooth(_ context.Context, datasets []series.RawSeries, factor float64) ([]series.SmoothedSeries, error) {
	return transform.Smooth(datasets, factor)
}

func (syncBackend) Range(_ context.Context, datasets []series.SmoothedSeries, excludeOutliers bool) (series.Range, error) {
	return transform.ComputeRange(datasets, excludeOutliers)
}

// Accelerated is the in-process fast path: the same kernels, run against
// pooled scratch buffers so steady-state requests allocate only their
// output. One instance is shared process-wide and reused across slots;
// initialization runs a self-check against the reference kernel and fails
// rather than serve divergent results.
type Accelerated struct {
	scratch sync.Pool // *[]float64, pooling buffer for range requests
}

// NewAccelerated builds and self-checks an accelerated engine.
func NewAccelerated() (*Accelerated, error) {
	a := &Accelerated{
		scratch: sync.Pool{New: func() any {
			buf := make([]float64, 0, 1024)
			return &buf
		}},
	}
	if err := a.selfCheck(); err != nil {
		return nil, fmt.Errorf("%w: accelerated self-check: %v", ErrBackendUnavailable, err)
	}
	return a, nil
}

func (a *Accelerated) Name() string { return "accelerated" }

func (a *Accelerated) Smooth(_ context.Context, datasets []series.RawSeries, factor float64) ([]series.SmoothedSeries, error) {
	if err := transform.ValidateFactor(factor); err != nil {
		return nil, err
	}
	out := make([]series.SmoothedSeries, len(datasets))
	for i, ds := range datasets {
		out[i] = make(series.SmoothedSeries, len(ds))
		transform.SmoothInto(out[i], ds, factor)
	}
	return out, nil
}

func (a *Accelerated) Range(_ context.Context, datasets []series.SmoothedSeries, excludeOutliers bool) (series.Range, error) {
	bufp := a.scratch.Get().(*[]float64)
	values := transform.PoolSmoothed((*bufp)[:0], datasets)
	r, err := transform.RangeOfValues(values, excludeOutliers)
	*bufp = values[:0]
	a.scratch.Put(bufp)
	return r, err
}

// selfCheck runs a small fixture through the pooled path and the plain
// reference path and compares. A mismatch means this build cannot be
// trusted for parity and the engine reports itself unavailable.
func (a *Accelerated) selfCheck() error {
	fixture := []series.RawSeries{{
		{Step: 0, Value: 10},
		{Step: 1, Value: 20},
		{Step: 2, Value: 15},
	}}
	const factor = 0.6

	got, err := a.Smooth(context.Background(), fixture, factor)
	if err != nil {
		return err
	}
	want, err := transform.Smooth(fixture, factor)
	if err != nil {
		return err
	}
	for i := range want[0] {
		if got[0][i] != want[0][i] {
			return fmt.Errorf("smooth mismatch at %d: %+v != %+v", i, got[0][i], want[0][i])
		}
	}

	gr, err := a.Range(context.Background(), got, true)
	if err != nil {
		return err
	}
	wr, err := transform.ComputeRange(want, true)
	if err != nil {
		return err
	}
	if gr != wr {
		return fmt.Errorf("range mismatch: %+v != %+v", gr, wr)
	}
	return nil
}

// Process-wide accelerated engine, initialized lazily on first use and
// then reused. Failure is remembered so every slot falls back the same
// way without re-probing.
var (
	sharedMu    sync.Mutex
	sharedAccel *Accelerated
	sharedErr   error
	sharedDone  bool
)

func sharedAccelerated() (Backend, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if !sharedDone {
		sharedAccel, sharedErr = NewAccelerated()
		sharedDone = true
	}
	if sharedErr != nil {
		return nil, sharedErr
	}
	return sharedAccel, nil
}

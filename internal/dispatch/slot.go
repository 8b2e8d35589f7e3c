package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scalarboard/scalarboard/internal/series"
	"github.com/scalarboard/scalarboard/internal/transform"
)

// DefaultTimeout is the defensive per-request ceiling. A hung backend
// never resolves on its own; after this long the slot recomputes the
// request synchronously so the caller still gets an answer.
const DefaultTimeout = 5 * time.Second

// Options configures a Slot. The zero value selects the full fallback
// chain with DefaultTimeout.
type Options struct {
	// DisableAccelerated skips the accelerated engine, e.g. when config
	// marks the deployment as constrained.
	DisableAccelerated bool

	// DisableWorker skips the worker backend, leaving only synchronous
	// computation once the accelerated engine is unavailable.
	DisableWorker bool

	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration

	// Injectable factories, used by tests to force initialization
	// failures and observe the fallback chain. Nil selects the real
	// implementations.
	NewAccelerated func() (Backend, error)
	NewWorker      func() (Backend, error)
}

// Slot is one logical compute site (one chart). It owns a generation
// counter and its cached backend; backend selection happens once, on the
// first dispatch, and is reused for every request after that.
type Slot struct {
	opts Options
	gen  atomic.Uint64

	mu      sync.Mutex // guards backend selection and result delivery
	backend Backend
	worker  *Worker // non-nil when the cached backend is a slot-owned worker
	closed  bool
}

// NewSlot creates an idle slot. No backend is initialized until the first
// dispatch.
func NewSlot(opts Options) *Slot {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.NewAccelerated == nil {
		opts.NewAccelerated = sharedAccelerated
	}
	if opts.NewWorker == nil {
		opts.NewWorker = func() (Backend, error) { return NewWorker() }
	}
	return &Slot{opts: opts}
}

// Generation returns the slot's current generation counter.
func (s *Slot) Generation() uint64 { return s.gen.Load() }

// Close releases the slot's worker, if it spawned one. In-flight results
// are discarded via the generation rule.
func (s *Slot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.worker != nil {
		s.worker.Close()
		s.worker = nil
		s.backend = nil
	}
}

// Smooth dispatches a smoothing request and returns immediately. done is
// invoked exactly once unless a newer request supersedes this one first,
// in which case the result is discarded and done never fires.
func (s *Slot) Smooth(ctx context.Context, datasets []series.RawSeries, factor float64, done func([]series.SmoothedSeries, error)) {
	s.dispatch(ctx,
		func(ctx context.Context, b Backend) (result, error) {
			out, err := b.Smooth(ctx, datasets, factor)
			return result{smoothed: out}, err
		},
		func(res result, err error) { done(res.smoothed, err) },
	)
}

// Range dispatches a range request; same delivery contract as Smooth.
func (s *Slot) Range(ctx context.Context, datasets []series.SmoothedSeries, excludeOutliers bool, done func(series.Range, error)) {
	s.dispatch(ctx,
		func(ctx context.Context, b Backend) (result, error) {
			r, err := b.Range(ctx, datasets, excludeOutliers)
			return result{rng: r, hasRng: true}, err
		},
		func(res result, err error) { done(res.rng, err) },
	)
}

// Process dispatches the full smooth-then-range pipeline as ONE request,
// under a single generation. Chaining the stages through separate Smooth
// and Range calls is not equivalent: the second call would claim a fresh
// generation from inside the first one's delivery, letting an older
// pipeline's tail outrank a newer request that arrived in between.
//
// When smoothing yields zero samples the range stage is skipped and done
// receives a nil range (auto-scale).
func (s *Slot) Process(ctx context.Context, datasets []series.RawSeries, factor float64, excludeOutliers bool, done func([]series.SmoothedSeries, *series.Range, error)) {
	s.dispatch(ctx,
		func(ctx context.Context, b Backend) (result, error) {
			smoothed, err := b.Smooth(ctx, datasets, factor)
			if err != nil {
				return result{}, err
			}
			var total int
			for _, ds := range smoothed {
				total += len(ds)
			}
			if total == 0 {
				return result{smoothed: smoothed}, nil
			}
			r, err := b.Range(ctx, smoothed, excludeOutliers)
			if err != nil {
				return result{}, err
			}
			return result{smoothed: smoothed, rng: r, hasRng: true}, nil
		},
		func(res result, err error) {
			if !res.hasRng {
				done(res.smoothed, nil, err)
				return
			}
			r := res.rng
			done(res.smoothed, &r, err)
		},
	)
}

type result struct {
	smoothed []series.SmoothedSeries
	rng      series.Range
	hasRng   bool
}

func (s *Slot) dispatch(ctx context.Context, compute func(context.Context, Backend) (result, error), done func(result, error)) {
	gen := s.gen.Add(1)

	go func() {
		// Backend selection can itself be slow (first-time init), so it
		// happens off the caller's goroutine too.
		b := s.backendFor()
		res, err := s.runWithTimeout(ctx, b, compute)
		err = classify(err)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen.Load() != gen {
			slog.Debug("dispatch: discarding stale result",
				"generation", gen, "current", s.gen.Load(), "backend", b.Name())
			return
		}
		done(res, err)
	}()
}

// runWithTimeout executes compute on b, falling back to the synchronous
// kernel if the backend neither resolves nor errors within the slot's
// timeout. A panic in the backend is a per-request failure, not a slot
// failure.
func (s *Slot) runWithTimeout(ctx context.Context, b Backend, compute func(context.Context, Backend) (result, error)) (result, error) {
	type outcome struct {
		res result
		err error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("%w: panic: %v", ErrComputationFailed, r)}
			}
		}()
		res, err := compute(ctx, b)
		ch <- outcome{res: res, err: err}
	}()

	t := time.NewTimer(s.opts.Timeout)
	defer t.Stop()

	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		return result{}, ctx.Err()
	case <-t.C:
		slog.Warn("dispatch: backend timed out, recomputing synchronously",
			"backend", b.Name(), "timeout", s.opts.Timeout)
		return compute(ctx, syncBackend{})
	}
}

// backendFor selects and caches the slot's backend on first use:
// accelerated, then worker, then synchronous. Initialization failure of a
// tier is logged and falls through; it is never surfaced to callers.
func (s *Slot) backendFor() Backend {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend != nil {
		return s.backend
	}
	if s.closed {
		return syncBackend{}
	}

	if !s.opts.DisableAccelerated {
		if b, err := s.opts.NewAccelerated(); err == nil {
			s.backend = b
			slog.Debug("dispatch: using accelerated backend")
			return s.backend
		} else {
			slog.Warn("dispatch: accelerated engine unavailable, falling back", "err", err)
		}
	}

	if !s.opts.DisableWorker {
		if b, err := s.opts.NewWorker(); err == nil {
			s.backend = b
			if w, ok := b.(*Worker); ok {
				s.worker = w
			}
			slog.Debug("dispatch: using worker backend")
			return s.backend
		} else {
			slog.Warn("dispatch: worker unavailable, falling back to synchronous", "err", err)
		}
	}

	s.backend = syncBackend{}
	return s.backend
}

// classify maps backend errors onto the engine's failure taxonomy.
// Parameter and empty-input errors pass through untouched; anything else
// that isn't already tagged becomes a recoverable ComputationFailed.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transform.ErrInvalidParameter),
		errors.Is(err, transform.ErrEmptyInput),
		errors.Is(err, ErrComputationFailed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrComputationFailed, err)
	}
}

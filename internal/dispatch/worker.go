package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scalarboard/scalarboard/internal/series"
	"github.com/scalarboard/scalarboard/internal/transform"
)

// workerQueueDepth bounds pending requests per worker. Dispatch issues at
// most a handful of in-flight requests per slot, so a small buffer keeps
// submission non-blocking in practice.
const workerQueueDepth = 8

type workerOp int

const (
	opSmooth workerOp = iota
	opRange
)

// workerRequest is the message sent to a worker goroutine. Datasets are
// deep copies — transferred, never shared with the submitting side.
type workerRequest struct {
	op       workerOp
	raw      []series.RawSeries
	smoothed []series.SmoothedSeries
	factor   float64
	exclude  bool
	reply    chan workerReply
}

// workerReply carries the computed result or an error tag back to the
// submitting side. Result buffers are freshly allocated inside the worker,
// so ownership transfers cleanly with the message.
type workerReply struct {
	smoothed []series.SmoothedSeries
	rng      series.Range
	err      error
}

// Worker is a genuinely parallel backend: a dedicated goroutine that
// processes requests sequentially over a message channel. One Worker is
// lazily spawned per slot and reused for its lifetime.
type Worker struct {
	reqs chan workerRequest
	quit chan struct{}
}

// NewWorker spawns the worker goroutine.
func NewWorker() (*Worker, error) {
	w := &Worker{
		reqs: make(chan workerRequest, workerQueueDepth),
		quit: make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Worker) Name() string { return "worker" }

// Close stops the worker goroutine. Pending requests receive an
// unavailability error.
func (w *Worker) Close() {
	close(w.quit)
}

func (w *Worker) Smooth(ctx context.Context, datasets []series.RawSeries, factor float64) ([]series.SmoothedSeries, error) {
	rep, err := w.submit(ctx, workerRequest{
		op:     opSmooth,
		raw:    series.CloneAll(datasets),
		factor: factor,
	})
	if err != nil {
		return nil, err
	}
	return rep.smoothed, rep.err
}

func (w *Worker) Range(ctx context.Context, datasets []series.SmoothedSeries, excludeOutliers bool) (series.Range, error) {
	rep, err := w.submit(ctx, workerRequest{
		op:       opRange,
		smoothed: series.CloneSmoothed(datasets),
		exclude:  excludeOutliers,
	})
	if err != nil {
		return series.Range{}, err
	}
	return rep.rng, rep.err
}

func (w *Worker) submit(ctx context.Context, req workerRequest) (workerReply, error) {
	req.reply = make(chan workerReply, 1)
	select {
	case w.reqs <- req:
	case <-w.quit:
		return workerReply{}, fmt.Errorf("%w: worker closed", ErrBackendUnavailable)
	case <-ctx.Done():
		return workerReply{}, ctx.Err()
	}
	select {
	case rep := <-req.reply:
		return rep, nil
	case <-w.quit:
		return workerReply{}, fmt.Errorf("%w: worker closed", ErrBackendUnavailable)
	case <-ctx.Done():
		return workerReply{}, ctx.Err()
	}
}

func (w *Worker) loop() {
	for {
		select {
		case <-w.quit:
			return
		case req := <-w.reqs:
			req.reply <- w.handle(req)
		}
	}
}

// handle computes one request with the reference kernel. A panic inside
// the computation is converted to an error tag instead of killing the
// worker, which stays reusable for the next request.
func (w *Worker) handle(req workerRequest) (rep workerReply) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch: worker request panicked", "op", req.op, "panic", r)
			rep = workerReply{err: fmt.Errorf("%w: panic: %v", ErrComputationFailed, r)}
		}
	}()

	switch req.op {
	case opSmooth:
		out, err := transform.Smooth(req.raw, req.factor)
		return workerReply{smoothed: out, err: err}
	case opRange:
		r, err := transform.ComputeRange(req.smoothed, req.exclude)
		return workerReply{rng: r, err: err}
	default:
		return workerReply{err: fmt.Errorf("%w: unknown op %d", ErrComputationFailed, req.op)}
	}
}

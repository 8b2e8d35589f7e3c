// Package dispatch offloads the heavy chart computations (smoothing, axis
// range) so the serving surface never blocks on them.
//
// Each logical compute site — one per chart — owns a Slot. A Slot selects
// a backend once and caches it: the process-shared accelerated engine if
// it initializes, otherwise a private worker goroutine, otherwise the
// inline synchronous kernel. Every dispatch bumps the slot's generation
// counter; a result arriving with a stale generation is discarded
// silently. That discard rule is the only cancellation mechanism — no
// backend is assumed to support preemption. Multi-stage work (Process's
// smooth-then-range pipeline) runs under one generation end to end, so
// supersession is all-or-nothing per request.
//
// All backends execute the transform package's kernels, so results are
// identical regardless of where a request ran.
package dispatch

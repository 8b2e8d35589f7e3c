// Package transform holds the reference compute kernels for the scalar
// pipeline: the debiased exponential-moving-average smoother and the axis
// range computer with optional percentile outlier trimming.
//
// Every dispatch backend (accelerated, worker, synchronous) executes these
// exact functions, so result parity across backends is structural rather
// than something each backend has to re-derive. Iteration order is part of
// the contract: per run, in step order, single pass.
package transform

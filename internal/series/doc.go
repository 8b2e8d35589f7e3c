// Package series defines the data shapes that flow through the scalar
// compute pipeline: raw per-run samples, their smoothed counterparts,
// axis ranges, and the lookup/display projections built from them.
//
// RawSeries values are owned by the ingest layer; the engine borrows them
// read-only for the duration of one compute request. Anything handed to a
// concurrent backend must be cloned first (see Clone / CloneAll).
package series

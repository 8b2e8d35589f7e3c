// Package chart composes the engine's pieces into renderable chart state.
//
// A Chart is one compute site: it owns a dispatch slot, re-dispatches
// smoothing and range work whenever its data or parameters change, and
// publishes the settled result as an immutable Snapshot. Axis ranges are
// widened here when degenerate (min == max is not independently
// renderable), and cursor hovers are answered synchronously from the
// already-smoothed data via TooltipAt.
package chart

package api

import "github.com/scalarboard/scalarboard/internal/chart"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"`
	RunCount int    `json:"run_count"`
	TagCount int    `json:"tag_count"`
}

// ChartResponse is the payload for GET /api/v1/chart: the chart's
// settled snapshot.
type ChartResponse = chart.Snapshot

// TooltipResponse is the payload for GET /api/v1/tooltip.
type TooltipResponse struct {
	Tag  string             `json:"tag"`
	Rows []chart.TooltipRow `json:"rows"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

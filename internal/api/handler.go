// Package api is the HTTP JSON surface over the chart registry and the
// series store: run/tag discovery, on-demand chart computation, and
// cursor tooltips.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/scalarboard/scalarboard/internal/chart"
	"github.com/scalarboard/scalarboard/internal/dispatch"
	"github.com/scalarboard/scalarboard/internal/store"
	"github.com/scalarboard/scalarboard/internal/tooltip"
	"github.com/scalarboard/scalarboard/internal/transform"
)

// Handler serves all /api/v1/* endpoints.
type Handler struct {
	st       *store.Store
	reg      *chart.Registry
	defaults func() chart.Params // current engine defaults, hot-reloadable
	mux      *http.ServeMux
}

// New creates a Handler and registers all routes. defaults supplies the
// engine's current parameter defaults (it is consulted per request so
// config hot-reloads take effect immediately).
func New(st *store.Store, reg *chart.Registry, defaults func() chart.Params) http.Handler {
	h := &Handler{st: st, reg: reg, defaults: defaults, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/runs", h.runs)
	h.mux.HandleFunc("/api/v1/tags", h.tags)
	h.mux.HandleFunc("/api/v1/chart", h.chart)
	h.mux.HandleFunc("/api/v1/tooltip", h.tooltip)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health — liveness plus store counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		RunCount: len(h.st.Runs()),
		TagCount: len(h.st.Tags()),
	})
}

// runs returns GET /api/v1/runs — all known run names.
func (h *Handler) runs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.st.Runs())
}

// tags returns GET /api/v1/tags — all known scalar tags.
func (h *Handler) tags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.st.Tags())
}

// chart returns GET /api/v1/chart?tag=&smoothing=&outliers= — the
// smoothed datasets and axis ranges for one tag. Unspecified parameters
// fall back to the engine defaults.
func (h *Handler) chart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap, ok := h.buildChart(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, snap)
}

// tooltip returns GET /api/v1/tooltip?tag=&step=&value=&sort= — the
// sorted, formatted entries for a cursor position. The chart is built
// (or refreshed) first so the lookup always runs against current data.
func (h *Handler) tooltip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	step, err := strconv.ParseFloat(r.URL.Query().Get("step"), 64)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "step must be a number")
		return
	}
	cursorValue := 0.0
	if raw := r.URL.Query().Get("value"); raw != "" {
		if cursorValue, err = strconv.ParseFloat(raw, 64); err != nil {
			jsonErr(w, http.StatusBadRequest, "value must be a number")
			return
		}
	}
	method := tooltip.ParseSortingMethod(r.URL.Query().Get("sort"))

	if _, ok := h.buildChart(w, r); !ok {
		return
	}
	tag := r.URL.Query().Get("tag")
	rows := h.reg.Chart(tag).TooltipAt(step, cursorValue, method)
	jsonResp(w, http.StatusOK, TooltipResponse{Tag: tag, Rows: rows})
}

// buildChart resolves the request's tag and parameters and runs the
// compute pipeline, writing the error response itself when it fails.
func (h *Handler) buildChart(w http.ResponseWriter, r *http.Request) (chart.Snapshot, bool) {
	q := r.URL.Query()
	tag := q.Get("tag")
	if tag == "" {
		jsonErr(w, http.StatusBadRequest, "tag is required")
		return chart.Snapshot{}, false
	}

	p := h.defaults()
	if raw := q.Get("smoothing"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "smoothing must be a number")
			return chart.Snapshot{}, false
		}
		p.SmoothingFactor = f
	}
	if raw := q.Get("outliers"); raw != "" {
		excl, err := strconv.ParseBool(raw)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "outliers must be a boolean")
			return chart.Snapshot{}, false
		}
		p.ExcludeOutliers = excl
	}

	names, datasets := h.st.Dataset(tag)
	if len(names) == 0 {
		jsonErr(w, http.StatusNotFound, "tag not found")
		return chart.Snapshot{}, false
	}
	runs := make([]chart.RunData, len(names))
	for i := range names {
		runs[i] = chart.RunData{Name: names[i], Series: datasets[i]}
	}

	snap, err := h.reg.Chart(tag).Build(r.Context(), runs, p)
	switch {
	case err == nil:
		return snap, true
	case errors.Is(err, transform.ErrInvalidParameter):
		jsonErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrComputationFailed):
		jsonErr(w, http.StatusInternalServerError, "computation failed")
	default:
		jsonErr(w, http.StatusInternalServerError, err.Error())
	}
	return chart.Snapshot{}, false
}

// --- JSON helpers -----------------------------------------------------------

func jsonResp(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: encode response", "err", err)
	}
}

func jsonErr(w http.ResponseWriter, status int, msg string) {
	jsonResp(w, status, ErrorResponse{Error: msg})
}

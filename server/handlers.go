package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/onnwee/livewatch/live"
)

// StatusSource provides the reconciler snapshot served on /status.
type StatusSource interface {
	Snapshot() live.Status
}

// Ticker runs a reconciliation pass on demand unless one is already running.
type Ticker interface {
	TryTick(ctx context.Context) (live.TickReport, bool)
}

// ReadyCheck is one named readiness probe.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	status StatusSource
	ticker Ticker
	checks []ReadyCheck
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(status StatusSource, ticker Ticker, checks ...ReadyCheck) *Handlers {
	return &Handlers{status: status, ticker: ticker, checks: checks}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleStatus returns the reconciler snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	if h.status == nil {
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.status.Snapshot())
}

// HandleAdminTick runs one tick synchronously and returns its report, or 409
// if a tick is already running.
func (h *Handlers) HandleAdminTick(w http.ResponseWriter, r *http.Request) {
	if h.ticker == nil {
		http.Error(w, "ticker unavailable", http.StatusServiceUnavailable)
		return
	}
	rep, ran := h.ticker.TryTick(r.Context())
	if !ran {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "busy"})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

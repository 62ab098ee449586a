package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"licensebeat/internal/errors"
	"licensebeat/internal/lifecycle"
)

// StatusSource reports the state of the running lifecycle
type StatusSource interface {
	State() lifecycle.State
	Snapshot() lifecycle.Snapshot
}

// HealthHandler handles health and status requests
type HealthHandler struct {
	source StatusSource
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(source StatusSource, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		source: source,
		logger: logger.With(slog.String("handler", "health")),
	}
}

// HealthResponse is the body of a healthy /healthz
type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

// Healthz handles GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	state := h.source.State()
	if state != lifecycle.StateMonitoring {
		h.logger.DebugContext(r.Context(), "health check while not monitoring",
			slog.String("state", state.String()))
		_ = render.Render(w, r, errors.NewErrorResponse(errors.NotMonitoringError(state.String())))
		return
	}
	render.JSON(w, r, HealthResponse{Status: "ok", State: state.String()})
}

// Status handles GET /status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.source.Snapshot())
}

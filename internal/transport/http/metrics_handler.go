package http

import (
	"net/http"

	"github.com/go-chi/render"

	"licensebeat/internal/errors"
)

// MetricsHandler serves the Prometheus exposition
type MetricsHandler struct {
	exporter http.Handler
}

// NewMetricsHandler wraps exporter; a nil exporter reports metrics as disabled.
func NewMetricsHandler(exporter http.Handler) *MetricsHandler {
	return &MetricsHandler{exporter: exporter}
}

// GetMetrics handles GET /metrics
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		_ = render.Render(w, r, errors.NewErrorResponse(errors.ErrMetricsDisabled))
		return
	}
	h.exporter.ServeHTTP(w, r)
}

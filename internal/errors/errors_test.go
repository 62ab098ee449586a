package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Error(t *testing.T) {
	apiErr := &APIError{StatusCode: http.StatusBadRequest, ErrorCode: "INVALID_REQUEST", Message: "Invalid request format"}
	assert.Equal(t, "Invalid request format", apiErr.Error())
}

func TestAPIError_Render(t *testing.T) {
	tests := []struct {
		name       string
		apiError   *APIError
		wantStatus int
	}{
		{name: "not found", apiError: ErrNotFound, wantStatus: http.StatusNotFound},
		{name: "not monitoring", apiError: ErrNotMonitoring, wantStatus: http.StatusServiceUnavailable},
		{name: "internal", apiError: ErrInternalServer, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/healthz", nil)

			require.NoError(t, render.Render(w, r, NewErrorResponse(tt.apiError)))
			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestNotMonitoringError(t *testing.T) {
	apiErr := NotMonitoringError("activating")

	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "NOT_MONITORING", apiErr.ErrorCode)
	assert.Equal(t, map[string]string{"state": "activating"}, apiErr.Details)
}

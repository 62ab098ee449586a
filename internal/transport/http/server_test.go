package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensebeat/internal/lifecycle"
)

type fakeSource struct {
	mu   sync.Mutex
	snap lifecycle.Snapshot
}

func (f *fakeSource) set(state lifecycle.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.State = state
}

func (f *fakeSource) State() lifecycle.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.State
}

func (f *fakeSource) Snapshot() lifecycle.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	if rec.Header().Get("Content-Type") != "" && rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	source := &fakeSource{}
	r := NewRouter(RouterConfig{Source: source, Logger: testLogger()})

	tests := []struct {
		state      lifecycle.State
		wantStatus int
	}{
		{lifecycle.StateIdle, http.StatusServiceUnavailable},
		{lifecycle.StateActivating, http.StatusServiceUnavailable},
		{lifecycle.StateMonitoring, http.StatusOK},
		{lifecycle.StateShuttingDown, http.StatusServiceUnavailable},
		{lifecycle.StateFailed, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			source.set(tt.state)
			rec, body := serve(t, r, "/healthz")

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "ok", body["status"])
				return
			}
			apiErr, ok := body["error"].(map[string]interface{})
			require.True(t, ok, "error body: %s", rec.Body.String())
			assert.Equal(t, "NOT_MONITORING", apiErr["error_code"])
			assert.Equal(t, map[string]interface{}{"state": tt.state.String()}, apiErr["details"])
		})
	}
}

func TestStatus(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	source := &fakeSource{snap: lifecycle.Snapshot{
		State:           lifecycle.StateMonitoring,
		MachineID:       "M1",
		ProcessID:       "P1",
		HeartbeatPeriod: "30s",
		LastHeartbeat:   &at,
		PingsSucceeded:  3,
		PingsFailed:     1,
	}}
	r := NewRouter(RouterConfig{Source: source, Logger: testLogger()})

	rec, body := serve(t, r, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "monitoring", body["state"])
	assert.Equal(t, "M1", body["machine_id"])
	assert.Equal(t, "P1", body["process_id"])
	assert.Equal(t, "30s", body["heartbeat_period"])
	assert.Equal(t, "2026-01-02T03:04:05Z", body["last_heartbeat"])
	assert.EqualValues(t, 3, body["pings_succeeded"])
	assert.EqualValues(t, 1, body["pings_failed"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetrics(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		r := NewRouter(RouterConfig{Source: &fakeSource{}, Logger: testLogger()})
		rec, body := serve(t, r, "/metrics")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		apiErr, ok := body["error"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "METRICS_DISABLED", apiErr["error_code"])
	})

	t.Run("exporter", func(t *testing.T) {
		exporter := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "licensebeat_heartbeat_pings_total 2\n")
		})
		r := NewRouter(RouterConfig{Source: &fakeSource{}, Metrics: exporter, Logger: testLogger()})

		rec, _ := serve(t, r, "/metrics")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "licensebeat_heartbeat_pings_total 2")
	})
}

func TestUnknownRoute(t *testing.T) {
	r := NewRouter(RouterConfig{Source: &fakeSource{}, Logger: testLogger()})
	rec, body := serve(t, r, "/nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestServerServeAndShutdown(t *testing.T) {
	source := &fakeSource{}
	source.set(lifecycle.StateMonitoring)
	srv := NewServer("127.0.0.1:0", RouterConfig{Source: source, Logger: testLogger()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

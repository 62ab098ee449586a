package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensebeat/internal/config"
	"licensebeat/internal/console"
	"licensebeat/internal/errors"
	"licensebeat/internal/infrastructure"
	"licensebeat/internal/lifecycle"
	"licensebeat/internal/shared/testutil"
)

const testAccount = "acct"

type fixedFingerprint string

func (f fixedFingerprint) Fingerprint(context.Context) (string, error) {
	return string(f), nil
}

type brokenFingerprint struct{ err error }

func (f brokenFingerprint) Fingerprint(context.Context) (string, error) {
	return "", f.err
}

// fakeKeygen is a minimal licensing service
type fakeKeygen struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []string
	auth     map[string]string

	validateBody string
}

func newFakeKeygen(t *testing.T) *fakeKeygen {
	t.Helper()
	k := &fakeKeygen{
		auth:         map[string]string{},
		validateBody: testutil.ValidationDocument(false, "NO_MACHINE", "fingerprint is not activated", "L1"),
	}

	prefix := "/v1/accounts/" + testAccount
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+prefix+"/licenses/actions/validate-key", func(w http.ResponseWriter, r *http.Request) {
		k.record("validate-key", r)
		k.write(w, http.StatusOK, k.validateBody)
	})
	mux.HandleFunc("POST "+prefix+"/machines", func(w http.ResponseWriter, r *http.Request) {
		k.record("create-machine", r)
		k.write(w, http.StatusCreated, testutil.MachineDocument("M1", "fp-1", "L1"))
	})
	mux.HandleFunc("POST "+prefix+"/processes", func(w http.ResponseWriter, r *http.Request) {
		k.record("create-process", r)
		k.write(w, http.StatusCreated, testutil.ProcessDocument("P1", "1", "M1", 60))
	})
	mux.HandleFunc("POST "+prefix+"/processes/{id}/actions/ping", func(w http.ResponseWriter, r *http.Request) {
		k.record("ping-process", r)
		k.write(w, http.StatusOK, testutil.ProcessDocument(r.PathValue("id"), "1", "M1", 60))
	})
	mux.HandleFunc("DELETE "+prefix+"/processes/{id}", func(w http.ResponseWriter, r *http.Request) {
		k.record("delete-process "+r.PathValue("id"), r)
		w.WriteHeader(http.StatusNoContent)
	})

	k.srv = httptest.NewServer(mux)
	t.Cleanup(k.srv.Close)
	return k
}

func (k *fakeKeygen) record(op string, r *http.Request) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.requests = append(k.requests, op)
	k.auth[op] = r.Header.Get("Authorization")
}

func (k *fakeKeygen) write(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (k *fakeKeygen) ops() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.requests...)
}

func (k *fakeKeygen) authFor(op string) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.auth[op]
}

type testApp struct {
	*Application
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newTestApp(t *testing.T, k *fakeKeygen, input string, mutate func(*config.Config)) *testApp {
	t.Helper()
	cfg := config.Default()
	cfg.AccountID = testAccount
	cfg.BaseURL = k.srv.URL + "/v1"
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	providers, err := infrastructure.InitializeOTel(config.TelemetryConfig{TraceExporter: "none", MetricExporter: "prometheus"}, logger)
	require.NoError(t, err)

	var out, errOut bytes.Buffer
	a, err := New(cfg, Dependencies{
		Logger:       logger,
		Providers:    providers,
		Console:      console.New(strings.NewReader(input), &out, &errOut),
		Fingerprints: fixedFingerprint("fp-1"),
		HTTPClient:   k.srv.Client(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	return &testApp{Application: a, out: &out, errOut: &errOut}
}

func (a *testApp) start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()
	return done
}

func waitMonitoring(t *testing.T, c *lifecycle.Coordinator) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap := c.Snapshot()
		return snap.State == lifecycle.StateMonitoring && snap.HeartbeatPeriod != ""
	}, 5*time.Second, 5*time.Millisecond)
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop")
		return nil
	}
}

func TestRunActivatesRegistersAndShutsDown(t *testing.T) {
	k := newFakeKeygen(t)
	a := newTestApp(t, k, "KEY-1\n", nil)

	done := a.start(context.Background())
	waitMonitoring(t, a.Coordinator)

	snap := a.Coordinator.Snapshot()
	assert.Equal(t, "M1", snap.MachineID)
	assert.Equal(t, "P1", snap.ProcessID)
	assert.Equal(t, "30s", snap.HeartbeatPeriod)

	a.Coordinator.Shutdown()
	err := waitResult(t, done)
	require.NoError(t, err)
	assert.Equal(t, 0, ExitCode(err))
	assert.Equal(t, lifecycle.StateTerminated, a.Coordinator.State())

	assert.Equal(t, []string{"validate-key", "create-machine", "create-process", "delete-process P1"}, k.ops())
	assert.Empty(t, k.authFor("validate-key"))
	assert.Equal(t, "License KEY-1", k.authFor("create-machine"))
	assert.Equal(t, "License KEY-1", k.authFor("create-process"))
	assert.Equal(t, "License KEY-1", k.authFor("delete-process P1"))

	out := a.out.String()
	for _, line := range []string{
		"Enter a license key: ",
		"Machine successfully activated (machine M1)",
		"Process successfully spawned (process P1)",
		"Heartbeat monitor started... (process P1)",
		"Heartbeat monitor stopping... (process P1)",
		"Process successfully killed (process P1)",
		"Exiting...",
	} {
		assert.Contains(t, out, line)
	}
}

func TestRunWithValidLicenseReusesMachine(t *testing.T) {
	k := newFakeKeygen(t)
	k.validateBody = testutil.ValidationDocument(true, "VALID", "is valid", "L1")

	var retrieved string
	prefix := "/v1/accounts/" + testAccount
	mux := k.srv.Config.Handler.(*http.ServeMux)
	mux.HandleFunc("GET "+prefix+"/machines/{id}", func(w http.ResponseWriter, r *http.Request) {
		k.record("retrieve-machine", r)
		retrieved = r.PathValue("id")
		k.write(w, http.StatusOK, testutil.MachineDocument("M7", "fp-1", "L1"))
	})

	a := newTestApp(t, k, "", func(cfg *config.Config) { cfg.LicenseKey = "KEY-2" })

	done := a.start(context.Background())
	waitMonitoring(t, a.Coordinator)
	a.Coordinator.Shutdown()
	require.NoError(t, waitResult(t, done))

	assert.Equal(t, "fp-1", retrieved)
	assert.Equal(t, []string{"validate-key", "retrieve-machine", "create-process", "delete-process P1"}, k.ops())
	assert.NotContains(t, a.out.String(), "Enter a license key")
}

func TestRunRejectedLicense(t *testing.T) {
	k := newFakeKeygen(t)
	k.validateBody = testutil.ValidationDocument(false, "SUSPENDED", "is suspended", "L1")
	a := newTestApp(t, k, "KEY-1\n", nil)

	err := waitResult(t, a.start(context.Background()))

	var invalid *errors.LicenseInvalid
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "SUSPENDED", invalid.Code)
	assert.Equal(t, 1, ExitCode(err))
	assert.Equal(t, lifecycle.StateFailed, a.Coordinator.State())
	assert.Equal(t, []string{"validate-key"}, k.ops())
}

func TestRunEmptyKey(t *testing.T) {
	k := newFakeKeygen(t)
	a := newTestApp(t, k, "\n", nil)

	err := waitResult(t, a.start(context.Background()))
	assert.ErrorIs(t, err, errors.ErrEmptyLicenseKey)
	assert.Empty(t, k.ops())
	assert.Equal(t, lifecycle.StateIdle, a.Coordinator.State())
}

func TestRunFingerprintFailure(t *testing.T) {
	k := newFakeKeygen(t)
	a := newTestApp(t, k, "KEY-1\n", nil)
	a.Fingerprints = brokenFingerprint{err: errors.ErrEmptyFingerprint}

	err := waitResult(t, a.start(context.Background()))
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, errors.ErrTypeFingerprint, appErr.Type)
	assert.ErrorIs(t, err, errors.ErrEmptyFingerprint)
	assert.Empty(t, k.ops())
	assert.Equal(t, 1, ExitCode(err))
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	k := newFakeKeygen(t)
	a := newTestApp(t, k, "KEY-1\n", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := a.start(ctx)
	waitMonitoring(t, a.Coordinator)

	cancel()
	require.NoError(t, waitResult(t, done))
	assert.Contains(t, k.ops(), "delete-process P1")
}

func TestStatusServerEnabled(t *testing.T) {
	k := newFakeKeygen(t)
	a := newTestApp(t, k, "KEY-1\n", func(cfg *config.Config) { cfg.Status.Addr = "127.0.0.1:0" })
	require.NotNil(t, a.StatusServer)

	done := a.start(context.Background())
	waitMonitoring(t, a.Coordinator)
	a.Coordinator.Shutdown()
	require.NoError(t, waitResult(t, done))
}

func TestStatusServerDisabledByDefault(t *testing.T) {
	a := newTestApp(t, newFakeKeygen(t), "", nil)
	assert.Nil(t, a.StatusServer)
}

func TestMetricsRecordedForRun(t *testing.T) {
	k := newFakeKeygen(t)
	a := newTestApp(t, k, "KEY-1\n", nil)

	done := a.start(context.Background())
	waitMonitoring(t, a.Coordinator)
	a.Coordinator.Shutdown()
	require.NoError(t, waitResult(t, done))

	rec := httptest.NewRecorder()
	a.OTelProviders.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "licensebeat_gateway_requests_total")
	assert.Contains(t, body, "licensebeat_license_activation_attempts_total")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.ErrEmptyLicenseKey))
}

func TestSnapshotServedAsJSON(t *testing.T) {
	a := newTestApp(t, newFakeKeygen(t), "", nil)
	data, err := json.Marshal(a.Coordinator.Snapshot())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"idle"`)
}

func TestNewRejectsMalformedPins(t *testing.T) {
	cfg := config.Default()
	cfg.AccountID = testAccount
	cfg.Gateway.PinnedSPKI = []string{"xyz"}

	_, err := New(cfg, Dependencies{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Console:      console.New(strings.NewReader(""), io.Discard, io.Discard),
		Fingerprints: fixedFingerprint("fp-1"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "certificate pinning")
}

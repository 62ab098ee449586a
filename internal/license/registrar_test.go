package license

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"licensebeat/internal/errors"
	"licensebeat/internal/license/licensetest"
	"licensebeat/pkg/contracts/domain"
)

func TestRegister(t *testing.T) {
	gw := &licensetest.Gateway{Process: &domain.Process{ID: "P1", PID: "4242", Interval: 600}}
	registrar := NewRegistrar(gw, WithLogger(discardLogger()), WithPID("4242"))

	process, err := registrar.Register(context.Background(), &domain.Machine{ID: "M1"}, testKey)
	require.NoError(t, err)

	assert.Equal(t, "P1", process.ID)
	assert.Equal(t, 600, process.Interval)
	assert.Equal(t, "M1", process.MachineID)
	assert.Equal(t, []licensetest.Call{{Op: "create-process", Args: []string{"4242", "M1", testKey}}}, gw.Calls())
}

func TestRegisterDefaultsToOwnPID(t *testing.T) {
	registrar := NewRegistrar(&licensetest.Gateway{}, WithLogger(discardLogger()))
	assert.Equal(t, strconv.Itoa(os.Getpid()), registrar.PID())
}

func TestRegisterRequiresMachineAndKey(t *testing.T) {
	gw := &licensetest.Gateway{}
	registrar := NewRegistrar(gw, WithLogger(discardLogger()))

	_, err := registrar.Register(context.Background(), &domain.Machine{ID: "M1"}, "")
	assert.ErrorIs(t, err, errors.ErrEmptyLicenseKey)

	_, err = registrar.Register(context.Background(), nil, testKey)
	assert.Error(t, err)

	assert.Empty(t, gw.Calls())
}

func TestRegisterPropagatesGatewayError(t *testing.T) {
	gwErr := licensetest.EnvelopeError("create-process", 422, "TOO_MANY_PROCESSES", "process limit reached")
	registrar := NewRegistrar(&licensetest.Gateway{ProcessErr: gwErr}, WithLogger(discardLogger()))

	_, err := registrar.Register(context.Background(), &domain.Machine{ID: "M1"}, testKey)
	assert.Same(t, gwErr, err)
}

func TestDeregister(t *testing.T) {
	gw := &licensetest.Gateway{}
	registrar := NewRegistrar(gw, WithLogger(discardLogger()))

	require.NoError(t, registrar.Deregister(context.Background(), "P1", testKey))
	assert.Equal(t, []licensetest.Call{{Op: "delete-process", Args: []string{"P1", testKey}}}, gw.Calls())
}

func TestDeregisterSurfacesGatewayError(t *testing.T) {
	gwErr := licensetest.EnvelopeError("delete-process", 404, "NOT_FOUND", "process not found")
	registrar := NewRegistrar(&licensetest.Gateway{DeleteErr: gwErr}, WithLogger(discardLogger()))

	err := registrar.Deregister(context.Background(), "P1", testKey)
	assert.Same(t, gwErr, err)
}

func TestRetrieve(t *testing.T) {
	gw := &licensetest.Gateway{}
	registrar := NewRegistrar(gw, WithLogger(discardLogger()))

	res, err := registrar.Retrieve(context.Background(), domain.ResourceMachines, "M1", testKey)
	require.NoError(t, err)
	assert.Equal(t, &domain.Resource{Type: domain.ResourceMachines, ID: "M1"}, res)

	machine, err := registrar.RetrieveMachine(context.Background(), "M1", testKey)
	require.NoError(t, err)
	assert.Equal(t, "M1", machine.ID)
}

func TestRegistrationMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	metrics, err := InitializeMetrics(provider.Meter("test"))
	require.NoError(t, err)

	gw := &licensetest.Gateway{}
	registrar := NewRegistrar(gw, WithLogger(discardLogger()), WithMetrics(metrics))
	activator := NewActivator(gw, registrar, WithLogger(discardLogger()), WithMetrics(metrics))

	_, err = activator.Activate(context.Background(), testFingerprint, testKey)
	require.NoError(t, err)
	_, err = registrar.Register(context.Background(), &domain.Machine{ID: "M1"}, testKey)
	require.NoError(t, err)
	require.NoError(t, registrar.Deregister(context.Background(), "P1", testKey))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					got[m.Name] += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(1), got["licensebeat_license_activation_attempts_total"])
	assert.Equal(t, int64(1), got["licensebeat_license_activation_success_total"])
	assert.Equal(t, int64(1), got["licensebeat_license_process_registrations_total"])
	assert.Equal(t, int64(1), got["licensebeat_license_process_deregistrations_total"])
}

func TestMaskAndHashKey(t *testing.T) {
	assert.Equal(t, "****", MaskKey("short"))
	assert.Equal(t, "ABCD****MNOP", MaskKey(testKey))

	assert.Empty(t, HashKey(""))
	assert.Len(t, HashKey(testKey), 16)
	assert.Equal(t, HashKey(testKey), HashKey(testKey))
}

func TestClassifyError(t *testing.T) {
	assert.Empty(t, classifyError(nil))
	assert.Equal(t, "license_invalid", classifyError(&errors.LicenseInvalid{}))
	assert.Equal(t, "activation_rejected", classifyError(&errors.ActivationRejected{Cause: &errors.GatewayError{}}))
	assert.Equal(t, "network_error", classifyError(&errors.GatewayError{}))
	assert.Equal(t, "gateway_error", classifyError(&errors.GatewayError{StatusCode: 500}))
	assert.Equal(t, "unknown_error", classifyError(errors.ErrEmptyLicenseKey))
}

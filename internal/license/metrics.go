package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the license instruments
type Metrics struct {
	ActivationAttempts metric.Int64Counter
	ActivationSuccess  metric.Int64Counter
	ActivationFailures metric.Int64Counter
	ActivationDuration metric.Float64Histogram

	ProcessRegistrations   metric.Int64Counter
	ProcessDeregistrations metric.Int64Counter
}

// InitializeMetrics creates the license instruments on meter
func InitializeMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ActivationAttempts, err = meter.Int64Counter(
		"licensebeat_license_activation_attempts_total",
		metric.WithDescription("Total number of license activation attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation attempts counter: %w", err)
	}

	m.ActivationSuccess, err = meter.Int64Counter(
		"licensebeat_license_activation_success_total",
		metric.WithDescription("Total number of successful license activations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation success counter: %w", err)
	}

	m.ActivationFailures, err = meter.Int64Counter(
		"licensebeat_license_activation_failures_total",
		metric.WithDescription("Total number of failed license activations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation failures counter: %w", err)
	}

	m.ActivationDuration, err = meter.Float64Histogram(
		"licensebeat_license_activation_duration_seconds",
		metric.WithDescription("License activation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation duration histogram: %w", err)
	}

	m.ProcessRegistrations, err = meter.Int64Counter(
		"licensebeat_license_process_registrations_total",
		metric.WithDescription("Process registrations by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create process registrations counter: %w", err)
	}

	m.ProcessDeregistrations, err = meter.Int64Counter(
		"licensebeat_license_process_deregistrations_total",
		metric.WithDescription("Process deregistrations by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create process deregistrations counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordActivation(ctx context.Context, outcome string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	labels := metric.WithAttributes(attribute.String("outcome", outcome))
	m.ActivationAttempts.Add(ctx, 1, labels)
	m.ActivationDuration.Record(ctx, duration.Seconds(), labels)

	if err == nil {
		m.ActivationSuccess.Add(ctx, 1, labels)
	} else {
		m.ActivationFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("error_type", classifyError(err)),
		))
	}
}

func (m *Metrics) recordRegistration(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.ProcessRegistrations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", err == nil)))
}

func (m *Metrics) recordDeregistration(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.ProcessDeregistrations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", err == nil)))
}

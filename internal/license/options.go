package license

import (
	"log/slog"
	"os"
	"strconv"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"licensebeat/internal/infrastructure"
)

type options struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *Metrics
	pid     string
}

// Option configures an Activator or a Registrar
type Option func(*options)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracer sets the tracer for operation spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithMetrics records operation metrics on m
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithPID overrides the process identifier sent on registration
func WithPID(pid string) Option {
	return func(o *options) {
		o.pid = pid
	}
}

func newOptions(component string, opts []Option) options {
	o := options{
		tracer: tracenoop.NewTracerProvider().Tracer(infrastructure.InstrumentationName),
		pid:    strconv.Itoa(os.Getpid()),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = infrastructure.WithComponent(o.logger, component)
	return o
}

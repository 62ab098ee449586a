package license

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"licensebeat/internal/errors"
	"licensebeat/pkg/contracts/domain"
)

// Gateway is the subset of the licensing service the activator and
// registrar depend on.
type Gateway interface {
	ValidateKey(ctx context.Context, fingerprint, key string) (*domain.ValidationResult, error)
	CreateMachine(ctx context.Context, fingerprint, licenseID, key string) (*domain.Machine, error)
	RetrieveMachine(ctx context.Context, id, key string) (*domain.Machine, error)
	Retrieve(ctx context.Context, typ domain.ResourceType, id, key string) (*domain.Resource, error)
	CreateProcess(ctx context.Context, pid, machineID, key string) (*domain.Process, error)
	DeleteProcess(ctx context.Context, id, key string) error
}

// Registrar registers this process against an activated machine. It holds
// no state between calls.
type Registrar struct {
	gw Gateway
	options
}

// NewRegistrar creates a Registrar
func NewRegistrar(gw Gateway, opts ...Option) *Registrar {
	return &Registrar{gw: gw, options: newOptions("registrar", opts)}
}

// PID returns the process identifier sent on registration
func (r *Registrar) PID() string {
	return r.pid
}

// Register creates a process linked to machine
func (r *Registrar) Register(ctx context.Context, machine *domain.Machine, key string) (*domain.Process, error) {
	if key == "" {
		return nil, errors.ErrEmptyLicenseKey
	}
	if machine == nil || machine.ID == "" {
		return nil, fmt.Errorf("register process: machine id is required")
	}

	ctx, span := r.tracer.Start(ctx, "license.register",
		trace.WithAttributes(
			attribute.String("license.machine_id", machine.ID),
			attribute.String("license.pid", r.pid),
		))
	defer span.End()

	process, err := r.gw.CreateProcess(ctx, r.pid, machine.ID, key)
	r.metrics.recordRegistration(ctx, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.ErrorContext(ctx, "process registration failed",
			slog.String("machine_id", machine.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	r.logger.InfoContext(ctx, "process registered",
		slog.String("process_id", process.ID),
		slog.String("machine_id", machine.ID),
		slog.String("pid", r.pid),
		slog.Int("interval_seconds", process.Interval),
	)
	return process, nil
}

// Deregister deletes a process. A no-content response counts as success.
func (r *Registrar) Deregister(ctx context.Context, processID, key string) error {
	ctx, span := r.tracer.Start(ctx, "license.deregister",
		trace.WithAttributes(attribute.String("license.process_id", processID)))
	defer span.End()

	err := r.gw.DeleteProcess(ctx, processID, key)
	r.metrics.recordDeregistration(ctx, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.ErrorContext(ctx, "process deregistration failed",
			slog.String("process_id", processID),
			slog.String("error", err.Error()),
		)
		return err
	}

	r.logger.InfoContext(ctx, "process deregistered", slog.String("process_id", processID))
	return nil
}

// Retrieve looks up any resource by type and id
func (r *Registrar) Retrieve(ctx context.Context, typ domain.ResourceType, id, key string) (*domain.Resource, error) {
	return r.gw.Retrieve(ctx, typ, id, key)
}

// RetrieveMachine looks up a machine by id or fingerprint
func (r *Registrar) RetrieveMachine(ctx context.Context, id, key string) (*domain.Machine, error) {
	machine, err := r.gw.RetrieveMachine(ctx, id, key)
	if err != nil {
		r.logger.DebugContext(ctx, "machine lookup failed", slog.String("error", err.Error()))
		return nil, err
	}
	return machine, nil
}

package license

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"licensebeat/internal/errors"
	"licensebeat/pkg/contracts/domain"
)

// Activator makes sure the local fingerprint holds a seat on a license.
type Activator struct {
	gw        Gateway
	registrar *Registrar
	options
}

// NewActivator creates an Activator. Existing machines are resolved through
// registrar.
func NewActivator(gw Gateway, registrar *Registrar, opts ...Option) *Activator {
	return &Activator{gw: gw, registrar: registrar, options: newOptions("activator", opts)}
}

// Activate validates key scoped to fingerprint and returns the machine
// holding the seat, claiming one when the fingerprint has none. At most one
// claim is attempted and nothing is retried.
func (a *Activator) Activate(ctx context.Context, fingerprint, key string) (*domain.Machine, error) {
	if key == "" {
		return nil, errors.ErrEmptyLicenseKey
	}
	if fingerprint == "" {
		return nil, errors.ErrEmptyFingerprint
	}

	ctx, span := a.tracer.Start(ctx, "license.activate",
		trace.WithAttributes(attribute.String("license.key_prefix", MaskKey(key))))
	defer span.End()

	logger := a.logger.With(
		slog.String("license_key_masked", MaskKey(key)),
		slog.String("license_key_hash", HashKey(key)),
	)

	start := time.Now()
	machine, outcome, err := a.activate(ctx, logger, fingerprint, key)
	duration := time.Since(start)
	a.metrics.recordActivation(ctx, outcome, duration, err)

	span.SetAttributes(attribute.String("license.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("license.error_type", classifyError(err)))
		logger.ErrorContext(ctx, "license activation failed",
			slog.String("outcome", outcome),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	span.SetAttributes(attribute.String("license.machine_id", machine.ID))
	logger.InfoContext(ctx, "license activated",
		slog.String("outcome", outcome),
		slog.String("machine_id", machine.ID),
		slog.Duration("duration", duration),
	)
	return machine, nil
}

func (a *Activator) activate(ctx context.Context, logger *slog.Logger, fingerprint, key string) (*domain.Machine, string, error) {
	res, err := a.gw.ValidateKey(ctx, fingerprint, key)
	if err != nil {
		return nil, "validate_failed", err
	}

	outcome := Classify(res)
	logger.DebugContext(ctx, "license validated",
		slog.Bool("valid", res.Valid),
		slog.String("code", codeOf(res)),
		slog.String("outcome", outcome.String()),
		slog.String("license_id", res.LicenseID),
	)

	switch outcome {
	case OutcomeValid:
		machine, err := a.registrar.RetrieveMachine(ctx, fingerprint, key)
		return machine, outcome.String(), err

	case OutcomeClaimSeat:
		machine, err := a.gw.CreateMachine(ctx, fingerprint, res.LicenseID, key)
		if err != nil {
			return nil, outcome.String(), &errors.ActivationRejected{
				Fingerprint: fingerprint,
				LicenseID:   res.LicenseID,
				Cause:       err,
			}
		}
		return machine, outcome.String(), nil

	case OutcomeReject:
		return nil, outcome.String(), &errors.LicenseInvalid{Detail: res.Detail, Code: codeOf(res)}
	}

	return nil, outcome.String(), &errors.LicenseInvalid{Detail: res.Detail, Code: codeOf(res)}
}

// codeOf returns the code as the service sent it
func codeOf(res *domain.ValidationResult) string {
	if res.RawCode != "" {
		return res.RawCode
	}
	return string(res.Code)
}

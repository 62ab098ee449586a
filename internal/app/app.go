package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"licensebeat/internal/config"
	"licensebeat/internal/console"
	apperrors "licensebeat/internal/errors"
	"licensebeat/internal/fingerprint"
	"licensebeat/internal/gateway"
	"licensebeat/internal/heartbeat"
	"licensebeat/internal/infrastructure"
	"licensebeat/internal/license"
	"licensebeat/internal/lifecycle"
	"licensebeat/internal/security"
	transport "licensebeat/internal/transport/http"
)

const closeTimeout = 5 * time.Second

// Fingerprinter identifies the current machine
type Fingerprinter interface {
	Fingerprint(ctx context.Context) (string, error)
}

// Dependencies are the process-level collaborators of an Application.
// Zero fields get production defaults.
type Dependencies struct {
	Logger       *slog.Logger
	Providers    *infrastructure.OTelProviders
	Console      *console.Console
	Fingerprints Fingerprinter
	HTTPClient   *http.Client
}

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Console       *console.Console
	Fingerprints  Fingerprinter
	Gateway       *gateway.Client
	Coordinator   *lifecycle.Coordinator
	StatusServer  *transport.Server // nil when disabled
}

// NewApplication loads configuration and builds the application on the
// process streams.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Logging
	logCfg.Level = cfg.LogLevel()
	logger, err := infrastructure.InitializeLogger(logCfg)
	if err != nil {
		return nil, apperrors.NewTelemetryError("failed to initialize logger", err)
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.String("account_url", cfg.AccountURL()))

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, apperrors.NewTelemetryError("failed to initialize OpenTelemetry", err)
	}

	return New(cfg, Dependencies{
		Logger:    logger,
		Providers: providers,
		Console:   console.NewStdio(cfg.Debug),
	})
}

// New builds the application from cfg with dependency injection
func New(cfg *config.Config, deps Dependencies) (*Application, error) {
	if deps.Logger == nil {
		deps.Logger = infrastructure.GetLogger()
	}
	if deps.Providers == nil {
		providers, err := infrastructure.InitializeOTel(config.TelemetryConfig{TraceExporter: "none", MetricExporter: "none"}, deps.Logger)
		if err != nil {
			return nil, apperrors.NewTelemetryError("failed to initialize OpenTelemetry", err)
		}
		deps.Providers = providers
	}
	if deps.Console == nil {
		deps.Console = console.NewStdio(cfg.Debug)
	}
	if deps.Fingerprints == nil {
		deps.Fingerprints = fingerprint.NewSource(deps.Logger)
	}

	a := &Application{
		Config:        cfg,
		Logger:        deps.Logger,
		OTelProviders: deps.Providers,
		Console:       deps.Console,
		Fingerprints:  deps.Fingerprints,
	}

	gwOpts := []gateway.Option{
		gateway.WithRateLimit(cfg.Gateway.RPS, cfg.Gateway.Burst),
		gateway.WithUserAgent(cfg.Gateway.UserAgent),
		gateway.WithTracer(deps.Providers.Tracer),
		gateway.WithMeter(deps.Providers.Meter),
		gateway.WithLogger(deps.Logger),
	}
	if deps.HTTPClient == nil && len(cfg.Gateway.PinnedSPKI) > 0 {
		pinner, err := security.NewCertificatePinner(cfg.Gateway.PinnedSPKI, security.WithPinLogger(deps.Logger))
		if err != nil {
			return nil, apperrors.NewConfigError("failed to configure certificate pinning", err)
		}
		deps.HTTPClient = pinner.HTTPClient()
	}
	if deps.HTTPClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(deps.HTTPClient))
	}
	a.Gateway = gateway.NewClient(cfg.AccountURL(), gwOpts...)

	metrics, err := license.InitializeMetrics(deps.Providers.Meter)
	if err != nil {
		return nil, apperrors.NewTelemetryError("failed to initialize license metrics", err)
	}
	licenseOpts := []license.Option{
		license.WithLogger(deps.Logger),
		license.WithTracer(deps.Providers.Tracer),
		license.WithMetrics(metrics),
	}
	registrar := license.NewRegistrar(a.Gateway, licenseOpts...)
	activator := license.NewActivator(a.Gateway, registrar, licenseOpts...)

	// The hooks run only once Run starts, after a.Coordinator is set.
	scheduler := heartbeat.NewScheduler(a.Gateway,
		heartbeat.WithSafetyMargin(cfg.Heartbeat.SafetyMargin),
		heartbeat.WithMinPeriod(cfg.Heartbeat.MinPeriod),
		heartbeat.WithLogger(deps.Logger),
		heartbeat.WithMeter(deps.Providers.Meter),
		heartbeat.WithObserver(func(b heartbeat.Beat) {
			a.Coordinator.ObserveBeat(b)
			a.Console.Beat(b)
		}),
	)

	a.Coordinator = lifecycle.NewCoordinator(activator, registrar, scheduler,
		lifecycle.WithLogger(deps.Logger),
		lifecycle.WithTransitionFunc(func(_, to lifecycle.State) {
			a.Console.Transition(to, a.Coordinator.Snapshot())
		}),
	)

	if cfg.Status.Addr != "" {
		a.StatusServer = transport.NewServer(cfg.Status.Addr, transport.RouterConfig{
			Source:  a.Coordinator,
			Metrics: deps.Providers.PrometheusHTTP,
			Tracer:  deps.Providers.Tracer,
			Logger:  deps.Logger,
		})
	}

	return a, nil
}

// Run reads the license key and fingerprint, then keeps this process
// registered until SIGINT or SIGTERM, or until ctx ends.
func (a *Application) Run(ctx context.Context) error {
	ctx = infrastructure.EnsureTraceID(ctx)

	key, err := a.Console.PromptKey(a.Config.LicenseKey)
	if err != nil {
		return err
	}

	fp, err := a.Fingerprints.Fingerprint(ctx)
	if err != nil {
		return apperrors.NewFingerprintError("failed to compute machine fingerprint", err)
	}

	// Signals are only intercepted once the key is in; an interrupt at the
	// prompt ends the program with nothing to clean up.
	stopSignals := a.watchSignals(ctx)
	defer stopSignals()

	g, gctx := errgroup.WithContext(ctx)
	statusCtx, stopStatus := context.WithCancel(gctx)
	defer stopStatus()

	if a.StatusServer != nil {
		g.Go(func() error {
			return a.StatusServer.Run(statusCtx)
		})
	}

	g.Go(func() error {
		defer stopStatus()
		return a.Coordinator.Run(gctx, key, fp)
	})

	return g.Wait()
}

// watchSignals turns SIGINT and SIGTERM into a coordinator shutdown
func (a *Application) watchSignals(ctx context.Context) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			a.Logger.InfoContext(ctx, "Received interrupt signal", slog.String("signal", sig.String()))
			a.Coordinator.Shutdown()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

// Close flushes telemetry and closes the log file
func (a *Application) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, closeTimeout)
	defer cancel()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete",
		slog.String("state", a.Coordinator.State().String()))

	if err := infrastructure.CloseLogFile(); err != nil {
		a.Logger.ErrorContext(ctx, "Error closing log file", slog.String("error", err.Error()))
	}
}

// ExitCode maps the result of Run to the process exit status
func ExitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}

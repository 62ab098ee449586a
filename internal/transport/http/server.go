package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	apperrors "licensebeat/internal/errors"
	"licensebeat/internal/infrastructure"
	"licensebeat/internal/middleware"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// RouterConfig carries the dependencies of the status router
type RouterConfig struct {
	Source  StatusSource
	Metrics http.Handler
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// NewRouter builds the status routes.
// Middleware order: RequestID -> Tracing -> Logger -> Recoverer.
func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(infrastructure.InstrumentationName)
	}

	health := NewHealthHandler(cfg.Source, logger)
	metrics := NewMetricsHandler(cfg.Metrics)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(tracer))
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = render.Render(w, r, apperrors.NewErrorResponse(apperrors.ErrNotFound))
	})

	r.Get("/healthz", health.Healthz)
	r.Get("/status", health.Status)
	r.Get("/metrics", metrics.GetMetrics)

	return r
}

// Server is the optional local status server
type Server struct {
	addr   string
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a status server listening on addr
func NewServer(addr string, cfg RouterConfig) *Server {
	logger := infrastructure.WithComponent(cfg.Logger, "status")
	cfg.Logger = logger
	return &Server{
		addr:   addr,
		logger: logger,
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Run serves until ctx is done, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.InfoContext(ctx, "status server listening", slog.String("address", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.ErrorContext(ctx, "status server shutdown error", slog.String("error", err.Error()))
		return err
	}
	<-errCh
	s.logger.InfoContext(ctx, "status server stopped")
	return nil
}

// Package heartbeat keeps a registered process alive by pinging it on a
// cadence derived from the server-assigned interval.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"

	"licensebeat/internal/infrastructure"
	"licensebeat/pkg/contracts/domain"
)

const (
	// SafetyMargin is subtracted from the server interval so a ping always
	// lands before the server considers the process dead.
	SafetyMargin = 30 * time.Second
	// MinPeriod is the shortest cadence the scheduler will use
	MinPeriod = 5 * time.Second

	clockTag = "heartbeat"
)

// Pinger sends a single heartbeat for a process
type Pinger interface {
	PingProcess(ctx context.Context, id, key string) (*domain.Process, error)
}

// Beat describes the result of one ping
type Beat struct {
	ProcessID string
	Seq       int
	At        time.Time
	Process   *domain.Process
	Err       error
}

// Observer is told about every ping. It runs on the heartbeat goroutine
// and must not call Cancel on the handle it observes.
type Observer func(Beat)

// Scheduler starts heartbeat loops
type Scheduler struct {
	pinger    Pinger
	clock     quartz.Clock
	margin    time.Duration
	minPeriod time.Duration
	observer  Observer
	logger    *slog.Logger
	pings     metric.Int64Counter
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces the real clock
func WithClock(clock quartz.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithSafetyMargin overrides SafetyMargin
func WithSafetyMargin(d time.Duration) Option {
	return func(s *Scheduler) {
		s.margin = d
	}
}

// WithMinPeriod overrides MinPeriod
func WithMinPeriod(d time.Duration) Option {
	return func(s *Scheduler) {
		s.minPeriod = d
	}
}

// WithObserver registers fn to receive every Beat
func WithObserver(fn Observer) Option {
	return func(s *Scheduler) {
		s.observer = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithMeter counts pings on meter
func WithMeter(meter metric.Meter) Option {
	return func(s *Scheduler) {
		s.pings, _ = meter.Int64Counter("licensebeat_heartbeat_pings_total",
			metric.WithDescription("Heartbeat pings by result"))
	}
}

// NewScheduler creates a Scheduler that pings through pinger
func NewScheduler(pinger Pinger, opts ...Option) *Scheduler {
	s := &Scheduler{
		pinger:    pinger,
		clock:     quartz.NewReal(),
		margin:    SafetyMargin,
		minPeriod: MinPeriod,
	}
	WithMeter(metricnoop.NewMeterProvider().Meter(infrastructure.InstrumentationName))(s)

	for _, opt := range opts {
		opt(s)
	}
	s.logger = infrastructure.WithComponent(s.logger, "heartbeat")
	return s
}

// Period returns the ping cadence for a server interval: interval minus
// margin, never below floor.
func Period(interval, margin, floor time.Duration) time.Duration {
	period := interval - margin
	if period < floor {
		return floor
	}
	return period
}

// Start begins pinging processID every Period of intervalSeconds. Ping
// failures are reported and the loop carries on; only Cancel or the end of
// ctx stops it.
func (s *Scheduler) Start(ctx context.Context, processID string, intervalSeconds int, key string) *Handle {
	interval := time.Duration(intervalSeconds) * time.Second
	period := Period(interval, s.margin, s.minPeriod)

	logger := s.logger.With(slog.String("process_id", processID))
	if interval-s.margin < s.minPeriod {
		logger.WarnContext(ctx, "heartbeat interval shorter than safety margin, clamping",
			slog.Duration("interval", interval),
			slog.Duration("safety_margin", s.margin),
			slog.Duration("period", period),
		)
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		processID: processID,
		period:    period,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	seq := 0
	w := s.clock.TickerFunc(ctx, period, func() error {
		// The lock covers reporting too: once Cancel returns no beat is
		// delivered.
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.stopped {
			return nil
		}
		seq++
		process, err := s.pinger.PingProcess(ctx, processID, key)
		if err != nil && ctx.Err() != nil {
			logger.DebugContext(ctx, "heartbeat ping aborted by cancellation", slog.Int("seq", seq))
			return nil
		}
		beat := Beat{ProcessID: processID, Seq: seq, At: s.clock.Now(), Process: process, Err: err}

		s.pings.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", err == nil)))
		if err != nil {
			logger.WarnContext(ctx, "heartbeat ping failed",
				slog.Int("seq", beat.Seq),
				slog.String("error", err.Error()),
			)
		} else {
			logger.DebugContext(ctx, "heartbeat ping sent", slog.Int("seq", beat.Seq))
		}
		if s.observer != nil {
			s.observer(beat)
		}
		return nil
	}, clockTag)

	go func() {
		_ = w.Wait()
		close(h.done)
	}()

	logger.InfoContext(ctx, "heartbeat started",
		slog.Duration("interval", interval),
		slog.Duration("period", period),
	)
	return h
}

// Handle controls one running heartbeat loop.
type Handle struct {
	processID string
	period    time.Duration
	cancel    context.CancelFunc
	done      chan struct{}

	// mu is held for the duration of each ping so Cancel can wait out an
	// in-flight ping before it returns.
	mu      sync.Mutex
	stopped bool
}

// Cancel stops the loop. No ping starts and no beat is reported after
// Cancel returns. A ping that is in flight is cancelled through its
// context and may still complete; one that fails because of it is not
// reported.
// Cancel is idempotent and safe on a nil Handle.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.cancel()

	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
}

// Done is closed once the loop has exited
func (h *Handle) Done() <-chan struct{} {
	if h == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return h.done
}

// ProcessID returns the process the handle pings
func (h *Handle) ProcessID() string {
	return h.processID
}

// Period returns the ping cadence in use
func (h *Handle) Period() time.Duration {
	return h.period
}

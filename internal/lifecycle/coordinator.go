// Package lifecycle sequences license activation, process registration and
// heartbeats for one run, and owns the shutdown protocol.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"

	"licensebeat/internal/errors"
	"licensebeat/internal/heartbeat"
	"licensebeat/internal/infrastructure"
	"licensebeat/pkg/contracts/domain"
)

// Activator resolves or claims the seat for a fingerprint
type Activator interface {
	Activate(ctx context.Context, fingerprint, key string) (*domain.Machine, error)
}

// Registrar registers and deregisters this process
type Registrar interface {
	Register(ctx context.Context, machine *domain.Machine, key string) (*domain.Process, error)
	Deregister(ctx context.Context, processID, key string) error
}

// Heartbeat starts the ping loop for a registered process
type Heartbeat interface {
	Start(ctx context.Context, processID string, intervalSeconds int, key string) *heartbeat.Handle
}

// TransitionFunc is called after every state change
type TransitionFunc func(from, to State)

// Snapshot is a point-in-time view of the coordinator
type Snapshot struct {
	State           State      `json:"state"`
	Since           time.Time  `json:"since"`
	MachineID       string     `json:"machine_id,omitempty"`
	ProcessID       string     `json:"process_id,omitempty"`
	HeartbeatPeriod string     `json:"heartbeat_period,omitempty"`
	LastHeartbeat   *time.Time `json:"last_heartbeat,omitempty"`
	PingsSucceeded  int        `json:"pings_succeeded"`
	PingsFailed     int        `json:"pings_failed"`
	LastError       string     `json:"last_error,omitempty"`
}

// Coordinator drives one run through
// Idle -> Activating -> Registering -> Monitoring -> ShuttingDown -> Terminated.
type Coordinator struct {
	activator Activator
	registrar Registrar
	heartbeat Heartbeat
	clock     quartz.Clock
	logger    *slog.Logger
	onChange  TransitionFunc

	stop     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	started  bool
	snapshot Snapshot
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithClock sets the clock used for timestamps
func WithClock(clock quartz.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithTransitionFunc registers fn to observe state changes
func WithTransitionFunc(fn TransitionFunc) Option {
	return func(c *Coordinator) {
		c.onChange = fn
	}
}

// NewCoordinator creates a Coordinator in StateIdle
func NewCoordinator(activator Activator, registrar Registrar, hb Heartbeat, opts ...Option) *Coordinator {
	c := &Coordinator{
		activator: activator,
		registrar: registrar,
		heartbeat: hb,
		clock:     quartz.NewReal(),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = infrastructure.WithComponent(c.logger, "lifecycle")
	c.snapshot = Snapshot{State: StateIdle, Since: c.clock.Now()}
	return c
}

// Run activates the license for fingerprint, registers this process and
// keeps it alive until Shutdown is called or ctx ends. It then deregisters
// the process and stops the heartbeat. Run may be called once.
func (c *Coordinator) Run(ctx context.Context, key, fingerprint string) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	ctx = infrastructure.EnsureTraceID(ctx)

	c.transition(ctx, StateActivating)
	machine, err := c.activator.Activate(ctx, fingerprint, key)
	if err != nil {
		return c.fail(ctx, err)
	}
	c.update(func(s *Snapshot) { s.MachineID = machine.ID })

	c.transition(ctx, StateRegistering)
	process, err := c.registrar.Register(ctx, machine, key)
	if err != nil {
		return c.fail(ctx, err)
	}
	c.update(func(s *Snapshot) { s.ProcessID = process.ID })

	// The loop outlives ctx: only the shutdown protocol may stop it.
	teardownCtx := context.WithoutCancel(ctx)

	c.transition(ctx, StateMonitoring)
	handle := c.heartbeat.Start(teardownCtx, process.ID, process.Interval, key)
	c.update(func(s *Snapshot) { s.HeartbeatPeriod = handle.Period().String() })

	select {
	case <-ctx.Done():
		c.logger.InfoContext(ctx, "run context ended, shutting down")
	case <-c.stop:
		c.logger.InfoContext(ctx, "shutdown requested")
	}

	c.transition(ctx, StateShuttingDown)

	// Deregister before cancelling; a ping already in flight may still
	// race the delete.
	derr := c.registrar.Deregister(teardownCtx, process.ID, key)
	handle.Cancel()
	<-handle.Done()

	if derr != nil {
		return c.fail(ctx, derr)
	}

	c.transition(ctx, StateTerminated)
	return nil
}

// Shutdown asks a running coordinator to tear down. It does not wait and
// is safe to call any number of times from any goroutine.
func (c *Coordinator) Shutdown() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// State returns the current state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.State
}

// Snapshot returns a copy of the current run details
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.snapshot
	if snap.LastHeartbeat != nil {
		at := *snap.LastHeartbeat
		snap.LastHeartbeat = &at
	}
	return snap
}

// ObserveBeat records a heartbeat result. Failed pings are counted and
// never change state.
func (c *Coordinator) ObserveBeat(b heartbeat.Beat) {
	c.update(func(s *Snapshot) {
		if b.Err != nil {
			s.PingsFailed++
			s.LastError = b.Err.Error()
			return
		}
		at := b.At
		s.LastHeartbeat = &at
		s.PingsSucceeded++
	})
}

func (c *Coordinator) update(fn func(*Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.snapshot)
}

func (c *Coordinator) transition(ctx context.Context, to State) {
	c.mu.Lock()
	from := c.snapshot.State
	if !CanTransition(from, to) {
		c.mu.Unlock()
		c.logger.ErrorContext(ctx, "illegal lifecycle transition",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		return
	}
	c.snapshot.State = to
	c.snapshot.Since = c.clock.Now()
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "lifecycle transition",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	if c.onChange != nil {
		c.onChange(from, to)
	}
}

func (c *Coordinator) fail(ctx context.Context, err error) error {
	c.update(func(s *Snapshot) { s.LastError = err.Error() })
	c.transition(ctx, StateFailed)
	return err
}

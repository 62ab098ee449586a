package heartbeat

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"licensebeat/internal/license/licensetest"
	"licensebeat/internal/shared/testutil"
	"licensebeat/pkg/contracts/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testKey = "ABCD-EFGH-IJKL-MNOP"

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestScheduler(t *testing.T, gw *licensetest.Gateway, opts ...Option) (*Scheduler, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	opts = append([]Option{
		WithClock(clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return NewScheduler(gw, opts...), clock
}

func waitDone(ctx context.Context, t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-ctx.Done():
		t.Fatal("heartbeat loop did not exit")
	}
}

func TestPeriod(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		want     time.Duration
	}{
		{"sixty seconds", 60 * time.Second, 30 * time.Second},
		{"ten minutes", 10 * time.Minute, 9*time.Minute + 30*time.Second},
		{"just above margin", 36 * time.Second, 6 * time.Second},
		{"equal to margin", 30 * time.Second, MinPeriod},
		{"below margin", 20 * time.Second, MinPeriod},
		{"zero", 0, MinPeriod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Period(tt.interval, SafetyMargin, MinPeriod))
		})
	}
}

func TestPingsEveryIntervalMinusMargin(t *testing.T) {
	ctx := testContext(t)
	gw := &licensetest.Gateway{}
	s, clock := newTestScheduler(t, gw)

	h := s.Start(ctx, "P1", 60, testKey)
	defer h.Cancel()
	assert.Equal(t, 30*time.Second, h.Period())
	assert.Equal(t, "P1", h.ProcessID())

	clock.Advance(29 * time.Second).MustWait(ctx)
	assert.Zero(t, gw.Count("ping-process"))

	clock.Advance(time.Second).MustWait(ctx)
	assert.Equal(t, 1, gw.Count("ping-process"))

	clock.Advance(30 * time.Second).MustWait(ctx)
	assert.Equal(t, 2, gw.Count("ping-process"))

	for _, c := range gw.Calls() {
		assert.Equal(t, []string{"P1", testKey}, c.Args)
	}
}

func TestShortIntervalIsClamped(t *testing.T) {
	ctx := testContext(t)
	gw := &licensetest.Gateway{}
	s, clock := newTestScheduler(t, gw)

	h := s.Start(ctx, "P1", 20, testKey)
	defer h.Cancel()
	require.Equal(t, MinPeriod, h.Period())

	clock.Advance(MinPeriod).MustWait(ctx)
	clock.Advance(MinPeriod).MustWait(ctx)
	assert.Equal(t, 2, gw.Count("ping-process"))
}

func TestClampIsLogged(t *testing.T) {
	ctx := testContext(t)
	logger, logs := testutil.NewTestLogger(t)
	s, _ := newTestScheduler(t, &licensetest.Gateway{}, WithLogger(logger))

	h := s.Start(ctx, "P1", 20, testKey)
	defer h.Cancel()

	testutil.AssertLogContains(t, logs, slog.LevelWarn, "clamping")
	testutil.AssertLogAttr(t, logs, "process_id", "P1")
	testutil.AssertLogAttr(t, logs, "component", "heartbeat")
	assert.False(t, logs.ContainsText(testKey))
}

func TestPingFailureDoesNotStopLoop(t *testing.T) {
	ctx := testContext(t)
	gw := &licensetest.Gateway{PingErr: licensetest.EnvelopeError("ping-process", 503, "", "unavailable")}

	var mu sync.Mutex
	var beats []Beat
	s, clock := newTestScheduler(t, gw, WithObserver(func(b Beat) {
		mu.Lock()
		defer mu.Unlock()
		beats = append(beats, b)
	}))

	h := s.Start(ctx, "P1", 60, testKey)
	defer h.Cancel()

	clock.Advance(30 * time.Second).MustWait(ctx)
	gw.SetPingErr(nil)
	clock.Advance(30 * time.Second).MustWait(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, beats, 2)
	assert.Error(t, beats[0].Err)
	assert.Equal(t, 1, beats[0].Seq)
	assert.NoError(t, beats[1].Err)
	assert.Equal(t, 2, beats[1].Seq)
	assert.Equal(t, "P1", beats[1].ProcessID)
	require.NotNil(t, beats[1].Process)
}

func TestNoPingAfterCancel(t *testing.T) {
	ctx := testContext(t)
	gw := &licensetest.Gateway{}
	s, clock := newTestScheduler(t, gw)

	h := s.Start(ctx, "P1", 60, testKey)
	clock.Advance(30 * time.Second).MustWait(ctx)
	require.Equal(t, 1, gw.Count("ping-process"))

	// A fire is pending 30s out; cancelling must suppress it.
	clock.Advance(15 * time.Second).MustWait(ctx)
	h.Cancel()
	waitDone(ctx, t, h)

	clock.Advance(15 * time.Second).MustWait(ctx)
	clock.Advance(30 * time.Second).MustWait(ctx)
	assert.Equal(t, 1, gw.Count("ping-process"))
}

func TestCancelIsIdempotent(t *testing.T) {
	ctx := testContext(t)
	s, _ := newTestScheduler(t, &licensetest.Gateway{})

	h := s.Start(ctx, "P1", 60, testKey)
	h.Cancel()
	h.Cancel()
	waitDone(ctx, t, h)
	h.Cancel()

	var never *Handle
	never.Cancel()
	select {
	case <-never.Done():
	default:
		t.Fatal("nil handle must report done")
	}
}

func TestCancelWaitsForInFlightPing(t *testing.T) {
	ctx := testContext(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	gw := &licensetest.Gateway{OnPing: func(string) {
		close(entered)
		<-release
	}}
	s, clock := newTestScheduler(t, gw)

	h := s.Start(ctx, "P1", 60, testKey)
	advanced := make(chan struct{})
	go func() {
		defer close(advanced)
		clock.Advance(30 * time.Second).MustWait(ctx)
	}()
	<-entered

	cancelled := make(chan struct{})
	go func() {
		defer close(cancelled)
		h.Cancel()
	}()

	select {
	case <-cancelled:
		t.Fatal("Cancel returned while a ping was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-cancelled
	<-advanced
	waitDone(ctx, t, h)
	assert.Equal(t, 1, gw.Count("ping-process"))
}

func TestBeatReportedBeforeCancelReturns(t *testing.T) {
	ctx := testContext(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	cancelled := make(chan struct{})
	gw := &licensetest.Gateway{OnPing: func(string) {
		close(entered)
		<-release
	}}

	var mu sync.Mutex
	var lateBeats, beats int
	s, clock := newTestScheduler(t, gw, WithObserver(func(Beat) {
		mu.Lock()
		defer mu.Unlock()
		beats++
		select {
		case <-cancelled:
			lateBeats++
		default:
		}
	}))

	h := s.Start(ctx, "P1", 60, testKey)
	advanced := make(chan struct{})
	go func() {
		defer close(advanced)
		clock.Advance(30 * time.Second).MustWait(ctx)
	}()
	<-entered

	go func() {
		defer close(cancelled)
		h.Cancel()
	}()
	close(release)
	<-cancelled
	<-advanced
	waitDone(ctx, t, h)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, beats)
	assert.Zero(t, lateBeats, "beat delivered after Cancel returned")
}

// blockingPinger holds every ping until its context ends
type blockingPinger struct {
	entered chan struct{}
}

func (p *blockingPinger) PingProcess(ctx context.Context, _, _ string) (*domain.Process, error) {
	close(p.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPingAbortedByCancelIsNotReported(t *testing.T) {
	ctx := testContext(t)
	pinger := &blockingPinger{entered: make(chan struct{})}

	var mu sync.Mutex
	var beats []Beat
	clock := quartz.NewMock(t)
	s := NewScheduler(pinger,
		WithClock(clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithObserver(func(b Beat) {
			mu.Lock()
			defer mu.Unlock()
			beats = append(beats, b)
		}))

	h := s.Start(ctx, "P1", 60, testKey)
	advanced := make(chan struct{})
	go func() {
		defer close(advanced)
		clock.Advance(30 * time.Second).MustWait(ctx)
	}()
	<-pinger.entered

	h.Cancel()
	<-advanced
	waitDone(ctx, t, h)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, beats)
}

func TestContextEndStopsLoop(t *testing.T) {
	ctx := testContext(t)
	gw := &licensetest.Gateway{}
	s, clock := newTestScheduler(t, gw)

	runCtx, cancel := context.WithCancel(ctx)
	h := s.Start(runCtx, "P1", 60, testKey)
	cancel()
	waitDone(ctx, t, h)

	clock.Advance(30 * time.Second).MustWait(ctx)
	assert.Zero(t, gw.Count("ping-process"))
	h.Cancel()
}

func TestObserverSeesRealClockBeats(t *testing.T) {
	ctx := testContext(t)
	beats := make(chan Beat, 4)
	s := NewScheduler(&licensetest.Gateway{},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSafetyMargin(0),
		WithMinPeriod(time.Millisecond),
		WithObserver(func(b Beat) {
			select {
			case beats <- b:
			default:
			}
		}))

	h := s.Start(ctx, "P1", 0, testKey)
	defer func() {
		h.Cancel()
		waitDone(ctx, t, h)
	}()

	select {
	case b := <-beats:
		assert.Equal(t, "P1", b.ProcessID)
		assert.NoError(t, b.Err)
	case <-ctx.Done():
		t.Fatal("no heartbeat observed")
	}
}

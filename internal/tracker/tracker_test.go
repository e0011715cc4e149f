package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypost/waypost/internal/capture"
	"github.com/waypost/waypost/internal/geofence"
	"github.com/waypost/waypost/internal/queue"
	"github.com/waypost/waypost/internal/record"
	"github.com/waypost/waypost/internal/settings"
)

// fakeSource is a fully scripted fix source: emit delivers a fix to the
// current registration with no rate cap, and every registration is
// recorded so tests can assert on re-register cadence.
type fakeSource struct {
	mu    sync.Mutex
	ch    chan capture.Fix
	last  capture.Fix
	has   bool
	calls []time.Duration
}

func (s *fakeSource) RequestUpdates(_ context.Context, interval time.Duration, _ float64) (<-chan capture.Fix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		close(s.ch)
	}
	s.ch = make(chan capture.Fix, 16)
	s.calls = append(s.calls, interval)
	return s.ch, nil
}

func (s *fakeSource) LastKnown() (capture.Fix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.has
}

func (s *fakeSource) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		close(s.ch)
		s.ch = nil
	}
}

func (s *fakeSource) emit(fix capture.Fix) {
	s.mu.Lock()
	ch := s.ch
	s.last, s.has = fix, true
	s.mu.Unlock()
	if ch != nil {
		ch <- fix
	}
}

func (s *fakeSource) registrations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.calls))
	copy(out, s.calls)
	return out
}

type countingNotifier struct {
	mu sync.Mutex
	n  int
}

func (c *countingNotifier) Notify() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// failingQueue rejects every enqueue, standing in for a full disk.
type failingQueue struct {
	queue.Repository
}

func (failingQueue) Enqueue(context.Context, *record.Location) (int64, error) {
	return 0, errors.New("disk full")
}

type fixture struct {
	source   *fakeSource
	repo     queue.Repository
	zones    *geofence.InMemoryRepository
	store    *settings.Store
	notifier *countingNotifier
	tracker  *Tracker
}

func newFixture(t *testing.T, repo queue.Repository) *fixture {
	t.Helper()

	base := settings.Default()
	base.CaptureIntervalMs = 0 // no pacing in tests
	base.Endpoint = "https://track.example.com/pub"

	f := &fixture{
		source:   &fakeSource{},
		repo:     repo,
		zones:    geofence.NewInMemoryRepository(),
		store:    settings.NewStore(base),
		notifier: &countingNotifier{},
	}
	if f.repo == nil {
		f.repo = queue.NewInMemoryRepository()
	}

	battery := capture.NewStaticBatteryProvider(80, record.BatteryDischarging)
	f.tracker = New(Config{
		Source:    f.source,
		Filter:    capture.NewFilter(f.store, battery),
		Geofences: f.zones,
		Queue:     f.repo,
		Store:     f.store,
		Notifier:  f.notifier,
		Logger:    zerolog.Nop(),
	})
	return f
}

func (f *fixture) start(t *testing.T) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go f.tracker.Run(ctx)

	f.tracker.Start()
	require.Eventually(t, func() bool {
		return len(f.source.registrations()) == 1
	}, 2*time.Second, 5*time.Millisecond, "start should register the fix source")
	return cancel
}

func (f *fixture) queuedCount(t *testing.T) int64 {
	t.Helper()
	stats, err := f.repo.Stats(context.Background())
	require.NoError(t, err)
	return stats.Queued
}

func fixAt(lat, lon float64) capture.Fix {
	return capture.Fix{Latitude: lat, Longitude: lon, Accuracy: 10, Time: time.Now()}
}

func TestTracker_FixFlowsToQueue(t *testing.T) {
	f := newFixture(t, nil)
	cancel := f.start(t)
	defer cancel()

	f.source.emit(fixAt(52.37, 4.89))

	assert.Eventually(t, func() bool {
		return f.queuedCount(t) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.notifier.count() == 1
	}, 2*time.Second, 5*time.Millisecond, "enqueue should wake the sync engine")

	st := f.tracker.Status()
	assert.True(t, st.Running)
	assert.Equal(t, int64(1), st.Accepted)
	assert.Equal(t, int64(1), st.Enqueued)
}

func TestTracker_PausingGeofenceSuppressesAndResumes(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.zones.Create(context.Background(), &geofence.Geofence{
		ID:            "zone-1",
		Name:          "home",
		Latitude:      52.37,
		Longitude:     4.89,
		RadiusMeters:  200,
		Enabled:       true,
		PauseTracking: true,
	}))

	cancel := f.start(t)
	defer cancel()

	// Inside the zone: suppressed, and the source drops to the
	// minimal-rate registration.
	f.source.emit(fixAt(52.37, 4.89))

	require.Eventually(t, func() bool {
		return len(f.source.registrations()) == 2
	}, 2*time.Second, 5*time.Millisecond, "pause should re-register at minimal rate")

	st := f.tracker.Status()
	assert.True(t, st.Paused)
	assert.Equal(t, "home", st.PausedBy)
	assert.Equal(t, int64(0), f.queuedCount(t))
	assert.Equal(t, pausedInterval, f.source.registrations()[1])

	// Well outside the zone: capture resumes at the configured cadence
	// and the fix is recorded.
	f.source.emit(fixAt(53.0, 5.5))

	require.Eventually(t, func() bool {
		return f.queuedCount(t) == 1
	}, 2*time.Second, 5*time.Millisecond)
	st = f.tracker.Status()
	assert.False(t, st.Paused)
	assert.Empty(t, st.PausedBy)
	require.Len(t, f.source.registrations(), 3)
}

func TestTracker_StopCancelsSourceAndKeepsQueue(t *testing.T) {
	f := newFixture(t, nil)
	cancel := f.start(t)
	defer cancel()

	f.source.emit(fixAt(52.37, 4.89))
	require.Eventually(t, func() bool {
		return f.queuedCount(t) == 1
	}, 2*time.Second, 5*time.Millisecond)

	f.tracker.Stop()
	require.Eventually(t, func() bool {
		return !f.tracker.Status().Running
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, StopRequested, f.tracker.Status().StopReason)
	assert.Equal(t, int64(1), f.queuedCount(t), "stopping must not touch queued records")
}

func TestTracker_BatteryCriticalStopsCapture(t *testing.T) {
	f := newFixture(t, nil)
	cancel := f.start(t)
	defer cancel()

	f.source.emit(fixAt(52.37, 4.89))
	require.Eventually(t, func() bool {
		return f.queuedCount(t) == 1
	}, 2*time.Second, 5*time.Millisecond)

	f.tracker.BatteryCritical()
	require.Eventually(t, func() bool {
		return f.tracker.Status().StopReason == StopBatteryCritical
	}, 2*time.Second, 5*time.Millisecond)

	assert.False(t, f.tracker.Status().Running)
	assert.Equal(t, int64(1), f.queuedCount(t), "queued records survive a battery stop")
	before := f.notifier.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, f.notifier.count(), "battery stop must not force a sync")
}

func TestTracker_EnqueueFailureDoesNotStopPipeline(t *testing.T) {
	f := newFixture(t, failingQueue{})
	cancel := f.start(t)
	defer cancel()

	f.source.emit(fixAt(52.37, 4.89))

	require.Eventually(t, func() bool {
		return f.tracker.Status().Accepted == 1
	}, 2*time.Second, 5*time.Millisecond)

	st := f.tracker.Status()
	assert.Equal(t, int64(0), st.Enqueued)
	assert.True(t, st.Running, "a storage failure must not kill the pipeline")
	assert.Equal(t, 0, f.notifier.count())
}

func TestTracker_SettingsChangeReRegistersSource(t *testing.T) {
	f := newFixture(t, nil)
	cancel := f.start(t)
	defer cancel()

	next := f.store.Base()
	next.CaptureIntervalMs = 5_000
	require.NoError(t, f.store.SetBase(next))

	require.Eventually(t, func() bool {
		regs := f.source.registrations()
		return len(regs) == 2 && regs[1] == 5*time.Second
	}, 2*time.Second, 5*time.Millisecond, "an interval change should re-register the source")
}

func TestTracker_StartIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	cancel := f.start(t)
	defer cancel()

	f.tracker.Start()
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.source.registrations(), 1, "a second start must not re-register")
}

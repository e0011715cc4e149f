// Package tracker hosts the capture pipeline: it owns the fix source
// registration and feeds every fix through the capture filter and the
// geofence evaluator before enqueueing the surviving records.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/waypost/waypost/internal/capture"
	"github.com/waypost/waypost/internal/geofence"
	"github.com/waypost/waypost/internal/queue"
	"github.com/waypost/waypost/internal/settings"
	"github.com/waypost/waypost/internal/telemetry"
)

// pausedInterval is the minimal-rate registration used while inside a
// pausing geofence. Fixes keep arriving slowly so zone exit is still
// detected, but nothing is recorded until the device leaves the zone.
const pausedInterval = 60 * time.Second

// Notifier wakes the sync engine after an enqueue. Satisfied by
// *syncer.Engine.
type Notifier interface {
	Notify()
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdBatteryCritical
)

// StopReason records why capture is not running.
type StopReason string

const (
	StopNone            StopReason = ""
	StopRequested       StopReason = "requested"
	StopBatteryCritical StopReason = "battery_critical"
)

// Status is a point-in-time view of the pipeline for the control API.
type Status struct {
	Running    bool       `json:"running"`
	Paused     bool       `json:"paused"`
	PausedBy   string     `json:"pausedBy,omitempty"`
	StopReason StopReason `json:"stopReason,omitempty"`
	Accepted   int64      `json:"accepted"`
	Rejected   int64      `json:"rejected"`
	Suppressed int64      `json:"suppressed"`
	Enqueued   int64      `json:"enqueued"`
}

// Config holds the tracker's collaborators.
type Config struct {
	Source    capture.FixSource
	Filter    *capture.Filter
	Geofences geofence.Repository
	Queue     queue.Repository
	Store     *settings.Store
	Notifier  Notifier
	Logger    zerolog.Logger
	Metrics   *telemetry.PipelineMetrics
}

// Tracker runs the capture pipeline on a single goroutine (Run). The
// control API talks to it through a bounded command channel, so a slow
// pipeline never blocks an HTTP handler, and the pipeline never races
// with itself.
type Tracker struct {
	source    capture.FixSource
	filter    *capture.Filter
	geofences geofence.Repository
	queue     queue.Repository
	store     *settings.Store
	notifier  Notifier
	logger    zerolog.Logger
	metrics   *telemetry.PipelineMetrics

	cmds chan commandKind

	// active is the current fix channel. Touched only by the Run
	// goroutine and the helpers it calls.
	active <-chan capture.Fix

	mu         sync.Mutex
	running    bool
	paused     bool
	pausedBy   string
	stopReason StopReason
	accepted   int64
	rejected   int64
	suppressed int64
	enqueued   int64
}

// New creates a tracker. Call Run to start processing.
func New(cfg Config) *Tracker {
	return &Tracker{
		source:     cfg.Source,
		filter:     cfg.Filter,
		geofences:  cfg.Geofences,
		queue:      cfg.Queue,
		store:      cfg.Store,
		notifier:   cfg.Notifier,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With().Str("component", "tracker").Logger(),
		cmds:       make(chan commandKind, 16),
		stopReason: StopRequested,
	}
}

// Start asks the pipeline to begin capturing. Never blocks; a full
// command channel drops the command and logs.
func (t *Tracker) Start() { t.send(cmdStart) }

// Stop asks the pipeline to stop capturing. Queued records stay queued.
func (t *Tracker) Stop() { t.send(cmdStop) }

// BatteryCritical stops capture because the device battery is critical.
// The queue is left untouched and no sync is forced; delivery resumes
// on the normal schedule once tracking restarts.
func (t *Tracker) BatteryCritical() { t.send(cmdBatteryCritical) }

func (t *Tracker) send(cmd commandKind) {
	select {
	case t.cmds <- cmd:
	default:
		t.logger.Warn().Int("cmd", int(cmd)).Msg("command channel full, dropping command")
	}
}

// Status returns the pipeline's current state and counters.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		Running:    t.running,
		Paused:     t.paused,
		PausedBy:   t.pausedBy,
		StopReason: t.stopReason,
		Accepted:   t.accepted,
		Rejected:   t.rejected,
		Suppressed: t.suppressed,
		Enqueued:   t.enqueued,
	}
}

// Run processes fixes and commands until the context is cancelled.
// A fix that has entered the pipeline is carried through to its queue
// write before shutdown completes.
func (t *Tracker) Run(ctx context.Context) {
	t.logger.Info().Msg("tracker started")
	defer t.logger.Info().Msg("tracker stopped")
	defer t.source.Cancel()

	watch := t.store.Watch()

	for {
		select {
		case <-ctx.Done():
			return

		case cmd := <-t.cmds:
			t.handleCommand(ctx, cmd)

		case <-watch:
			// Settings changed (user edit or profile override). Re-register
			// the source at the new cadence; the filter reads its own
			// snapshot per call and needs no notice.
			if t.isRunning() && !t.isPaused() {
				t.register(ctx)
			}

		case fix, ok := <-t.active:
			if !ok {
				// A replaced registration closes its old channel; the live
				// one was stored by the re-register call.
				t.active = nil
				continue
			}
			t.handleFix(ctx, fix)
		}
	}
}

func (t *Tracker) handleCommand(ctx context.Context, cmd commandKind) {
	switch cmd {
	case cmdStart:
		if t.isRunning() {
			return
		}
		t.setRunning(true, StopNone)
		t.filter.Reset()
		t.register(ctx)
		t.logger.Info().Msg("tracking started")

	case cmdStop:
		if !t.isRunning() {
			return
		}
		t.setRunning(false, StopRequested)
		t.source.Cancel()
		t.active = nil
		t.logger.Info().Msg("tracking stopped")

	case cmdBatteryCritical:
		if !t.isRunning() {
			return
		}
		t.setRunning(false, StopBatteryCritical)
		t.source.Cancel()
		t.active = nil
		t.logger.Warn().Msg("battery critical, capture stopped")
	}
}

// handleFix runs one fix through filter → geofence → enqueue.
func (t *Tracker) handleFix(ctx context.Context, fix capture.Fix) {
	rec, reason := t.filter.Accept(fix)
	if reason != capture.Accepted {
		t.mu.Lock()
		t.rejected++
		t.mu.Unlock()
		t.metrics.FixRejected(ctx, string(reason))
		t.logger.Debug().Str("reason", string(reason)).Msg("fix rejected")
		return
	}

	t.mu.Lock()
	t.accepted++
	t.mu.Unlock()
	t.metrics.FixAccepted(ctx)

	zones, err := t.geofences.List(ctx)
	if err != nil {
		// A zone read failure must not silently pause or drop tracking; the
		// record goes through ungated.
		t.logger.Error().Err(err).Msg("failed to load geofences, passing fix ungated")
		zones = nil
	}

	decision, zone := geofence.Evaluate(rec, zones)
	if decision == geofence.Suppress {
		t.mu.Lock()
		t.suppressed++
		t.mu.Unlock()
		t.enterPaused(ctx, zone)
		return
	}

	t.leavePaused(ctx)

	id, err := t.queue.Enqueue(ctx, rec)
	if err != nil {
		t.logger.Error().
			Err(err).
			Float64("lat", rec.Latitude).
			Float64("lon", rec.Longitude).
			Msg("failed to persist location record")
		return
	}

	t.mu.Lock()
	t.enqueued++
	t.mu.Unlock()
	t.metrics.RecordEnqueued(ctx)

	t.logger.Debug().Int64("id", id).Msg("record enqueued")
	if t.notifier != nil {
		t.notifier.Notify()
	}
}

// enterPaused switches the source to the minimal-rate registration the
// first time a fix lands inside a pausing zone.
func (t *Tracker) enterPaused(ctx context.Context, zone *geofence.Geofence) {
	t.mu.Lock()
	already := t.paused
	t.paused = true
	t.pausedBy = zone.Name
	t.mu.Unlock()

	if already {
		return
	}
	t.logger.Info().Str("geofence", zone.Name).Msg("inside pausing geofence, capture paused")

	ch, err := t.source.RequestUpdates(ctx, pausedInterval, 0)
	if err != nil {
		t.logger.Error().Err(err).Msg("failed to re-register fix source for paused state")
		return
	}
	t.active = ch
}

// leavePaused restores the configured registration after a fix lands
// outside every pausing zone.
func (t *Tracker) leavePaused(ctx context.Context) {
	t.mu.Lock()
	wasPaused := t.paused
	t.paused = false
	t.pausedBy = ""
	t.mu.Unlock()

	if !wasPaused {
		return
	}
	t.logger.Info().Msg("left pausing geofence, capture resumed")
	t.register(ctx)
}

// register (re)registers the fix source at the configured cadence and
// stores the new fix channel.
func (t *Tracker) register(ctx context.Context) {
	snap := t.store.Snapshot()
	ch, err := t.source.RequestUpdates(ctx, snap.CaptureInterval(), float64(snap.DistanceMeters))
	if err != nil {
		t.logger.Error().Err(err).Msg("failed to register fix source")
		return
	}
	t.active = ch
}

func (t *Tracker) isRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Tracker) isPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

func (t *Tracker) setRunning(running bool, reason StopReason) {
	t.mu.Lock()
	t.running = running
	t.stopReason = reason
	if !running {
		t.paused = false
		t.pausedBy = ""
	}
	t.mu.Unlock()
}

package syncer

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/waypost/waypost/internal/creds"
	"github.com/waypost/waypost/internal/payload"
	"github.com/waypost/waypost/internal/queue"
	"github.com/waypost/waypost/internal/record"
	"github.com/waypost/waypost/internal/settings"
	"github.com/waypost/waypost/internal/telemetry"
)

// State is the engine's scheduler state, exposed for status reporting.
type State string

const (
	StateIdle     State = "idle"
	StateDraining State = "draining"
	StateBackoff  State = "backoff"
)

// SkipReason explains why a drain pass sent nothing.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipOffline     SkipReason = "offline_mode"
	SkipNoEndpoint  SkipReason = "no_endpoint"
	SkipUnreachable SkipReason = "network_unreachable"
	SkipWifiOnly    SkipReason = "waiting_for_wifi"
	SkipEmpty       SkipReason = "queue_empty"
)

// DrainResult summarizes one drain pass over the queue.
type DrainResult struct {
	Skipped   SkipReason
	Sent      int
	Transient int
	Permanent int
	// Remaining is the queued count after the pass.
	Remaining int64
}

// Status is a point-in-time view of the engine for the control API.
type Status struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastError           string    `json:"lastError,omitempty"`
	LastDrainAt         time.Time `json:"lastDrainAt,omitzero"`
	LastSentAt          time.Time `json:"lastSentAt,omitzero"`
}

// EngineConfig holds the engine's collaborators and tuning knobs.
type EngineConfig struct {
	Queue  queue.Repository
	Store  *settings.Store
	Creds  creds.Provider
	Sender Sender
	Logger zerolog.Logger

	// BatchSize is the maximum records drained per pass. Default: 50.
	BatchSize int

	// Concurrency caps in-flight per-record requests. Default: 10.
	Concurrency int

	// InitialBackoff is the first delay after a failed pass. Default: 2
	// seconds. The delay grows exponentially up to the configured retry
	// interval and resets on the first success.
	InitialBackoff time.Duration

	Metrics *telemetry.PipelineMetrics
}

// Engine drains the delivery queue against the configured endpoint.
//
// A single scheduler goroutine (Run) owns all sends, so at most one
// drain pass is in flight at a time. Instant mode wakes the scheduler
// whenever a record is enqueued; batch mode wakes it on the sync
// interval; both wake on network changes.
type Engine struct {
	queue       queue.Repository
	store       *settings.Store
	creds       creds.Provider
	sender      Sender
	logger      zerolog.Logger
	batchSize   int
	concurrency int
	initial     time.Duration
	metrics     *telemetry.PipelineMetrics

	wake    chan struct{}
	netWake chan struct{}

	mu           sync.Mutex
	state        State
	reachable    bool
	wifi         bool
	failures     int
	lastErr      error
	lastDrainAt  time.Time
	lastSentAt   time.Time
	nextDelay    time.Duration
	backoffState *backoff.ExponentialBackOff
}

// NewEngine creates a sync engine. The network starts as reachable
// until the platform reports otherwise.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 2 * time.Second
	}

	return &Engine{
		queue:       cfg.Queue,
		store:       cfg.Store,
		creds:       cfg.Creds,
		sender:      cfg.Sender,
		logger:      cfg.Logger.With().Str("component", "syncer").Logger(),
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		initial:     cfg.InitialBackoff,
		metrics:     cfg.Metrics,
		wake:        make(chan struct{}, 1),
		netWake:     make(chan struct{}, 1),
		state:       StateIdle,
		reachable:   true,
		wifi:        true,
	}
}

// Notify signals that a record was enqueued. Instant mode drains on it;
// batch mode ignores it and keeps its interval pacing. Never blocks.
func (e *Engine) Notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// SetNetwork records the platform's connectivity state and wakes the
// scheduler in either mode, so a restored connection drains promptly.
func (e *Engine) SetNetwork(reachable, wifi bool) {
	e.mu.Lock()
	changed := e.reachable != reachable || e.wifi != wifi
	e.reachable = reachable
	e.wifi = wifi
	e.mu.Unlock()
	if !changed {
		return
	}
	select {
	case e.netWake <- struct{}{}:
	default:
	}
}

// Status returns the engine's current scheduler state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		State:               e.state,
		ConsecutiveFailures: e.failures,
		LastDrainAt:         e.lastDrainAt,
		LastSentAt:          e.lastSentAt,
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	return st
}

// Run drives the drain schedule until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info().Msg("sync engine started")
	defer e.logger.Info().Msg("sync engine stopped")

	for {
		timer := time.NewTimer(e.waitFor())

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-e.wake:
			timer.Stop()
			if !e.store.Snapshot().InstantSync() {
				// Batch mode paces on the sync interval; an enqueue
				// notification must not turn it into instant mode.
				continue
			}
		case <-e.netWake:
			timer.Stop()
		case <-timer.C:
		}

		// Instant mode drains until the backlog clears; batch mode sends
		// one bounded batch and returns to idle until the next tick.
		for {
			res, err := e.DrainOnce(ctx)
			if err != nil || res.Transient > 0 || res.Skipped != SkipNone || res.Remaining == 0 {
				break
			}
			if !e.store.Snapshot().InstantSync() {
				break
			}
		}
	}
}

// waitFor computes how long the scheduler sleeps before the next pass:
// the growing backoff delay after failures, the sync interval in batch
// mode, or indefinitely in instant mode (woken by Notify).
func (e *Engine) waitFor() time.Duration {
	snap := e.store.Snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failures > 0 {
		e.state = StateBackoff
		return e.nextDelay
	}
	e.state = StateIdle
	if snap.InstantSync() {
		// Instant mode is event-driven; the hourly timer is only a
		// safety net against a missed notification.
		return time.Hour
	}
	return snap.SyncInterval()
}

// DrainOnce performs a single drain pass: peek a batch, deliver it,
// record per-record outcomes. Safe to call directly from the control
// API for a manual flush; it shares the engine's failure accounting.
func (e *Engine) DrainOnce(ctx context.Context) (DrainResult, error) {
	snap := e.store.Snapshot()

	e.mu.Lock()
	e.state = StateDraining
	e.lastDrainAt = time.Now()
	reachable, wifi := e.reachable, e.wifi
	e.mu.Unlock()

	defer e.setState(StateIdle)

	if skip := e.gate(snap, reachable, wifi); skip != SkipNone {
		return DrainResult{Skipped: skip}, nil
	}

	batch, err := e.queue.PeekBatch(ctx, e.batchSize)
	if err != nil {
		return DrainResult{}, err
	}
	if len(batch) == 0 {
		return DrainResult{Skipped: SkipEmpty}, nil
	}

	opts := payload.Options{
		Endpoint:     snap.Endpoint,
		Method:       snap.Method,
		FieldMap:     snap.FieldMap,
		CustomFields: snap.CustomFields,
	}
	if e.creds != nil {
		opts.Headers = e.creds.Headers()
	}

	var sentIDs, failedIDs []int64
	var sendErr error
	if snap.ArrayPayload && snap.Method != http.MethodGet {
		sentIDs, failedIDs, sendErr = e.sendBatch(ctx, batch, opts)
	} else {
		sentIDs, failedIDs, sendErr = e.sendEach(ctx, batch, opts)
	}

	res, markErr := e.settle(ctx, snap, batch, sentIDs, failedIDs)
	if markErr != nil {
		return res, markErr
	}

	e.metrics.DrainOutcome(ctx, res.Sent, res.Transient+res.Permanent)
	e.account(res, sendErr)
	return res, nil
}

// gate checks the preconditions that suppress sending entirely. Records
// keep accumulating in the queue while any of them holds.
func (e *Engine) gate(snap settings.Settings, reachable, wifi bool) SkipReason {
	switch {
	case snap.OfflineMode:
		return SkipOffline
	case snap.Endpoint == "":
		return SkipNoEndpoint
	case !reachable:
		return SkipUnreachable
	case snap.WifiOnly && !wifi:
		return SkipWifiOnly
	}
	return SkipNone
}

// sendBatch delivers the whole batch as one array request. The endpoint
// acknowledges or rejects the array as a unit, so the outcome applies to
// every record in it.
func (e *Engine) sendBatch(ctx context.Context, batch []*record.Location, opts payload.Options) (sent, failed []int64, err error) {
	ids := make([]int64, len(batch))
	for i, rec := range batch {
		ids[i] = rec.ID
	}

	req, err := payload.BuildBatch(ctx, batch, opts)
	if err != nil {
		return nil, ids, err
	}
	if err := e.sender.Send(req); err != nil {
		return nil, ids, err
	}
	return ids, nil, nil
}

// sendEach delivers each record as its own request through a bounded
// worker pool, so one rejected record does not block the others.
func (e *Engine) sendEach(ctx context.Context, batch []*record.Location, opts payload.Options) (sent, failed []int64, err error) {
	type outcome struct {
		id  int64
		err error
	}

	sem := make(chan struct{}, e.concurrency)
	results := make(chan outcome, len(batch))

	var wg sync.WaitGroup
	for _, rec := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(rec *record.Location) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- outcome{id: rec.ID, err: e.deliver(ctx, rec, opts)}
		}(rec)
	}
	wg.Wait()
	close(results)

	var firstErr error
	for out := range results {
		if out.err != nil {
			failed = append(failed, out.id)
			if firstErr == nil {
				firstErr = out.err
			}
			continue
		}
		sent = append(sent, out.id)
	}
	return sent, failed, firstErr
}

func (e *Engine) deliver(ctx context.Context, rec *record.Location, opts payload.Options) error {
	req, err := payload.Build(ctx, rec, opts)
	if err != nil {
		return err
	}
	return e.sender.Send(req)
}

// settle writes the pass outcome back to the queue. Failures become
// permanent once a record's attempt count reaches the retry cap;
// MaxRetries == 0 retries forever.
func (e *Engine) settle(ctx context.Context, snap settings.Settings, batch []*record.Location, sentIDs, failedIDs []int64) (DrainResult, error) {
	res := DrainResult{Sent: len(sentIDs)}

	attempts := make(map[int64]int, len(batch))
	for _, rec := range batch {
		attempts[rec.ID] = rec.Attempts
	}

	var transient, permanent []int64
	for _, id := range failedIDs {
		if snap.MaxRetries > 0 && attempts[id]+1 >= snap.MaxRetries {
			permanent = append(permanent, id)
			continue
		}
		transient = append(transient, id)
	}
	res.Transient = len(transient)
	res.Permanent = len(permanent)

	if len(sentIDs) > 0 {
		if err := e.queue.MarkSent(ctx, sentIDs); err != nil {
			return res, err
		}
	}
	if len(transient) > 0 {
		if err := e.queue.MarkFailed(ctx, transient, false); err != nil {
			return res, err
		}
	}
	if len(permanent) > 0 {
		e.logger.Warn().
			Ints64("ids", permanent).
			Int("max_retries", snap.MaxRetries).
			Msg("records exhausted their retries, dropping from delivery")
		if err := e.queue.MarkFailed(ctx, permanent, true); err != nil {
			return res, err
		}
	}

	stats, err := e.queue.Stats(ctx)
	if err != nil {
		return res, err
	}
	res.Remaining = stats.Queued
	return res, nil
}

// account updates the consecutive-failure counter and the backoff
// schedule after a pass. Transient failures grow the delay toward the
// retry interval ceiling; the first success resets it.
func (e *Engine) account(res DrainResult, sendErr error) {
	snap := e.store.Snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()

	if res.Transient > 0 {
		e.failures++
		e.lastErr = sendErr
		if e.lastErr == nil {
			e.lastErr = errors.New("delivery failed")
		}
		if e.backoffState == nil {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = e.initial
			bo.MaxInterval = snap.RetryInterval()
			bo.MaxElapsedTime = 0
			bo.Reset()
			e.backoffState = bo
		}
		e.nextDelay = e.backoffState.NextBackOff()
		if ceil := snap.RetryInterval(); e.nextDelay > ceil {
			e.nextDelay = ceil
		}
		e.logger.Warn().
			Err(e.lastErr).
			Int("failures", e.failures).
			Dur("next_attempt_in", e.nextDelay).
			Msg("drain pass failed")
		return
	}

	if res.Sent > 0 {
		e.failures = 0
		e.lastErr = nil
		e.backoffState = nil
		e.nextDelay = 0
		e.lastSentAt = time.Now()
		e.logger.Debug().
			Int("sent", res.Sent).
			Int64("remaining", res.Remaining).
			Msg("drain pass complete")
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

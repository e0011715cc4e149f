package profile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/waypost/waypost/internal/settings"
)

// EngineConfig holds configuration for the profile engine.
type EngineConfig struct {
	Repository Repository
	Store      *settings.Store
	Logger     zerolog.Logger

	// RecheckInterval is the periodic re-evaluation cadence that catches
	// deactivation-delay expiry when no new signal arrives. Default: 5s.
	RecheckInterval time.Duration

	// Now overrides the clock. Tests only.
	Now func() time.Time
}

// Engine selects the active tracking profile from the current device
// signals and pushes the winner's overrides into the settings store.
//
// Activation is immediate when a condition becomes true. Deactivation is
// delayed: a profile stays eligible until its condition has been
// continuously false for its deactivation delay. Among simultaneously
// eligible profiles the highest priority wins; ties go to the most
// recently activated.
type Engine struct {
	repo     Repository
	store    *settings.Store
	logger   zerolog.Logger
	interval time.Duration
	now      func() time.Time

	mu          sync.Mutex
	signals     Signals
	eligible    map[string]bool
	falseSince  map[string]time.Time
	activatedAt map[string]time.Time
	activeID    string
}

// NewEngine creates a profile engine.
func NewEngine(cfg EngineConfig) *Engine {
	interval := cfg.RecheckInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		repo:        cfg.Repository,
		store:       cfg.Store,
		logger:      cfg.Logger,
		interval:    interval,
		now:         now,
		eligible:    make(map[string]bool),
		falseSince:  make(map[string]time.Time),
		activatedAt: make(map[string]time.Time),
	}
}

// Update replaces the device signal snapshot and re-evaluates. Returns
// the active profile after evaluation, or nil when none is active.
func (e *Engine) Update(ctx context.Context, sig Signals) (*Profile, error) {
	e.mu.Lock()
	e.signals = sig
	e.mu.Unlock()

	return e.Recheck(ctx)
}

// Recheck re-evaluates all profiles against the last known signals.
// Called on every signal change and from the periodic timer, so a
// deactivation delay expires even when no new signal arrives.
func (e *Engine) Recheck(ctx context.Context) (*Profile, error) {
	profiles, err := e.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	sig := e.signals

	for _, p := range profiles {
		if !p.Enabled {
			// Disabling an active profile drops it immediately, no
			// deactivation delay.
			e.eligible[p.ID] = false
			delete(e.falseSince, p.ID)
			continue
		}
		if p.Met(sig) {
			if !e.eligible[p.ID] {
				e.eligible[p.ID] = true
				e.activatedAt[p.ID] = now
			}
			delete(e.falseSince, p.ID)
			continue
		}

		if !e.eligible[p.ID] {
			continue
		}

		since, ok := e.falseSince[p.ID]
		if !ok {
			e.falseSince[p.ID] = now
			since = now
		}
		if now.Sub(since) >= p.DeactivationDelay() {
			e.eligible[p.ID] = false
			delete(e.falseSince, p.ID)
		}
	}

	winner := e.pickWinnerLocked(profiles)
	e.applyLocked(winner)
	return winner, nil
}

// Active returns the currently active profile ID, or empty.
func (e *Engine) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeID
}

// Run re-evaluates on the configured interval until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Recheck(ctx); err != nil {
				e.logger.Error().Err(err).Msg("profile recheck failed")
			}
		}
	}
}

func (e *Engine) pickWinnerLocked(profiles []*Profile) *Profile {
	var winner *Profile
	for _, p := range profiles {
		if !e.eligible[p.ID] {
			continue
		}
		if winner == nil {
			winner = p
			continue
		}
		if p.Priority > winner.Priority {
			winner = p
			continue
		}
		if p.Priority == winner.Priority && e.activatedAt[p.ID].After(e.activatedAt[winner.ID]) {
			winner = p
		}
	}
	return winner
}

// applyLocked pushes the winner's overrides into the settings store when
// the winner changed. The store replaces the snapshot atomically, so an
// in-flight capture or sync batch keeps the parameters it started with.
func (e *Engine) applyLocked(winner *Profile) {
	winnerID := ""
	if winner != nil {
		winnerID = winner.ID
	}
	if winnerID == e.activeID {
		return
	}

	prev := e.activeID
	e.activeID = winnerID

	if winner == nil {
		e.store.SetOverride(nil)
		e.logger.Info().Str("previous", prev).Msg("profile deactivated, reverting to base settings")
		return
	}

	overrides := winner.Overrides
	e.store.SetOverride(&overrides)
	e.logger.Info().
		Str("profile_id", winner.ID).
		Str("profile", winner.Name).
		Int("priority", winner.Priority).
		Msg("profile activated")
}

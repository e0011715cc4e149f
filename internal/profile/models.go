// Package profile provides condition-triggered tracking profiles: when a
// device condition holds (charging, car mode, a speed band), the winning
// profile's parameter overrides are layered over the base settings.
package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/waypost/waypost/internal/settings"
)

// Repository errors.
var (
	ErrProfileNotFound  = errors.New("profile not found")
	ErrInvalidCondition = errors.New("unknown profile condition")
	ErrInvalidOverride  = errors.New("invalid profile override")
)

// Condition is the device condition that activates a profile.
type Condition string

const (
	ConditionCharging   Condition = "charging"
	ConditionCarMode    Condition = "car-mode"
	ConditionSpeedAbove Condition = "speed-above"
	ConditionSpeedBelow Condition = "speed-below"
)

// Signals is the current device condition snapshot the engine evaluates
// profiles against.
type Signals struct {
	Charging bool
	CarMode  bool
	// Speed is the most recent speed estimate in m/s.
	Speed float64
}

// Profile is one condition-triggered override of capture/sync parameters.
type Profile struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Condition Condition         `json:"condition"`
	Threshold float64           `json:"threshold,omitempty"`
	Overrides settings.Override `json:"overrides"`
	// Enabled profiles take part in evaluation; disabled ones are kept
	// but never activate.
	Enabled  bool `json:"enabled"`
	Priority int  `json:"priority"`
	// DeactivationDelaySec is how long the condition must be continuously
	// false before the profile is dropped. Hysteresis against flapping,
	// e.g. GPS speed noise around a threshold.
	DeactivationDelaySec int   `json:"deactivationDelaySec"`
	CreatedAt            int64 `json:"createdAt"`
}

// Validate checks the profile's invariants.
func (p *Profile) Validate() error {
	switch p.Condition {
	case ConditionCharging, ConditionCarMode, ConditionSpeedAbove, ConditionSpeedBelow:
	default:
		return ErrInvalidCondition
	}
	if p.DeactivationDelaySec < 0 {
		return errors.New("deactivation delay must not be negative")
	}
	// The capture loop's ticker needs a positive interval; a zero or
	// negative override would take down the poller when the profile
	// activates.
	if v := p.Overrides.CaptureIntervalMs; v != nil && *v <= 0 {
		return fmt.Errorf("%w: capture interval must be positive", ErrInvalidOverride)
	}
	if v := p.Overrides.DistanceMeters; v != nil && *v < 0 {
		return fmt.Errorf("%w: distance must not be negative", ErrInvalidOverride)
	}
	if v := p.Overrides.SyncIntervalSec; v != nil && *v < 0 {
		return fmt.Errorf("%w: sync interval must not be negative", ErrInvalidOverride)
	}
	return nil
}

// Met reports whether the profile's condition holds for the given signals.
func (p *Profile) Met(sig Signals) bool {
	switch p.Condition {
	case ConditionCharging:
		return sig.Charging
	case ConditionCarMode:
		return sig.CarMode
	case ConditionSpeedAbove:
		return sig.Speed > p.Threshold
	case ConditionSpeedBelow:
		return sig.Speed < p.Threshold
	default:
		return false
	}
}

// DeactivationDelay returns the hysteresis window as a duration.
func (p *Profile) DeactivationDelay() time.Duration {
	return time.Duration(p.DeactivationDelaySec) * time.Second
}

// Repository defines the persistence contract for profiles.
type Repository interface {
	// List returns all profiles.
	List(ctx context.Context) ([]*Profile, error)

	// Get retrieves a profile by ID.
	Get(ctx context.Context, id string) (*Profile, error)

	// Create stores a new profile.
	Create(ctx context.Context, p *Profile) error

	// Update replaces an existing profile.
	Update(ctx context.Context, p *Profile) error

	// Delete removes a profile.
	Delete(ctx context.Context, id string) error
}

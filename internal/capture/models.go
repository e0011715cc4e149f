// Package capture turns raw position fixes into queued location records:
// accuracy and distance gating, battery stamping, and the fix source
// abstraction over the platform location providers.
package capture

import (
	"context"
	"time"

	"github.com/waypost/waypost/internal/record"
)

// Fix is one raw position sample as produced by a fix source. Altitude,
// Speed and Bearing are nil when the provider did not report them.
type Fix struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Altitude  *float64
	Speed     *float64
	Bearing   *float64
	Time      time.Time
}

// FixSource produces position fixes at a requested cadence. Two variants
// exist, selected at construction: a polled source wrapping a
// platform-style location reader, and a push source fed by a
// fused-provider callback stream. Both share this contract.
type FixSource interface {
	// RequestUpdates starts (or re-registers) fix delivery at the given
	// interval and minimum distance. Calling it again replaces the
	// previous registration; the returned channel is closed when the
	// registration is replaced or cancelled.
	RequestUpdates(ctx context.Context, interval time.Duration, minDistance float64) (<-chan Fix, error)

	// LastKnown returns the most recent fix, if any.
	LastKnown() (Fix, bool)

	// Cancel stops fix delivery and closes the active channel.
	Cancel()
}

// BatteryReading is one sample from the device battery.
type BatteryReading struct {
	Level  int
	Status record.BatteryStatus
}

// BatteryProvider reports the current battery state.
type BatteryProvider interface {
	Read() BatteryReading
}

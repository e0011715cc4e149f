package capture

import (
	"sync"

	"github.com/waypost/waypost/internal/record"
	"github.com/waypost/waypost/internal/settings"
	"github.com/waypost/waypost/pkg/geo"
)

// Reason classifies the outcome of a filter decision.
type Reason string

const (
	Accepted         Reason = "accepted"
	RejectedAccuracy Reason = "accuracy"
	RejectedDistance Reason = "distance"
)

// Filter applies accuracy and distance gating to raw fixes and stamps
// accepted fixes with the current battery state.
//
// Parameters are read from the settings store on every call, so a
// profile switch takes effect on the next fix without losing the
// last-accepted reference point. A fix in flight uses the snapshot taken
// at accept time.
type Filter struct {
	store   *settings.Store
	battery BatteryProvider

	mu      sync.Mutex
	hasLast bool
	lastLat float64
	lastLon float64
}

// NewFilter creates a capture filter.
func NewFilter(store *settings.Store, battery BatteryProvider) *Filter {
	return &Filter{store: store, battery: battery}
}

// Accept gates a raw fix. On acceptance it returns the location record
// ready for geofence evaluation and enqueueing; otherwise it returns nil
// and the rejection reason. The very first fix after a reset is always
// distance-accepted: there is no prior reference point.
func (f *Filter) Accept(fix Fix) (*record.Location, Reason) {
	snap := f.store.Snapshot()

	if snap.AccuracyFilter && fix.Accuracy > snap.AccuracyMeters {
		return nil, RejectedAccuracy
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.hasLast && snap.DistanceMeters > 0 {
		moved := geo.DistanceMeters(f.lastLat, f.lastLon, fix.Latitude, fix.Longitude)
		if moved < snap.DistanceMeters {
			return nil, RejectedDistance
		}
	}

	f.hasLast = true
	f.lastLat = fix.Latitude
	f.lastLon = fix.Longitude

	battery := f.battery.Read()

	return &record.Location{
		Latitude:      fix.Latitude,
		Longitude:     fix.Longitude,
		Altitude:      fix.Altitude,
		Accuracy:      fix.Accuracy,
		Speed:         fix.Speed,
		Bearing:       fix.Bearing,
		BatteryLevel:  battery.Level,
		BatteryStatus: battery.Status,
		Timestamp:     fix.Time.Unix(),
		State:         record.StateQueued,
	}, Accepted
}

// Reset clears the last-accepted reference point. Called when tracking
// restarts.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasLast = false
}

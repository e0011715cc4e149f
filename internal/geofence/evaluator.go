package geofence

import (
	"github.com/waypost/waypost/internal/record"
	"github.com/waypost/waypost/pkg/geo"
)

// Decision is the outcome of evaluating a record against the pause zones.
type Decision int

const (
	// Pass means the record continues down the pipeline.
	Pass Decision = iota

	// Suppress means the record fell inside an enabled pause zone: it is
	// discarded, and the capture path should drop to its paused cadence.
	Suppress
)

// Evaluate tests a record against the given zones. Membership uses
// great-circle distance to each enabled zone's center and is re-evaluated
// on every accepted fix; entering and exiting is edge-triggered per fix,
// with no debounce beyond the zone radius itself.
func Evaluate(rec *record.Location, zones []*Geofence) (Decision, *Geofence) {
	for _, zone := range zones {
		if !zone.Enabled || !zone.PauseTracking {
			continue
		}

		distance := geo.DistanceMeters(rec.Latitude, rec.Longitude, zone.Latitude, zone.Longitude)
		if distance <= zone.RadiusMeters {
			return Suppress, zone
		}
	}
	return Pass, nil
}

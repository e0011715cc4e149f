// Package geofence provides pause zones: circular regions where tracking
// is suppressed while the device is inside them.
package geofence

import (
	"context"
	"errors"
)

// Repository errors.
var (
	ErrGeofenceNotFound = errors.New("geofence not found")
	ErrInvalidRadius    = errors.New("geofence radius must be positive")
)

// Geofence is one circular zone.
type Geofence struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	RadiusMeters  float64 `json:"radiusMeters"`
	Enabled       bool    `json:"enabled"`
	PauseTracking bool    `json:"pauseTracking"`
	CreatedAt     int64   `json:"createdAt"`
}

// Validate checks the zone's invariants.
func (g *Geofence) Validate() error {
	if g.RadiusMeters <= 0 {
		return ErrInvalidRadius
	}
	return nil
}

// Repository defines the persistence contract for geofences.
type Repository interface {
	// List returns all geofences.
	List(ctx context.Context) ([]*Geofence, error)

	// Get retrieves a geofence by ID.
	Get(ctx context.Context, id string) (*Geofence, error)

	// Create stores a new geofence.
	Create(ctx context.Context, g *Geofence) error

	// Update replaces an existing geofence.
	Update(ctx context.Context, g *Geofence) error

	// Delete removes a geofence.
	Delete(ctx context.Context, id string) error
}

package geofence

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use SQLiteRepository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	zones map[string]*Geofence
}

// NewInMemoryRepository creates a new in-memory geofence repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{zones: make(map[string]*Geofence)}
}

// List returns all geofences ordered by creation time.
func (r *InMemoryRepository) List(_ context.Context) ([]*Geofence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	zones := make([]*Geofence, 0, len(r.zones))
	for _, g := range r.zones {
		cpy := *g
		zones = append(zones, &cpy)
	}

	sort.Slice(zones, func(i, j int) bool {
		if zones[i].CreatedAt != zones[j].CreatedAt {
			return zones[i].CreatedAt < zones[j].CreatedAt
		}
		return zones[i].ID < zones[j].ID
	})
	return zones, nil
}

// Get retrieves a geofence by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Geofence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.zones[id]
	if !ok {
		return nil, ErrGeofenceNotFound
	}
	cpy := *g
	return &cpy, nil
}

// Create stores a new geofence.
func (r *InMemoryRepository) Create(_ context.Context, g *Geofence) error {
	if err := g.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *g
	r.zones[g.ID] = &cpy
	return nil
}

// Update replaces an existing geofence.
func (r *InMemoryRepository) Update(_ context.Context, g *Geofence) error {
	if err := g.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.zones[g.ID]; !ok {
		return ErrGeofenceNotFound
	}
	cpy := *g
	r.zones[g.ID] = &cpy
	return nil
}

// Delete removes a geofence.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.zones[id]; !ok {
		return ErrGeofenceNotFound
	}
	delete(r.zones, id)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)

package profile

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use SQLiteRepository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewInMemoryRepository creates a new in-memory profile repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{profiles: make(map[string]*Profile)}
}

// List returns all profiles ordered by priority, highest first.
func (r *InMemoryRepository) List(_ context.Context) ([]*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		cpy := *p
		profiles = append(profiles, &cpy)
	}

	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].Priority != profiles[j].Priority {
			return profiles[i].Priority > profiles[j].Priority
		}
		return profiles[i].CreatedAt < profiles[j].CreatedAt
	})
	return profiles, nil
}

// Get retrieves a profile by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cpy := *p
	return &cpy, nil
}

// Create stores a new profile.
func (r *InMemoryRepository) Create(_ context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *p
	r.profiles[p.ID] = &cpy
	return nil
}

// Update replaces an existing profile.
func (r *InMemoryRepository) Update(_ context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[p.ID]; !ok {
		return ErrProfileNotFound
	}
	cpy := *p
	r.profiles[p.ID] = &cpy
	return nil
}

// Delete removes a profile.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[id]; !ok {
		return ErrProfileNotFound
	}
	delete(r.profiles, id)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)

package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/waypost/waypost/internal/record"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use SQLiteRepository.
type InMemoryRepository struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64]*record.Location
}

// NewInMemoryRepository creates a new in-memory delivery queue.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		nextID:  1,
		records: make(map[int64]*record.Location),
	}
}

// Enqueue appends a queued record and returns its assigned ID.
func (r *InMemoryRepository) Enqueue(_ context.Context, loc *record.Location) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	cpy := *loc
	cpy.ID = id
	cpy.State = record.StateQueued
	cpy.Attempts = 0
	r.records[id] = &cpy

	loc.ID = id
	loc.State = record.StateQueued
	return id, nil
}

// PeekBatch returns up to max of the oldest queued records in ID order.
func (r *InMemoryRepository) PeekBatch(_ context.Context, max int) ([]*record.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if max <= 0 {
		return nil, nil
	}

	var queued []*record.Location
	for _, loc := range r.records {
		if loc.State == record.StateQueued {
			cpy := *loc
			queued = append(queued, &cpy)
		}
	}

	sort.Slice(queued, func(i, j int) bool { return queued[i].ID < queued[j].ID })

	if len(queued) > max {
		queued = queued[:max]
	}
	return queued, nil
}

// MarkSent transitions the given queued records to sent.
func (r *InMemoryRepository) MarkSent(_ context.Context, ids []int64) error {
	if len(ids) == 0 {
		return ErrEmptyBatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().Unix()
	for _, id := range ids {
		loc, ok := r.records[id]
		if !ok || loc.State != record.StateQueued {
			continue
		}
		loc.State = record.StateSent
		loc.LastAttemptAt = &now
	}
	return nil
}

// MarkFailed bumps attempt bookkeeping for the given queued records.
func (r *InMemoryRepository) MarkFailed(_ context.Context, ids []int64, permanent bool) error {
	if len(ids) == 0 {
		return ErrEmptyBatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().Unix()
	for _, id := range ids {
		loc, ok := r.records[id]
		if !ok || loc.State != record.StateQueued {
			continue
		}
		loc.Attempts++
		loc.LastAttemptAt = &now
		if permanent {
			loc.State = record.StateFailed
		}
	}
	return nil
}

// PurgeSent deletes sent records captured before olderThan.
func (r *InMemoryRepository) PurgeSent(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := olderThan.Unix()
	var purged int64
	for id, loc := range r.records {
		if loc.State == record.StateSent && loc.Timestamp < cutoff {
			delete(r.records, id)
			purged++
		}
	}
	return purged, nil
}

// Stats returns queue counts by delivery state.
func (r *InMemoryRepository) Stats(_ context.Context) (record.QueueStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats record.QueueStats
	for _, loc := range r.records {
		switch loc.State {
		case record.StateQueued:
			stats.Queued++
		case record.StateSent:
			stats.Sent++
		case record.StateFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// Get retrieves a record by ID. Test helper.
func (r *InMemoryRepository) Get(_ context.Context, id int64) (*record.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loc, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cpy := *loc
	return &cpy, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)

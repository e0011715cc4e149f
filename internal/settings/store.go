package settings

import (
	"sync"
)

// Store holds the active configuration snapshot: the user's stored base
// settings plus, while a profile is active, its override. Replacement is
// atomic; readers always observe one coherent snapshot. Components read a
// fresh snapshot at the start of each operation, so an in-flight capture
// or batch keeps the parameters it started with.
type Store struct {
	mu       sync.RWMutex
	base     Settings
	override *Override
	watchers []chan Settings
}

// NewStore creates a store with the given base settings.
func NewStore(base Settings) *Store {
	return &Store{base: base}
}

// Snapshot returns the effective settings: base with the active profile
// override, if any, layered on top.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effectiveLocked()
}

// Base returns the user's stored base settings without any override.
func (s *Store) Base() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// SetBase validates and replaces the base settings. The active profile
// override, if any, stays layered on top.
func (s *Store) SetBase(base Settings) error {
	if err := base.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.base = base
	eff := s.effectiveLocked()
	s.mu.Unlock()

	s.notify(eff)
	return nil
}

// Import merges a partial settings object over the base. The merge is
// all-or-nothing: if the merged result fails validation, nothing changes.
func (s *Store) Import(patch Patch) error {
	s.mu.Lock()
	merged := patch.Merge(s.base)
	if err := merged.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.base = merged
	eff := s.effectiveLocked()
	s.mu.Unlock()

	s.notify(eff)
	return nil
}

// SetOverride layers a profile override on top of the base settings.
// A nil override reverts to the base.
func (s *Store) SetOverride(o *Override) {
	s.mu.Lock()
	s.override = o
	eff := s.effectiveLocked()
	s.mu.Unlock()

	s.notify(eff)
}

// Override returns the active profile override, or nil.
func (s *Store) Override() *Override {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.override
}

// Watch returns a channel that receives the effective settings after
// every change. The channel is buffered with capacity one and coalesces:
// a slow consumer sees only the most recent snapshot.
func (s *Store) Watch() <-chan Settings {
	ch := make(chan Settings, 1)

	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	return ch
}

func (s *Store) effectiveLocked() Settings {
	if s.override == nil {
		return s.base
	}
	return s.override.Apply(s.base)
}

func (s *Store) notify(eff Settings) {
	s.mu.RLock()
	watchers := s.watchers
	s.mu.RUnlock()

	for _, ch := range watchers {
		// Coalesce: drop the stale snapshot if the watcher hasn't read it.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- eff:
		default:
		}
	}
}

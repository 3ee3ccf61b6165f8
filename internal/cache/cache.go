// Package cache provides the normalized client-side store of server
// entity snapshots.
package cache

import (
	"sync"

	"github.com/perchhq/perch-sync/pkg/models"
)

// Store maps (kind, id) to the latest known snapshot of each entity.
//
// The store holds canonical entity state only; derived, query-shaped
// presentation state (ordered lists, view sub-state) lives with the view
// that built it. Absence means "not yet loaded", never "deleted" —
// delete-flavored events are written as snapshot updates with the
// relevant flag flipped.
//
// Writes go through the event dispatcher and query completions; any
// goroutine may read.
type Store struct {
	mu       sync.RWMutex
	entities map[models.EntityKind]map[string]models.Snapshot
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entities: make(map[models.EntityKind]map[string]models.Snapshot),
	}
}

// Get returns the latest snapshot for (kind, id), if one has been seen.
func (s *Store) Get(kind models.EntityKind, id string) (models.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.entities[kind][id]
	return snap, ok
}

// Put stores the snapshot as the latest version of its entity and
// reports whether the write was applied.
//
// When both the stored and incoming snapshots declare ordering metadata,
// a write with an older or equal version is a no-op (stale frames on
// reconnect must not roll an entity back). Entities without ordering
// metadata are last-write-wins. Put is idempotent: re-applying the
// stored snapshot leaves the store unchanged.
func (s *Store) Put(snap models.Snapshot) bool {
	if snap == nil || snap.EntityID() == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.put(snap)
}

// PutMany stores a batch of snapshots under a single lock acquisition
// and returns the number of writes applied.
func (s *Store) PutMany(snaps []models.Snapshot) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for _, snap := range snaps {
		if snap == nil || snap.EntityID() == "" {
			continue
		}
		if s.put(snap) {
			applied++
		}
	}
	return applied
}

func (s *Store) put(snap models.Snapshot) bool {
	kind := snap.Kind()
	byID := s.entities[kind]
	if byID == nil {
		byID = make(map[string]models.Snapshot)
		s.entities[kind] = byID
	}

	if existing, ok := byID[snap.EntityID()]; ok {
		ev, nv := existing.Version(), snap.Version()
		if !ev.IsZero() && !nv.IsZero() && !nv.After(ev) {
			return false
		}
	}

	byID[snap.EntityID()] = snap
	return true
}

// Len returns the total number of cached entities across all kinds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, byID := range s.entities {
		n += len(byID)
	}
	return n
}

// Kind returns a copy of every cached snapshot of the given kind. The
// order is unspecified; callers needing order build it from a query
// window, not from the cache.
func (s *Store) Kind(kind models.EntityKind) []models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Snapshot, 0, len(s.entities[kind]))
	for _, snap := range s.entities[kind] {
		out = append(out, snap)
	}
	return out
}

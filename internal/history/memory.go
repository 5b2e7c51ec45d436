package history

import (
	"context"
	"sync"
)

// DefaultCapacity is the number of records a [MemStore] keeps.
const DefaultCapacity = 200

// MemStore keeps the most recent records in memory.
type MemStore struct {
	mu   sync.Mutex
	cap  int
	recs []Record
	ids  map[string]struct{}
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns a store holding at most capacity records; older ones
// are evicted. capacity <= 0 means [DefaultCapacity].
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemStore{cap: capacity, ids: make(map[string]struct{})}
}

// Append implements [Store].
func (s *MemStore) Append(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[r.ID]; dup {
		return nil
	}
	if len(s.recs) == s.cap {
		delete(s.ids, s.recs[0].ID)
		s.recs = append(s.recs[:0], s.recs[1:]...)
	}
	s.recs = append(s.recs, r)
	s.ids[r.ID] = struct{}{}
	return nil
}

// Recent implements [Store].
func (s *MemStore) Recent(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.recs) {
		limit = len(s.recs)
	}
	out := make([]Record, 0, limit)
	for i := len(s.recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.recs[i])
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

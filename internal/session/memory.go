package session

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	state   State
	expires time.Time
}

// MemoryStore is a single-process Store.  Expired entries are dropped on
// read and by Sweep.
type MemoryStore struct {
	m   sync.Map // id → memEntry
	ttl time.Duration
	now func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MemoryStore{ttl: ttl, now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, id string, st State) error {
	s.m.Store(id, memEntry{state: st, expires: s.now().Add(s.ttl)})
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (State, error) {
	v, ok := s.m.Load(id)
	if !ok {
		return State{}, ErrNotFound
	}
	e := v.(memEntry)
	if !s.now().Before(e.expires) {
		s.m.Delete(id)
		return State{}, ErrNotFound
	}
	return e.state, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.m.Delete(id)
	return nil
}

// Sweep removes expired sessions.
func (s *MemoryStore) Sweep() {
	now := s.now()
	s.m.Range(func(k, v any) bool {
		if !now.Before(v.(memEntry).expires) {
			s.m.Delete(k)
		}
		return true
	})
}

package kv

import (
	"context"
	"sync"
	"time"

	"github.com/codewandler/clstr-fiber/core/timer"
)

type memEntry struct {
	Entry
	expires time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// MemStore keeps entries in a map. Revisions are taken from one counter
// shared by all keys. Expired entries are dropped when read.
type MemStore struct {
	clock timer.Clock

	mu   sync.Mutex
	rev  uint64
	data map[string]memEntry
}

func NewMemStore() *MemStore {
	return NewMemStoreWithClock(timer.Real())
}

func NewMemStoreWithClock(clock timer.Clock) *MemStore {
	return &MemStore{clock: clock, data: map[string]memEntry{}}
}

func (m *MemStore) Put(_ context.Context, key string, value []byte, opts PutOptions) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rev++
	e := memEntry{Entry: Entry{Value: append([]byte(nil), value...), Revision: m.rev}}
	if opts.TTL > 0 {
		e.expires = m.clock.Now().Add(opts.TTL)
	}
	m.data[key] = e
	return m.rev, nil
}

func (m *MemStore) Get(_ context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e.Entry, nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemStore) DeleteRevision(_ context.Context, key string, revision uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok || e.Revision != revision {
		return ErrConflict
	}
	delete(m.data, key)
	return nil
}

// live returns the entry of key unless it expired. Callers hold mu.
func (m *MemStore) live(key string) (memEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return e, false
	}
	if e.expired(m.clock.Now()) {
		delete(m.data, key)
		return e, false
	}
	return e, true
}

var _ Store = (*MemStore)(nil)

// Package kv is the key-value port behind shared cluster state such as
// entity locations. MemStore serves single-process setups and tests; the
// NATS adapter provides a JetStream-backed Store.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("key not found")
	// ErrConflict means the key was written since the given revision.
	ErrConflict = errors.New("revision conflict")
)

type Entry struct {
	Value []byte
	// Revision grows with every write of the key. Set by the store.
	Revision uint64
}

type PutOptions struct {
	// TTL expires the entry; 0 keeps it until deleted. Stores without
	// per-key TTL apply their bucket-wide setting instead.
	TTL time.Duration
}

type Store interface {
	// Put writes value and returns the new revision of key.
	Put(ctx context.Context, key string, value []byte, opts PutOptions) (uint64, error)
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) (Entry, error)
	// Delete succeeds for missing keys.
	Delete(ctx context.Context, key string) error
	// DeleteRevision deletes key only while it is still at revision, and
	// fails with ErrConflict otherwise.
	DeleteRevision(ctx context.Context, key string, revision uint64) error
}

// Put stores v as JSON.
func Put[T any](ctx context.Context, store Store, key string, v T, opts PutOptions) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return store.Put(ctx, key, data, opts)
}

// Get loads the JSON value stored under key along with its revision.
func Get[T any](ctx context.Context, store Store, key string) (T, uint64, error) {
	var out T
	entry, err := store.Get(ctx, key)
	if err != nil {
		return out, 0, err
	}
	if err := json.Unmarshal(entry.Value, &out); err != nil {
		return out, 0, err
	}
	return out, entry.Revision, nil
}

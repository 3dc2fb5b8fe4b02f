package cache

import (
	"strconv"
	"time"
)

type PutOptions struct {
	// TTL overrides the cache default; 0 keeps the default.
	TTL time.Duration
}

type PutOption func(*PutOptions)

func WithTTL(ttl time.Duration) PutOption {
	return func(o *PutOptions) {
		if ttl > 0 {
			o.TTL = ttl
		}
	}
}

// Cache is safe for concurrent use.
type Cache interface {
	Get(key string) (any, bool)
	Put(key string, val any, opts ...PutOption)
	Delete(key string)
}

// Keyed views a Cache through typed keys and values. Keys are rendered to
// strings with a prefix, so several views can share one Cache.
type Keyed[K any, V any] struct {
	c      Cache
	prefix string
	format func(K) string
}

func NewKeyed[K any, V any](c Cache, prefix string, format func(K) string) *Keyed[K, V] {
	return &Keyed[K, V]{c: c, prefix: prefix, format: format}
}

// ByID is a Keyed view for persistent entity ids.
func ByID[V any](c Cache, prefix string) *Keyed[int64, V] {
	return NewKeyed[int64, V](c, prefix, func(id int64) string { return strconv.FormatInt(id, 10) })
}

func (k *Keyed[K, V]) key(key K) string { return k.prefix + k.format(key) }

// Get misses on values of another type.
func (k *Keyed[K, V]) Get(key K) (V, bool) {
	v, ok := k.c.Get(k.key(key))
	if !ok {
		var zero V
		return zero, false
	}
	out, ok := v.(V)
	return out, ok
}

func (k *Keyed[K, V]) Put(key K, val V, opts ...PutOption) {
	k.c.Put(k.key(key), val, opts...)
}

func (k *Keyed[K, V]) Delete(key K) {
	k.c.Delete(k.key(key))
}

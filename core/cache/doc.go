// Package cache holds short-lived lookups such as entity locations.
//
// [Cache] stores values as any under string keys. [Keyed] is a typed view
// with its own key prefix, [ByID] the common case of persistent ids.
// [LRU] is the in-memory implementation with size-bounded eviction and
// per-entry TTL; [Nop] never stores anything and switches caching off.
//
//	lru := cache.NewLRU(cache.LRUOpts{Size: 4096, TTL: time.Minute})
//	defer lru.Close()
//
//	locations := cache.ByID[actorid.ActorID](lru, "loc.")
//	locations.Put(42, aid)
//	if aid, ok := locations.Get(42); ok {
//	    // ...
//	}
//
// Expired entries are dropped lazily when they are read.
package cache

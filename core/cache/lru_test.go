package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/clstr-fiber/core/actorid"
	"github.com/codewandler/clstr-fiber/core/timer"
)

func newLRU(t *testing.T, opts LRUOpts) *LRU {
	t.Helper()
	l := NewLRU(opts)
	t.Cleanup(l.Close)
	return l
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	l := newLRU(t, LRUOpts{Size: 2})

	l.Put("a", 1)
	l.Put("b", 2)
	_, ok := l.Get("a")
	require.True(t, ok)

	l.Put("c", 3)
	_, ok = l.Get("b")
	require.False(t, ok, "b was the least recently used")

	v, ok := l.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.Equal(t, 2, l.Len())
}

func TestLRU_UpdateAndDelete(t *testing.T) {
	l := newLRU(t, LRUOpts{Size: 2})

	l.Put("a", 1)
	l.Put("a", 2)
	v, _ := l.Get("a")
	require.Equal(t, 2, v)

	l.Delete("a")
	l.Delete("missing")
	_, ok := l.Get("a")
	require.False(t, ok)
	require.Zero(t, l.Len())
}

func TestLRU_TTL(t *testing.T) {
	clock := timer.NewFakeClock(time.Unix(0, 0))
	l := newLRU(t, LRUOpts{Size: 4, TTL: time.Minute, Clock: clock})

	l.Put("short", 1, WithTTL(time.Second))
	l.Put("default", 2)

	clock.Advance(time.Second - time.Nanosecond)
	_, ok := l.Get("short")
	require.True(t, ok)

	clock.Advance(time.Nanosecond)
	_, ok = l.Get("short")
	require.False(t, ok)

	// refreshing an entry restarts its TTL
	clock.Advance(30 * time.Second)
	l.Put("default", 3)
	clock.Advance(45 * time.Second)
	v, ok := l.Get("default")
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestLRU_Keyed(t *testing.T) {
	lru := newLRU(t, LRUOpts{})
	locations := ByID[actorid.ActorID](lru, "loc.")
	roles := ByID[string](lru, "role.")
	aid := actorid.New(actorid.NewAddress(1, 2), 3)

	locations.Put(42, aid)
	roles.Put(42, "player")
	got, ok := locations.Get(42)
	require.True(t, ok)
	require.Equal(t, aid, got)
	require.Equal(t, 2, lru.Len(), "prefixes keep views apart")

	raw, ok := lru.Get("loc.42")
	require.True(t, ok)
	require.Equal(t, aid, raw)

	// a value of another type reads as a miss
	lru.Put("loc.7", "not an actor id")
	_, ok = locations.Get(7)
	require.False(t, ok)

	locations.Delete(42)
	_, ok = locations.Get(42)
	require.False(t, ok)
	_, ok = roles.Get(42)
	require.True(t, ok)
}

func TestLRU_Concurrent(t *testing.T) {
	l := newLRU(t, LRUOpts{Size: 16})

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				key := fmt.Sprintf("k%d", (w+i)%32)
				l.Put(key, i)
				l.Get(key)
			}
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, l.Len(), 16)
}

func TestLRU_Close(t *testing.T) {
	l := NewLRU(LRUOpts{Size: 2})
	l.Put("a", 1)
	l.Close()

	_, ok := l.Get("a")
	require.False(t, ok)
	l.Put("b", 2)
	l.Delete("a")
	require.Zero(t, l.Len())
}

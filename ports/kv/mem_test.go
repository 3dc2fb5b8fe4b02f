package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/clstr-fiber/core/timer"
)

func TestMemStore(t *testing.T) {
	type location struct {
		Process int32 `json:"process"`
		Fiber   int32 `json:"fiber"`
	}
	s := NewMemStore()

	_, _, err := Get[location](t.Context(), s, "loc.1")
	require.ErrorIs(t, err, ErrNotFound)

	rev1, err := Put(t.Context(), s, "loc.1", location{1, 2}, PutOptions{})
	require.NoError(t, err)
	rev2, err := Put(t.Context(), s, "loc.2", location{3, 4}, PutOptions{})
	require.NoError(t, err)
	require.Greater(t, rev2, rev1)

	loaded, rev, err := Get[location](t.Context(), s, "loc.1")
	require.NoError(t, err)
	require.Equal(t, location{1, 2}, loaded)
	require.Equal(t, rev1, rev)

	require.NoError(t, s.Delete(t.Context(), "loc.1"))
	require.NoError(t, s.Delete(t.Context(), "loc.1"))
	_, _, err = Get[location](t.Context(), s, "loc.1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_DeleteRevision(t *testing.T) {
	s := NewMemStore()
	old, err := s.Put(t.Context(), "k", []byte("a"), PutOptions{})
	require.NoError(t, err)
	cur, err := s.Put(t.Context(), "k", []byte("b"), PutOptions{})
	require.NoError(t, err)

	require.ErrorIs(t, s.DeleteRevision(t.Context(), "k", old), ErrConflict)
	e, err := s.Get(t.Context(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("b"), e.Value)

	require.NoError(t, s.DeleteRevision(t.Context(), "k", cur))
	_, err = s.Get(t.Context(), "k")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.DeleteRevision(t.Context(), "k", cur), ErrConflict)
}

func TestMemStore_TTL(t *testing.T) {
	clock := timer.NewFakeClock(time.Unix(0, 0))
	s := NewMemStoreWithClock(clock)

	_, err := s.Put(t.Context(), "k", []byte("v"), PutOptions{TTL: time.Second})
	require.NoError(t, err)
	clock.Advance(999 * time.Millisecond)
	_, err = s.Get(t.Context(), "k")
	require.NoError(t, err)

	clock.Advance(time.Millisecond)
	_, err = s.Get(t.Context(), "k")
	require.ErrorIs(t, err, ErrNotFound)
}

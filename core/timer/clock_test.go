package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeClock_Advance(t *testing.T) {
	c := NewFakeClock(time.Time{})
	start := c.Now()
	require.Equal(t, time.Unix(0, 0), start)

	early := c.After(time.Second)
	late := c.After(3 * time.Second)
	require.Equal(t, 2, c.Waiters())

	c.Advance(time.Second)
	select {
	case at := <-early:
		require.Equal(t, start.Add(time.Second), at)
	default:
		t.Fatal("timer due at 1s did not fire")
	}
	select {
	case <-late:
		t.Fatal("timer due at 3s fired early")
	default:
	}
	require.Equal(t, 1, c.Waiters())

	c.Advance(2 * time.Second)
	<-late
	require.Zero(t, c.Waiters())
}

func TestFakeClock_AfterNonPositive(t *testing.T) {
	c := NewFakeClock(time.Unix(100, 0))
	at := <-c.After(0)
	require.Equal(t, time.Unix(100, 0), at)
	require.Zero(t, c.Waiters())
}

func TestReal(t *testing.T) {
	c := Real()
	before := c.Now()
	<-c.After(time.Millisecond)
	require.True(t, c.Now().After(before))
}

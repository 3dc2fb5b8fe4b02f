package task

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/clstr-fiber/core/timer"
)

func newRunner() *Runner { return NewRunner(slog.New(slog.DiscardHandler)) }

func TestSpawn_RunsUntilFirstSuspension(t *testing.T) {
	r := newRunner()
	var trace []string
	gate := make(chan struct{})
	done := make(chan struct{})

	r.Acquire()
	r.Spawn(t.Context(), func(ctx context.Context) {
		defer close(done)
		trace = append(trace, "a1")
		_, err := Await(ctx, gate)
		require.NoError(t, err)
		trace = append(trace, "a2")
	})
	trace = append(trace, "spawned")
	r.Spawn(t.Context(), func(ctx context.Context) {
		trace = append(trace, "b")
	})
	trace = append(trace, "spawned-b")
	r.Release()

	close(gate)
	<-done

	r.Acquire()
	require.Equal(t, []string{"a1", "spawned", "b", "spawned-b", "a2"}, trace)
	r.Release()
}

func TestSpawn_MutualExclusion(t *testing.T) {
	r := newRunner()
	clock := timer.Real()
	counter := 0
	var wg sync.WaitGroup

	r.Acquire()
	for range 20 {
		wg.Add(1)
		r.Spawn(t.Context(), func(ctx context.Context) {
			defer wg.Done()
			for range 10 {
				counter++
				if err := Sleep(ctx, clock, time.Microsecond); err != nil {
					return
				}
			}
		})
	}
	r.Release()
	wg.Wait()

	r.Acquire()
	defer r.Release()
	require.Equal(t, 200, counter)
}

func TestSpawn_PanicReturnsToken(t *testing.T) {
	r := newRunner()
	r.Acquire()
	r.Spawn(t.Context(), func(ctx context.Context) {
		panic("boom")
	})
	r.Release()

	done := make(chan struct{})
	go func() {
		r.Acquire()
		r.Release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("token leaked after panic")
	}
}

func TestAwait_OutsideTask(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	v, err := Await(t.Context(), ch)
	require.NoError(t, err)
	require.Equal(t, 7, v)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = Await(ctx, make(chan int))
	require.ErrorIs(t, err, context.Canceled)
}

func TestAwait_CancelReacquires(t *testing.T) {
	r := newRunner()
	ctx, cancel := context.WithCancel(t.Context())
	result := make(chan error, 1)

	r.Acquire()
	r.Spawn(ctx, func(ctx context.Context) {
		_, err := Await(ctx, make(chan struct{}))
		require.True(t, InTask(ctx, r))
		result <- err
	})
	r.Release()

	cancel()
	require.ErrorIs(t, <-result, context.Canceled)
}

func TestGo(t *testing.T) {
	r := newRunner()
	var order []int
	done := make(chan struct{})

	Go(t.Context(), r, func(ctx context.Context) {
		order = append(order, 1)
		Go(ctx, r, func(ctx context.Context) {
			order = append(order, 2)
		})
		order = append(order, 3)
		close(done)
	})
	<-done

	r.Acquire()
	defer r.Release()
	require.Equal(t, []int{1, 2, 3}, order)
}

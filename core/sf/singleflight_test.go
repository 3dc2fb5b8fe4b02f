package sf

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGroup_Do_Collapses(t *testing.T) {
	g := New[int]()
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make(chan int, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := g.Do("k", func() (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			require.NoError(t, err)
			results <- v
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for v := range results {
		require.Equal(t, 42, v)
	}
	require.Equal(t, int32(1), calls.Load())
}

func TestGroup_DoChan(t *testing.T) {
	g := New[string]()

	res := <-g.DoChan("k", func() (string, error) { return "v", nil })
	require.NoError(t, res.Err)
	require.Equal(t, "v", res.Val)

	boom := errors.New("boom")
	res = <-g.DoChan("k", func() (string, error) { return "", boom })
	require.ErrorIs(t, res.Err, boom)
	require.Empty(t, res.Val)
}

package msgqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	timeout = time.Second
	tick    = time.Millisecond
)

func TestMemoryWire_Ordering(t *testing.T) {
	w := NewMemoryWire()
	t.Cleanup(func() { _ = w.Close() })

	var got []byte
	_, err := w.Listen(t.Context(), 2, func(data []byte) { got = append(got, data...) })
	require.NoError(t, err)

	for _, b := range []byte("abcdef") {
		require.NoError(t, w.SendToProcess(t.Context(), 2, []byte{b}))
	}
	require.Equal(t, "abcdef", string(got))
}

func TestMemoryWire_FrameIsCopied(t *testing.T) {
	w := NewMemoryWire()
	var got []byte
	_, err := w.Listen(t.Context(), 1, func(data []byte) { got = data })
	require.NoError(t, err)

	buf := []byte("abc")
	require.NoError(t, w.SendToProcess(t.Context(), 1, buf))
	buf[0] = 'x'
	require.Equal(t, "abc", string(got))
}

func TestMemoryWire_UnsubscribeOnContextDone(t *testing.T) {
	w := NewMemoryWire()
	ctx, cancel := context.WithCancel(t.Context())
	_, err := w.Listen(ctx, 1, func([]byte) {})
	require.NoError(t, err)
	require.NoError(t, w.SendToProcess(t.Context(), 1, nil))

	cancel()
	require.Eventually(t, func() bool {
		return w.SendToProcess(t.Context(), 1, nil) != nil
	}, timeout, tick)
	require.ErrorIs(t, w.SendToProcess(t.Context(), 1, nil), ErrNoRoute)
}

func TestMemoryWire_Closed(t *testing.T) {
	w := NewMemoryWire()
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.ErrorIs(t, w.SendToProcess(t.Context(), 1, nil), ErrWireClosed)
	_, err := w.Listen(t.Context(), 1, func([]byte) {})
	require.ErrorIs(t, err, ErrWireClosed)
}

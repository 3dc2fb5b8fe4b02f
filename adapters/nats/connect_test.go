package nats

import (
	"testing"

	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func TestReuseConnection(t *testing.T) {
	connect := StartTestServer(t).Shared()

	nc1, release1, err := connect()
	require.NoError(t, err)
	nc2, release2, err := connect()
	require.NoError(t, err)
	require.Same(t, nc1, nc2)
	require.Equal(t, natsgo.CONNECTED, nc1.Status())

	release1()
	release1()
	require.Equal(t, natsgo.CONNECTED, nc1.Status(), "second lease still open")
	release2()
	require.Equal(t, natsgo.CLOSED, nc1.Status())

	nc3, release3, err := connect()
	require.NoError(t, err)
	defer release3()
	require.NotSame(t, nc1, nc3)
	require.Equal(t, natsgo.CONNECTED, nc3.Status())
}

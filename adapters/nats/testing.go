package nats

import (
	"context"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testImage = "nats:2.11"

type Testing interface {
	require.TestingT
	Context() context.Context
	Logf(format string, args ...any)
	Cleanup(func())
}

// TestServer is a JetStream-enabled NATS container living as long as the
// test that started it.
type TestServer struct {
	URL string
}

// StartTestServer runs the container and terminates it on test cleanup.
func StartTestServer(t Testing) *TestServer {
	ctx := t.Context()
	c, err := testcontainers.Run(ctx, testImage,
		testcontainers.WithCmd("-js"),
		testcontainers.WithExposedPorts("4222/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("4222/tcp"),
			wait.ForLog("Server is ready"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			t.Errorf("terminate %s: %s", testImage, err)
		}
	})

	url, err := c.PortEndpoint(ctx, "4222/tcp", "nats")
	require.NoError(t, err)
	t.Logf("nats test server at %s", url)
	return &TestServer{URL: url}
}

// Connect opens a new connection per call, like separate processes would.
func (s *TestServer) Connect() Connector { return ConnectURL(s.URL) }

// Shared returns a Connector leasing one connection, like wire and location
// store of a single process do.
func (s *TestServer) Shared() Connector { return ReuseConnection(s.Connect()) }

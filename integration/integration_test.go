package integration

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/clstr-fiber/core/app"
	"github.com/codewandler/clstr-fiber/core/dispatch"
	"github.com/codewandler/clstr-fiber/core/entity"
	"github.com/codewandler/clstr-fiber/core/errcode"
	"github.com/codewandler/clstr-fiber/core/fiber"
	"github.com/codewandler/clstr-fiber/core/mailbox"
	"github.com/codewandler/clstr-fiber/core/message"
	"github.com/codewandler/clstr-fiber/core/msgqueue"
	"github.com/codewandler/clstr-fiber/core/proxy"
	"github.com/codewandler/clstr-fiber/ports/kv"
)

type (
	myRequest struct {
		A int
		B int
	}
	myResponse struct {
		message.ResponseHeader
		V       int
		Process int32
	}
	myNotification struct{}
	myError        struct{}
	myErrorReply   struct{ message.ResponseHeader }
)

func TestIntegration(t *testing.T) {
	var (
		wire     = msgqueue.NewMemoryWire()
		store    = kv.NewMemStore()
		notified atomic.Int32
		log      = slog.New(slog.DiscardHandler)
	)
	t.Cleanup(func() { _ = wire.Close() })

	handlers := func(pid int32) []dispatch.Registration {
		return []dispatch.Registration{
			dispatch.HandleMsg(func(dispatch.Ctx, *entity.Entity, myNotification) error {
				notified.Add(1)
				return nil
			}),
			dispatch.HandleRequest(func(dispatch.Ctx, *entity.Entity, myError, *myErrorReply) error {
				return errors.New("I failed")
			}),
			dispatch.HandleRequest(func(_ dispatch.Ctx, _ *entity.Entity, req myRequest, resp *myResponse) error {
				resp.V = req.A + req.B
				resp.Process = pid
				return nil
			}),
		}
	}

	apps := make([]*app.App, 5)
	for i := range apps {
		pid := int32(i + 1)
		a, err := app.Run(app.Config{
			Context:   t.Context(),
			Log:       log,
			ProcessID: pid,
			Fibers:    3,
			Wire:      wire,
			Locations: store,
		}, handlers(pid)...)
		require.NoError(t, err)
		t.Cleanup(func() { _ = a.Stop() })
		apps[i] = a
	}

	// tenants 1..10, spread over all processes
	for id := int64(1); id <= 10; id++ {
		_, _, err := apps[id%5].Spawn(t.Context(), id, "tenant", mailbox.OrderedDispatch)
		require.NoError(t, err)
	}

	client := apps[0]
	require.NoError(t, client.Exec(t.Context(), func(ctx context.Context) error {
		for id := int64(1); id <= 10; id++ {
			res, err := proxy.CallAs[myResponse](ctx, client.Proxy(), id, myRequest{A: 1, B: 2}, true)
			require.NoError(t, err)
			require.Equal(t, 3, res.V)
			require.Equal(t, int32(id%5+1), res.Process)
		}

		// publish
		require.NoError(t, client.Proxy().Send(ctx, 3, myNotification{}))

		// error in handler
		_, err := client.Proxy().Call(ctx, 4, myError{}, true)
		require.ErrorIs(t, err, errcode.ErrRpcFail)
		require.ErrorContains(t, err, "I failed")

		resp, err := client.Proxy().Call(ctx, 4, myError{}, false)
		require.NoError(t, err)
		require.Equal(t, errcode.RpcFail, resp.Header().Error)
		return nil
	}))
	require.Eventually(t, func() bool { return notified.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestIntegration_ProcessGoesAway(t *testing.T) {
	wire := msgqueue.NewMemoryWire()
	t.Cleanup(func() { _ = wire.Close() })
	log := slog.New(slog.DiscardHandler)

	server, err := app.Run(app.Config{Context: t.Context(), Log: log, ProcessID: 1, Wire: wire},
		dispatch.HandleRequest(func(hc dispatch.Ctx, _ *entity.Entity, _ myRequest, _ *myResponse) error {
			return fiber.Sleep(hc, time.Hour)
		}))
	require.NoError(t, err)
	client, err := app.Run(app.Config{Context: t.Context(), Log: log, ProcessID: 2, Wire: wire,
		Fiber: fiber.Options{RequestTimeout: 200 * time.Millisecond, SweepInterval: 10 * time.Millisecond}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Stop() })

	_, aid, err := server.Spawn(t.Context(), 1, "tenant", mailbox.UnorderedDispatch)
	require.NoError(t, err)

	require.NoError(t, client.Exec(t.Context(), func(ctx context.Context) error {
		// the handler never answers: the request times out
		_, err := fiber.Call(ctx, aid, myRequest{}, true)
		require.ErrorIs(t, err, errcode.ErrActorTimeout)

		require.NoError(t, server.Stop())

		// the process is gone from the wire: the call resolves at once
		start := time.Now()
		resp, err := fiber.Call(ctx, aid, myRequest{}, false)
		require.NoError(t, err)
		require.Equal(t, errcode.NotFoundActor, resp.Header().Error)
		require.Less(t, time.Since(start), 100*time.Millisecond)
		return nil
	}))
}

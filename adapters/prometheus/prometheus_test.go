package prometheus

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/clstr-fiber/core/dispatch"
	"github.com/codewandler/clstr-fiber/core/entity"
	"github.com/codewandler/clstr-fiber/core/fiber"
	"github.com/codewandler/clstr-fiber/core/mailbox"
	"github.com/codewandler/clstr-fiber/core/message"
)

type (
	ping struct{}
	pong struct{ message.ResponseHeader }
)

func gatheredNames(t *testing.T, reg *prometheus.Registry) map[string]bool {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(mfs))
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	return names
}

func TestRPCMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRPCMetrics(reg).(*rpcMetrics)

	m.CallDuration("Ping").ObserveDuration()
	m.CallCompleted("Ping", "ok")
	m.CallCompleted("Ping", "timeout")
	m.CallCompleted("Ping", "ok")
	m.MessageSent("Note")
	m.PendingRequests("1:1", 3)
	m.LateResponse()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.callsTotal.WithLabelValues("Ping", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pending.WithLabelValues("1:1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.late))

	names := gatheredNames(t, reg)
	assert.True(t, names["clstr_fiber_rpc_call_duration_seconds"])
	assert.True(t, names["clstr_fiber_rpc_messages_sent_total"])
}

func TestDispatchMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg).(*dispatchMetrics)

	m.HandlerDuration("Ping").ObserveDuration()
	m.HandlerCompleted("Ping", true)
	m.HandlerCompleted("Ping", false)
	m.HandlerPanicked("Ping")
	m.Unhandled("Pong")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.total.WithLabelValues("Ping", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unhandled.WithLabelValues("Pong")))
	assert.True(t, gatheredNames(t, reg)["clstr_fiber_handler_panics_total"])
}

func TestQueueAndMailboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	q := NewQueueMetrics(reg).(*queueMetrics)
	mb := NewMailboxMetrics(reg).(*mailboxMetrics)

	q.EnvelopeSent("local")
	q.EnvelopeSent("remote")
	q.EnvelopeReceived()
	q.InboxDepth("1", 7)
	q.QueueError("no_route")
	q.Bounced()
	mb.Delivered("ordered")
	mb.Rejected("no_entity")
	mb.LockWait().ObserveDuration()

	assert.Equal(t, 7.0, testutil.ToFloat64(q.depth.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(q.errors.WithLabelValues("no_route")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mb.rejected.WithLabelValues("no_entity")))
	assert.Equal(t, 1, testutil.CollectAndCount(mb.lockWait))
}

func TestNewFiberMetrics_Process(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := fiber.NewProcess(fiber.ProcessOptions{
		ID:      1,
		Log:     slog.New(slog.DiscardHandler),
		Metrics: NewFiberMetrics(reg),
		Handlers: []dispatch.Registration{
			dispatch.HandleRequest(func(dispatch.Ctx, *entity.Entity, ping, *pong) error { return nil }),
		},
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(t.Context()))
	t.Cleanup(func() { _ = p.Stop() })

	f, err := p.NewFiber(1)
	require.NoError(t, err)
	_, aid, err := f.CreateEntity(1, "counter", mailbox.OrderedDispatch)
	require.NoError(t, err)

	require.NoError(t, f.Exec(t.Context(), func(ctx context.Context) error {
		_, err := fiber.CallAs[pong](ctx, aid, ping{}, true)
		return err
	}))

	names := gatheredNames(t, reg)
	for _, n := range []string{
		"clstr_fiber_rpc_calls_total",
		"clstr_fiber_handler_calls_total",
		"clstr_fiber_envelopes_sent_total",
		"clstr_fiber_mailbox_delivered_total",
	} {
		assert.True(t, names[n], n)
	}
}

func TestBoolToStr(t *testing.T) {
	assert.Equal(t, "true", boolToStr(true))
	assert.Equal(t, "false", boolToStr(false))
}

package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/clstr-fiber/core/actorid"
	"github.com/codewandler/clstr-fiber/core/entity"
	"github.com/codewandler/clstr-fiber/core/errcode"
	"github.com/codewandler/clstr-fiber/core/message"
	"github.com/codewandler/clstr-fiber/core/task"
)

type step struct {
	Seq int
}

type recorder struct {
	mu      sync.Mutex
	trace   []string
	errors  []errcode.Code
	gates   map[int]chan struct{}
	handled sync.WaitGroup
}

func newRecorder() *recorder { return &recorder{gates: map[int]chan struct{}{}} }

func (r *recorder) gate(seq int) chan struct{} {
	ch := make(chan struct{})
	r.gates[seq] = ch
	return ch
}

func (r *recorder) Handle(ctx context.Context, target *entity.Entity, env *message.Envelope) {
	defer r.handled.Done()
	seq := env.Payload.(step).Seq
	r.log(fmt.Sprintf("start %d", seq))
	if ch, ok := r.gates[seq]; ok {
		_, _ = task.Await(ctx, ch)
	}
	r.log(fmt.Sprintf("end %d", seq))
}

func (r *recorder) RespondError(_ context.Context, _ *message.Envelope, code errcode.Code, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, code)
}

func (r *recorder) log(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace = append(r.trace, s)
}

func (r *recorder) snapshot() ([]string, []errcode.Code) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.trace...), append([]errcode.Code(nil), r.errors...)
}

type harness struct {
	runner   *task.Runner
	entities *entity.Registry
	rec      *recorder
	d        *Deliverer
}

func newHarness() *harness {
	log := slog.New(slog.DiscardHandler)
	entities := entity.NewRegistry(actorid.NewAddress(1, 1), entity.NewIDGenerator(1), log)
	rec := newRecorder()
	return &harness{
		runner:   task.NewRunner(log),
		entities: entities,
		rec:      rec,
		d: NewDeliverer(DelivererOptions{
			Entities:  entities,
			Handler:   rec,
			Responder: rec,
			Log:       log,
		}),
	}
}

func (h *harness) envelope(e *entity.Entity, seq int, request bool) *message.Envelope {
	env := message.New(actorid.NewAddress(1, 2), h.entities.ActorID(e), step{Seq: seq})
	if request {
		env.RpcID = uint32(seq + 1)
	}
	return env
}

// deliver runs Deliver as fiber tasks, in order.
func (h *harness) deliver(ctx context.Context, envs ...*message.Envelope) {
	h.runner.Acquire()
	defer h.runner.Release()
	for _, env := range envs {
		h.runner.Spawn(ctx, func(ctx context.Context) {
			h.d.Deliver(ctx, env.Target, env)
		})
	}
}

func (h *harness) locked(fn func()) {
	h.runner.Acquire()
	defer h.runner.Release()
	fn()
}

func TestDeliver_NotFound(t *testing.T) {
	h := newHarness()
	ghost := actorid.New(actorid.NewAddress(1, 1), 12345)

	req := message.New(actorid.NewAddress(1, 2), ghost, step{})
	req.RpcID = 1
	h.deliver(t.Context(), req, message.New(actorid.NewAddress(1, 2), ghost, step{}))

	e, err := h.entities.Create(1, "")
	require.NoError(t, err)
	h.deliver(t.Context(), h.envelope(e, 1, true))

	_, errs := h.rec.snapshot()
	require.Equal(t, []errcode.Code{errcode.NotFoundActor, errcode.NotFoundActor}, errs,
		"missing entity and missing mailbox answer requests only")
}

func TestDeliver_OrderedSerializesAcrossSuspension(t *testing.T) {
	h := newHarness()
	e, err := h.entities.Create(1, "")
	require.NoError(t, err)
	Attach(e, OrderedDispatch)

	gate := h.rec.gate(1)
	h.rec.handled.Add(3)
	h.deliver(t.Context(), h.envelope(e, 1, false), h.envelope(e, 2, true), h.envelope(e, 3, false))

	trace, _ := h.rec.snapshot()
	require.Equal(t, []string{"start 1"}, trace)

	close(gate)
	h.rec.handled.Wait()
	trace, errs := h.rec.snapshot()
	require.Equal(t, []string{"start 1", "end 1", "start 2", "end 2", "start 3", "end 3"}, trace)
	require.Empty(t, errs)
}

func TestDeliver_OrderedRejectsStaleInstance(t *testing.T) {
	h := newHarness()
	e, err := h.entities.Create(1, "")
	require.NoError(t, err)
	Attach(e, OrderedDispatch)

	gate := h.rec.gate(1)
	h.rec.handled.Add(1)
	first, queued := h.envelope(e, 1, false), h.envelope(e, 2, true)
	h.deliver(t.Context(), first, queued)

	// recreate while the second envelope waits for the lock
	h.locked(func() {
		require.NoError(t, h.entities.Destroy(e))
		again, err := h.entities.Create(1, "")
		require.NoError(t, err)
		Attach(again, OrderedDispatch)
	})
	close(gate)
	h.rec.handled.Wait()

	require.Eventually(t, func() bool {
		_, errs := h.rec.snapshot()
		return len(errs) == 1
	}, time.Second, time.Millisecond)
	trace, errs := h.rec.snapshot()
	require.Equal(t, []string{"start 1", "end 1"}, trace)
	require.Equal(t, []errcode.Code{errcode.NotFoundActor}, errs)
}

func TestDeliver_Unordered(t *testing.T) {
	h := newHarness()
	e, err := h.entities.Create(1, "")
	require.NoError(t, err)
	Attach(e, UnorderedDispatch)

	gate := h.rec.gate(1)
	h.rec.handled.Add(2)
	h.deliver(t.Context(), h.envelope(e, 1, false), h.envelope(e, 2, false))
	trace, _ := h.rec.snapshot()
	require.Equal(t, []string{"start 1", "start 2", "end 2"}, trace)
	close(gate)
	h.rec.handled.Wait()
}

func TestDeliver_PassThrough(t *testing.T) {
	h := newHarness()
	e, err := h.entities.Create(1, "gate")
	require.NoError(t, err)

	var forwarded []*message.Envelope
	AttachSession(e, SessionFunc(func(_ context.Context, env *message.Envelope) error {
		forwarded = append(forwarded, env)
		if env.Payload.(step).Seq == 2 {
			return errors.New("session closed")
		}
		return nil
	}))

	one, two := h.envelope(e, 1, false), h.envelope(e, 2, true)
	h.deliver(t.Context(), one, two)

	h.locked(func() {
		require.Len(t, forwarded, 2)
		require.Same(t, one, forwarded[0])
	})
	trace, errs := h.rec.snapshot()
	require.Empty(t, trace, "pass-through never reaches the dispatcher")
	require.Equal(t, []errcode.Code{errcode.RpcFail}, errs)
}

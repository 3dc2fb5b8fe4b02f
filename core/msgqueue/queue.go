// Package msgqueue routes envelopes to fiber inboxes.
//
// Envelopes for a fiber of the local process are pushed into its inbox as-is.
// Envelopes for another process are encoded and handed to the Wire; frames
// received from the wire are decoded and pushed into the addressed inbox.
// Fibers drain their inbox in bounded batches with Fetch.
package msgqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/codewandler/clstr-fiber/core/errcode"
	"github.com/codewandler/clstr-fiber/core/message"
)

type Options struct {
	ProcessID int32
	Codec     *message.Codec
	// Wire is optional; without it only local fibers are reachable.
	Wire    Wire
	Log     *slog.Logger
	Metrics Metrics
	// MaxInboxDepth caps every inbox; 0 means unbounded.
	MaxInboxDepth int
}

type Queue struct {
	processID int32
	codec     *message.Codec
	wire      Wire
	log       *slog.Logger
	metrics   Metrics
	maxDepth  int

	mu      sync.RWMutex
	closed  bool
	inboxes map[int32]*inbox
	sub     Subscription
}

type inbox struct {
	label  string
	mu     sync.Mutex
	items  []*message.Envelope
	notify chan struct{}
}

func New(opts Options) *Queue {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}
	if opts.Codec == nil {
		opts.Codec = message.NewCodec(message.NewRegistry())
	}
	return &Queue{
		processID: opts.ProcessID,
		codec:     opts.Codec,
		wire:      opts.Wire,
		log:       opts.Log.With(slog.Int("process", int(opts.ProcessID))),
		metrics:   opts.Metrics,
		maxDepth:  opts.MaxInboxDepth,
		inboxes:   make(map[int32]*inbox),
	}
}

func (q *Queue) ProcessID() int32 { return q.processID }

// Listen subscribes the queue to frames addressed to its process.
func (q *Queue) Listen(ctx context.Context) error {
	if q.wire == nil {
		return nil
	}
	sub, err := q.wire.Listen(ctx, q.processID, q.receive)
	if err != nil {
		return fmt.Errorf("listen on wire: %w", err)
	}
	q.mu.Lock()
	q.sub = sub
	q.mu.Unlock()
	return nil
}

// AddInbox creates the inbox of fiberID. The returned channel is signalled
// whenever envelopes were added.
func (q *Queue) AddInbox(fiberID int32) (<-chan struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	if _, ok := q.inboxes[fiberID]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicate, fiberID)
	}
	ib := &inbox{
		label:  strconv.Itoa(int(fiberID)),
		notify: make(chan struct{}, 1),
	}
	q.inboxes[fiberID] = ib
	return ib.notify, nil
}

// RemoveInbox drops fiberID and returns whatever was still queued.
func (q *Queue) RemoveInbox(fiberID int32) []*message.Envelope {
	q.mu.Lock()
	ib, ok := q.inboxes[fiberID]
	delete(q.inboxes, fiberID)
	q.mu.Unlock()
	if !ok {
		return nil
	}
	ib.mu.Lock()
	defer ib.mu.Unlock()
	left := ib.items
	ib.items = nil
	return left
}

// Send routes env to env.Target. It never waits for the receiver.
func (q *Queue) Send(ctx context.Context, env *message.Envelope) error {
	if env.Target.Process == q.processID {
		if err := q.enqueue(env); err != nil {
			return err
		}
		q.metrics.EnvelopeSent("local")
		return nil
	}

	if q.wire == nil {
		q.metrics.QueueError("no_route")
		return fmt.Errorf("%w: %d", ErrNoRoute, env.Target.Process)
	}
	data, err := q.codec.Marshal(env)
	if err != nil {
		return err
	}
	if err := q.wire.SendToProcess(ctx, env.Target.Process, data); err != nil {
		if errors.Is(err, ErrNoRoute) {
			q.metrics.QueueError("no_route")
		} else {
			q.metrics.QueueError("wire")
		}
		return err
	}
	q.metrics.EnvelopeSent("remote")
	return nil
}

// Fetch appends up to max queued envelopes of fiberID to out.
func (q *Queue) Fetch(fiberID int32, max int, out []*message.Envelope) []*message.Envelope {
	q.mu.RLock()
	ib, ok := q.inboxes[fiberID]
	q.mu.RUnlock()
	if !ok || max <= 0 {
		return out
	}

	ib.mu.Lock()
	n := min(max, len(ib.items))
	out = append(out, ib.items[:n]...)
	clear(ib.items[:n])
	ib.items = ib.items[n:]
	if len(ib.items) == 0 {
		ib.items = nil
	}
	depth := len(ib.items)
	ib.mu.Unlock()

	q.metrics.InboxDepth(ib.label, depth)
	return out
}

// Notify re-signals the inbox of fiberID, used when a fiber stopped draining
// before its inbox was empty.
func (q *Queue) Notify(fiberID int32) {
	q.mu.RLock()
	ib, ok := q.inboxes[fiberID]
	q.mu.RUnlock()
	if ok {
		ib.signal()
	}
}

func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	sub := q.sub
	q.mu.Unlock()
	if sub != nil {
		return sub.Unsubscribe()
	}
	return nil
}

func (q *Queue) enqueue(env *message.Envelope) error {
	q.mu.RLock()
	ib, ok := q.inboxes[env.Target.Fiber]
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrQueueClosed
	}
	if !ok {
		q.metrics.QueueError("no_fiber")
		return fmt.Errorf("%w: %s", ErrNoFiber, env.Target.Address)
	}

	ib.mu.Lock()
	if q.maxDepth > 0 && len(ib.items) >= q.maxDepth {
		ib.mu.Unlock()
		q.metrics.QueueError("inbox_full")
		return fmt.Errorf("%w: %s", ErrInboxFull, env.Target.Address)
	}
	ib.items = append(ib.items, env)
	ib.mu.Unlock()
	ib.signal()
	return nil
}

func (ib *inbox) signal() {
	select {
	case ib.notify <- struct{}{}:
	default:
	}
}

// receive handles one frame from the wire.
func (q *Queue) receive(data []byte) {
	env, err := q.codec.Unmarshal(data)
	if err != nil {
		q.metrics.QueueError("decode")
		if env == nil {
			q.log.Error("dropping undecodable frame", slog.Any("error", err))
			return
		}
		if !env.Response {
			q.log.Error("dropping envelope with undecodable payload", slog.Any("envelope", env), slog.Any("error", err))
			q.bounce(env, errcode.PacketParse, err.Error())
			return
		}
		// a caller is waiting; hand it the failure instead of letting it time out
		q.log.Warn("response payload undecodable", slog.Any("envelope", env), slog.Any("error", err))
		env.Payload = nil
		if env.Error == errcode.OK {
			env.Error = errcode.PacketParse
		}
	}
	q.metrics.EnvelopeReceived()

	if err := q.enqueue(env); err != nil {
		q.log.Warn("cannot deliver envelope", slog.Any("envelope", env), slog.Any("error", err))
		code := errcode.RpcFail
		if Unroutable(err) {
			code = errcode.NotFoundActor
		}
		q.bounce(env, code, err.Error())
	}
}

// bounce answers a remote request that never reached a fiber.
func (q *Queue) bounce(req *message.Envelope, code errcode.Code, msg string) {
	if !req.IsRequest() {
		return
	}
	resp := message.NewErrorResponse(q.codec.Types(), req.Type, code, msg)
	if err := q.Send(context.Background(), message.Reply(req, resp)); err != nil {
		q.log.Warn("bounce failed", slog.Any("envelope", req), slog.Any("error", err))
		return
	}
	q.metrics.Bounced()
}

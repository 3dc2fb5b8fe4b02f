package mailbox

import (
	"context"
	"log/slog"

	"github.com/codewandler/clstr-fiber/core/actorid"
	"github.com/codewandler/clstr-fiber/core/corolock"
	"github.com/codewandler/clstr-fiber/core/entity"
	"github.com/codewandler/clstr-fiber/core/errcode"
	"github.com/codewandler/clstr-fiber/core/message"
)

// Handler runs the registered handlers for an envelope.
type Handler interface {
	Handle(ctx context.Context, target *entity.Entity, env *message.Envelope)
}

// Responder answers a request that could not be handled.
type Responder interface {
	RespondError(ctx context.Context, req *message.Envelope, code errcode.Code, msg string)
}

type DelivererOptions struct {
	Entities  *entity.Registry
	Locks     *corolock.Locker[int64]
	Handler   Handler
	Responder Responder
	Log       *slog.Logger
	Metrics   Metrics
}

// Deliverer applies the mailbox policy of the target entity.
type Deliverer struct {
	entities  *entity.Registry
	locks     *corolock.Locker[int64]
	handler   Handler
	responder Responder
	log       *slog.Logger
	metrics   Metrics
}

func NewDeliverer(opts DelivererOptions) *Deliverer {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}
	if opts.Locks == nil {
		opts.Locks = corolock.New[int64](corolock.WithLog(opts.Log))
	}
	return &Deliverer{
		entities:  opts.Entities,
		locks:     opts.Locks,
		handler:   opts.Handler,
		responder: opts.Responder,
		log:       opts.Log,
		metrics:   opts.Metrics,
	}
}

// Deliver hands env to the entity named by target. Must run inside a task of
// the owning fiber.
func (d *Deliverer) Deliver(ctx context.Context, target actorid.ActorID, env *message.Envelope) {
	e, ok := d.entities.Get(target.InstanceID)
	if !ok {
		d.reject(ctx, env, "no_entity", errcode.NotFoundActor, "actor not found")
		return
	}
	mb, ok := Of(e)
	if !ok {
		d.reject(ctx, env, "no_mailbox", errcode.NotFoundActor, "actor has no mailbox")
		return
	}

	switch mb.Type {
	case OrderedDispatch:
		d.deliverOrdered(ctx, e, target, env)
	case UnorderedDispatch:
		d.metrics.Delivered(mb.Type.String())
		d.handler.Handle(ctx, e, env)
	case PassThrough:
		d.forward(ctx, mb, env)
	default:
		d.reject(ctx, env, "no_mailbox", errcode.NotFoundActor, "unknown mailbox type "+mb.Type.String())
	}
}

func (d *Deliverer) deliverOrdered(ctx context.Context, e *entity.Entity, target actorid.ActorID, env *message.Envelope) {
	wait := d.metrics.LockWait()
	tok, err := d.locks.Acquire(ctx, e.ID())
	wait.ObserveDuration()
	if err != nil {
		d.reject(ctx, env, "lock", errcode.RpcFail, err.Error())
		return
	}
	defer tok.Release()

	// The entity may have been destroyed or recreated while we waited.
	if e.InstanceID() != target.InstanceID {
		d.reject(ctx, env, "stale_instance", errcode.NotFoundActor, "actor instance changed")
		return
	}

	d.metrics.Delivered(OrderedDispatch.String())
	d.handler.Handle(ctx, e, env)
}

func (d *Deliverer) forward(ctx context.Context, mb *Mailbox, env *message.Envelope) {
	if mb.Session == nil {
		d.reject(ctx, env, "session", errcode.NotFoundActor, "pass-through mailbox without session")
		return
	}
	if err := mb.Session.Forward(ctx, env); err != nil {
		d.reject(ctx, env, "session", errcode.RpcFail, err.Error())
		return
	}
	d.metrics.Delivered(PassThrough.String())
}

func (d *Deliverer) reject(ctx context.Context, env *message.Envelope, reason string, code errcode.Code, msg string) {
	d.metrics.Rejected(reason)
	if !env.IsRequest() {
		d.log.Warn("dropping message", slog.String("reason", reason), slog.Any("envelope", env))
		return
	}
	d.log.Debug("rejecting request", slog.String("reason", reason), slog.Any("envelope", env))
	d.responder.RespondError(ctx, env, code, msg)
}

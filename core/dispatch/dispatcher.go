// Package dispatch maps message types to the handlers registered for them.
//
// The registry is built once, from Registrations, when the process starts;
// any inconsistency is reported by New before a single message is handled.
// Handlers are selected by message type and filtered by the role of the
// target entity. A failing request handler never takes the fiber down: its
// error or panic is logged and answered with RpcFail.
//
//	d, err := dispatch.New(dispatch.Options{Types: types, Sender: queue},
//	    dispatch.HandleRequest(handlePing, dispatch.WithScope("echo")),
//	    dispatch.HandleMsg(handleTick),
//	)
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"

	"github.com/codewandler/clstr-fiber/core/entity"
	"github.com/codewandler/clstr-fiber/core/errcode"
	"github.com/codewandler/clstr-fiber/core/message"
)

var (
	ErrDuplicateHandler = errors.New("duplicate handler")
	ErrHandlerKind      = errors.New("message type registered as both request and one-way")
)

// Sender routes responses back to the requesting fiber.
type Sender interface {
	Send(ctx context.Context, env *message.Envelope) error
}

type Options struct {
	Types   *message.Registry
	Sender  Sender
	Log     *slog.Logger
	Metrics Metrics
}

type Dispatcher struct {
	types    *message.Registry
	sender   Sender
	log      *slog.Logger
	metrics  Metrics
	handlers map[string][]Entry
}

type registrar struct {
	entries []Entry
}

func (r *registrar) Register(e Entry) { r.entries = append(r.entries, e) }

// New builds the dispatcher. Registration errors are returned joined.
func New(opts Options, regs ...Registration) (*Dispatcher, error) {
	if opts.Types == nil {
		opts.Types = message.NewRegistry()
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}

	r := &registrar{}
	for _, reg := range regs {
		reg(r)
	}

	d := &Dispatcher{
		types:    opts.Types,
		sender:   opts.Sender,
		log:      opts.Log,
		metrics:  opts.Metrics,
		handlers: make(map[string][]Entry),
	}

	var errs []error
	for _, e := range r.entries {
		if err := d.add(e); err != nil {
			errs = append(errs, fmt.Errorf("register %s (scope %q): %w", e.MsgType, e.Scope, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return d, nil
}

// MustNew is New that panics on registration errors.
func MustNew(opts Options, regs ...Registration) *Dispatcher {
	d, err := New(opts, regs...)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Dispatcher) add(e Entry) error {
	if e.err != nil {
		return e.err
	}
	for _, existing := range d.handlers[e.MsgType] {
		if existing.Request != e.Request {
			return ErrHandlerKind
		}
		if existing.Scope == e.Scope {
			return ErrDuplicateHandler
		}
	}
	if e.Request {
		if err := d.types.RegisterPair(e.ReqType, e.RespType); err != nil {
			return err
		}
	}
	d.handlers[e.MsgType] = append(d.handlers[e.MsgType], e)
	return nil
}

func (d *Dispatcher) Types() *message.Registry { return d.types }

// MessageTypes lists the registered message types, sorted.
func (d *Dispatcher) MessageTypes() []string {
	out := make([]string, 0, len(d.handlers))
	for mt := range d.handlers {
		out = append(out, mt)
	}
	sort.Strings(out)
	return out
}

// Handle runs the handlers registered for env on target.
func (d *Dispatcher) Handle(ctx context.Context, target *entity.Entity, env *message.Envelope) {
	log := d.log.With(slog.String("msg_type", env.Type), slog.Int64("entity", target.ID()))
	hc := &handlerCtx{Context: ctx, log: log, env: env}

	entries := d.handlers[env.Type]
	if len(entries) > 0 && entries[0].Request {
		d.handleRequest(hc, target, entries)
		return
	}
	if env.IsRequest() {
		// message handlers have no response to send back
		d.unhandled(hc, target)
		return
	}

	matched := false
	for _, e := range entries {
		if e.Scope != "" && e.Scope != target.Role() {
			continue
		}
		matched = true
		if err := d.invoke(hc, target, e, nil); err != nil {
			log.Error("message handler failed", slog.Any("error", err))
		}
	}
	if !matched {
		d.unhandled(hc, target)
	}
}

func (d *Dispatcher) handleRequest(hc *handlerCtx, target *entity.Entity, entries []Entry) {
	var chosen *Entry
	for i := range entries {
		e := &entries[i]
		if e.Scope == target.Role() {
			chosen = e
			break
		}
		if e.Scope == "" && chosen == nil {
			chosen = e
		}
	}
	if chosen == nil {
		d.unhandled(hc, target)
		return
	}

	resp := chosen.NewResponse()
	if err := d.invoke(hc, target, *chosen, resp); err != nil {
		hc.log.Error("request handler failed", slog.Any("envelope", hc.env), slog.Any("error", err))
		h := resp.Header()
		h.Error = errcode.RpcFail
		h.Message = err.Error()
	}
	if hc.env.IsRequest() {
		d.reply(hc, hc.env, resp)
	}
}

func (d *Dispatcher) invoke(hc *handlerCtx, target *entity.Entity, e Entry, resp message.Response) (err error) {
	defer d.metrics.HandlerDuration(e.MsgType).ObserveDuration()
	defer func() {
		if r := recover(); r != nil {
			d.metrics.HandlerPanicked(e.MsgType)
			hc.log.Error("handler panicked",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("handler panicked: %v", r)
		}
		d.metrics.HandlerCompleted(e.MsgType, err == nil)
	}()
	return e.Handle(hc, target, hc.env.Payload, resp)
}

func (d *Dispatcher) unhandled(hc *handlerCtx, target *entity.Entity) {
	d.metrics.Unhandled(hc.env.Type)
	hc.log.Error("no handler", slog.String("role", target.Role()), slog.Any("envelope", hc.env))
	d.RespondError(hc, hc.env, errcode.NoHandler, fmt.Sprintf("no handler for %s on role %q", hc.env.Type, target.Role()))
}

// RespondError answers req with a response carrying code. Fire-and-forget
// messages are ignored.
func (d *Dispatcher) RespondError(ctx context.Context, req *message.Envelope, code errcode.Code, msg string) {
	if !req.IsRequest() {
		return
	}
	d.reply(ctx, req, message.NewErrorResponse(d.types, req.Type, code, msg))
}

func (d *Dispatcher) reply(ctx context.Context, req *message.Envelope, resp message.Response) {
	if d.sender == nil {
		d.log.Warn("no sender configured, dropping response", slog.Any("envelope", req))
		return
	}
	if err := d.sender.Send(ctx, message.Reply(req, resp)); err != nil {
		d.log.Warn("failed to route response", slog.Any("envelope", req), slog.Any("error", err))
	}
}

// Package rpc correlates requests sent by a fiber with the responses that
// come back for them.
//
// Every Call allocates an RpcID from the fiber's counter and parks a pending
// entry until the response with that RpcID arrives or the entry expires.
// Expiry is driven by a sweep over the pending entries in allocation order;
// since all entries of a correlator share one timeout, deadlines grow with the
// RpcID and the sweep stops at the first entry that is still alive.
//
// A Correlator is fiber-local: all methods except Pending must be called while
// holding the fiber's run token.
package rpc

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/codewandler/clstr-fiber/core/actorid"
	"github.com/codewandler/clstr-fiber/core/errcode"
	"github.com/codewandler/clstr-fiber/core/message"
	"github.com/codewandler/clstr-fiber/core/metrics"
	"github.com/codewandler/clstr-fiber/core/msgqueue"
	"github.com/codewandler/clstr-fiber/core/reflector"
	"github.com/codewandler/clstr-fiber/core/task"
	"github.com/codewandler/clstr-fiber/core/timer"
)

const (
	DefaultTimeout       = 40 * time.Second
	DefaultSweepInterval = time.Second
)

// Sender hands envelopes to the transport.
type Sender interface {
	Send(ctx context.Context, env *message.Envelope) error
}

type Options struct {
	// Address of the owning fiber, used as the envelope sender.
	Address actorid.Address
	Sender  Sender
	Types   *message.Registry
	Clock   timer.Clock
	Timeout time.Duration
	Log     *slog.Logger
	Metrics Metrics
}

type pending struct {
	rpcID         uint32
	target        actorid.ActorID
	reqType       string
	request       any
	deadline      time.Time
	needException bool
	newResponse   func() message.Response
	done          chan *message.Envelope
	elem          *list.Element
}

func (p *pending) detail() string {
	return fmt.Sprintf("rpc %d to %s: %s %+v", p.rpcID, p.target, p.reqType, p.request)
}

type Correlator struct {
	addr    actorid.Address
	sender  Sender
	types   *message.Registry
	clock   timer.Clock
	timeout time.Duration
	log     *slog.Logger
	metrics Metrics
	label   string

	nextID  uint32
	pending map[uint32]*pending
	order   *list.List
	size    atomic.Int64
}

func New(opts Options) *Correlator {
	if opts.Types == nil {
		opts.Types = message.NewRegistry()
	}
	if opts.Clock == nil {
		opts.Clock = timer.Real()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}
	return &Correlator{
		addr:    opts.Address,
		sender:  opts.Sender,
		types:   opts.Types,
		clock:   opts.Clock,
		timeout: opts.Timeout,
		log:     opts.Log,
		metrics: opts.Metrics,
		label:   opts.Address.String(),
		pending: make(map[uint32]*pending),
		order:   list.New(),
	}
}

func (c *Correlator) Address() actorid.Address { return c.addr }
func (c *Correlator) Timeout() time.Duration   { return c.timeout }

// Pending returns the number of outstanding calls. Safe from any goroutine.
func (c *Correlator) Pending() int { return int(c.size.Load()) }

// Send delivers msg without expecting a response. It does not wait for the
// receiver and leaves no state behind.
func (c *Correlator) Send(ctx context.Context, target actorid.ActorID, msg any) error {
	env := message.New(c.addr, target, msg)
	if err := c.sender.Send(ctx, env); err != nil {
		c.log.Debug("send failed", slog.Any("envelope", env), slog.Any("error", err))
		return err
	}
	c.metrics.MessageSent(env.Type)
	return nil
}

// Call sends req and suspends the calling task until its response arrives,
// the request expires, or ctx is done.
//
// Timeouts always return an error. Other error codes return an error only
// when needException is set and the code is in the must-throw class; in every
// other case the error-carrying response is returned with a nil error, e.g.
// NotFoundActor.
func (c *Correlator) Call(ctx context.Context, target actorid.ActorID, req any, needException bool) (message.Response, error) {
	reqType := reflector.Name(req)
	return c.call(ctx, target, req, needException, func() message.Response {
		return c.types.NewResponse(reqType)
	})
}

// CallAs is Call with a typed response. The request/response pairing is
// registered on first use.
func CallAs[RESP any, REQ any](ctx context.Context, c *Correlator, target actorid.ActorID, req REQ, needException bool) (*RESP, error) {
	if err := message.RegisterRequest[REQ, RESP](c.types); err != nil {
		return nil, err
	}
	resp, err := c.call(ctx, target, req, needException, func() message.Response {
		return any(new(RESP)).(message.Response)
	})
	if resp == nil {
		return nil, err
	}
	if out, ok := resp.(*RESP); ok {
		return out, err
	}
	// the remote side answered with a generic error response
	out := new(RESP)
	*any(out).(message.Response).Header() = *resp.Header()
	return out, err
}

func (c *Correlator) call(ctx context.Context, target actorid.ActorID, req any, needException bool, newResponse func() message.Response) (message.Response, error) {
	p := &pending{
		rpcID:         c.allocID(),
		target:        target,
		reqType:       reflector.Name(req),
		request:       req,
		deadline:      c.clock.Now().Add(c.timeout),
		needException: needException,
		newResponse:   newResponse,
		done:          make(chan *message.Envelope, 1),
	}
	c.add(p)
	tmr := c.metrics.CallDuration(p.reqType)

	env := &message.Envelope{
		From:    c.addr,
		Target:  target,
		RpcID:   p.rpcID,
		Type:    p.reqType,
		Payload: req,
	}
	if err := c.sender.Send(ctx, env); err != nil {
		c.remove(p)
		if !msgqueue.Unroutable(err) {
			c.metrics.CallCompleted(p.reqType, "send_error")
			return nil, fmt.Errorf("send %s: %w", p.reqType, err)
		}
		return c.resolve(p, c.synthesize(p, errcode.NotFoundActor, err.Error()), tmr)
	}

	resp, err := task.Await(ctx, p.done)
	if err != nil {
		c.remove(p)
		c.metrics.CallCompleted(p.reqType, "canceled")
		return nil, err
	}
	return c.resolve(p, resp, tmr)
}

// HandleResponse completes the pending call env answers. Responses without a
// matching entry (late, duplicate, or from the wrong peer) are dropped.
func (c *Correlator) HandleResponse(env *message.Envelope) bool {
	p, ok := c.pending[env.RpcID]
	if !ok || p.target.Address != env.From {
		c.metrics.LateResponse()
		c.log.Debug("dropping response without pending request", slog.Any("envelope", env))
		return false
	}
	c.remove(p)
	p.done <- env
	return true
}

// Sweep expires every pending call whose deadline is at or before now and
// returns how many expired.
func (c *Correlator) Sweep(now time.Time) int {
	n := 0
	for e := c.order.Front(); e != nil; {
		p := e.Value.(*pending)
		if now.Before(p.deadline) {
			break
		}
		next := e.Next()
		c.remove(p)
		p.done <- c.synthesize(p, errcode.ActorTimeout, fmt.Sprintf("no response within %s", c.timeout))
		n++
		e = next
	}
	if n > 0 {
		c.log.Warn("pending requests expired", slog.Int("count", n))
	}
	return n
}

// RunSweeper sweeps every interval until ctx is done. Run it as a fiber
// task.
func (c *Correlator) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	for {
		if err := task.Sleep(ctx, c.clock, interval); err != nil {
			return
		}
		c.Sweep(c.clock.Now())
	}
}

// FailAll resolves every pending call with code, e.g. when the fiber stops.
func (c *Correlator) FailAll(code errcode.Code, msg string) int {
	n := 0
	for e := c.order.Front(); e != nil; {
		next := e.Next()
		p := e.Value.(*pending)
		c.remove(p)
		p.done <- c.synthesize(p, code, msg)
		n++
		e = next
	}
	return n
}

func (c *Correlator) allocID() uint32 {
	for {
		c.nextID++
		if c.nextID == 0 {
			continue
		}
		// after wraparound an old request may still hold the id
		if _, busy := c.pending[c.nextID]; !busy {
			return c.nextID
		}
	}
}

func (c *Correlator) add(p *pending) {
	c.pending[p.rpcID] = p
	p.elem = c.order.PushBack(p)
	c.metrics.PendingRequests(c.label, int(c.size.Add(1)))
}

func (c *Correlator) remove(p *pending) {
	if p.elem == nil {
		return
	}
	c.order.Remove(p.elem)
	p.elem = nil
	delete(c.pending, p.rpcID)
	c.metrics.PendingRequests(c.label, int(c.size.Add(-1)))
}

// synthesize builds a local response envelope for p.
func (c *Correlator) synthesize(p *pending, code errcode.Code, msg string) *message.Envelope {
	resp := p.newResponse()
	h := resp.Header()
	h.Error = code
	h.Message = msg
	return &message.Envelope{
		From:     p.target.Address,
		Target:   actorid.ActorID{Address: c.addr},
		RpcID:    p.rpcID,
		Response: true,
		Error:    code,
		Type:     reflector.Name(resp),
		Payload:  resp,
	}
}

func (c *Correlator) responseOf(p *pending, env *message.Envelope) message.Response {
	resp, ok := env.Payload.(message.Response)
	if !ok {
		resp = p.newResponse()
	}
	if h := resp.Header(); h.Error == errcode.OK && env.Error != errcode.OK {
		h.Error = env.Error
	}
	return resp
}

func (c *Correlator) resolve(p *pending, env *message.Envelope, tmr metrics.Timer) (message.Response, error) {
	tmr.ObserveDuration()
	resp := c.responseOf(p, env)
	h := resp.Header()
	c.metrics.CallCompleted(p.reqType, h.Error.String())

	switch {
	case h.Error.IsTimeout():
		err := &errcode.Error{Code: h.Error, Message: h.Message}
		if p.needException {
			err.Detail = p.detail()
			return nil, err
		}
		return resp, err
	case p.needException && h.Error.NeedThrow():
		return nil, &errcode.Error{Code: h.Error, Message: h.Message}
	}
	return resp, nil
}

package dispatch

import (
	"fmt"

	"github.com/codewandler/clstr-fiber/core/entity"
	"github.com/codewandler/clstr-fiber/core/message"
	"github.com/codewandler/clstr-fiber/core/reflector"
)

type (
	// HandlerFunc is the untyped form every registration is reduced to. resp
	// is nil for one-way handlers.
	HandlerFunc func(hc Ctx, target *entity.Entity, msg any, resp message.Response) error

	// Entry is one registered handler.
	Entry struct {
		MsgType string
		// Scope restricts the handler to entities of that role; "" matches all.
		Scope   string
		Request bool
		ReqType reflector.TypeInfo
		// RespType and NewResponse are only set for request handlers.
		RespType    reflector.TypeInfo
		NewResponse func() message.Response
		Handle      HandlerFunc

		err error
	}

	// Registrar collects handler entries.
	Registrar interface {
		Register(e Entry)
	}

	// Registration registers handlers with a registrar. Create these with
	// HandleMsg and HandleRequest.
	Registration func(r Registrar)
)

// HandleOpts configures a registration.
type HandleOpts struct {
	Scope string
	// MessageType overrides the name derived from the Go type.
	MessageType string
}

type HandleOption func(*HandleOpts)

// WithScope restricts a handler to entities of the given role.
func WithScope(scope string) HandleOption {
	return func(o *HandleOpts) { o.Scope = scope }
}

func WithMessageType(msgType string) HandleOption {
	return func(o *HandleOpts) { o.MessageType = msgType }
}

func handleOpts[IN any](opts []HandleOption) HandleOpts {
	o := HandleOpts{MessageType: reflector.NameFor[IN]()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// HandleMsg registers a one-way handler for IN.
func HandleMsg[IN any](h func(hc Ctx, target *entity.Entity, msg IN) error, opts ...HandleOption) Registration {
	o := handleOpts[IN](opts)
	return func(r Registrar) {
		r.Register(Entry{
			MsgType: o.MessageType,
			Scope:   o.Scope,
			ReqType: reflector.TypeInfoFor[IN](),
			Handle: func(hc Ctx, target *entity.Entity, msg any, _ message.Response) error {
				in, ok := payloadAs[IN](msg)
				if !ok {
					return fmt.Errorf("invalid message payload: %T", msg)
				}
				return h(hc, target, in)
			},
		})
	}
}

// HandleRequest registers a request handler for IN answered with *OUT. The
// handler fills the pre-allocated response; OUT must embed
// message.ResponseHeader.
func HandleRequest[IN any, OUT any](h func(hc Ctx, target *entity.Entity, req IN, resp *OUT) error, opts ...HandleOption) Registration {
	o := handleOpts[IN](opts)
	return func(r Registrar) {
		e := Entry{
			MsgType:  o.MessageType,
			Scope:    o.Scope,
			Request:  true,
			ReqType:  reflector.TypeInfoFor[IN](),
			RespType: reflector.TypeInfoFor[OUT](),
		}
		if _, ok := any(new(OUT)).(message.Response); !ok {
			e.err = fmt.Errorf("%w: %s", message.ErrNotResponse, e.RespType.Name)
		}
		e.NewResponse = func() message.Response {
			return any(new(OUT)).(message.Response)
		}
		e.Handle = func(hc Ctx, target *entity.Entity, msg any, resp message.Response) error {
			in, ok := payloadAs[IN](msg)
			if !ok {
				return fmt.Errorf("invalid request payload: %T", msg)
			}
			out, ok := resp.(*OUT)
			if !ok {
				return fmt.Errorf("invalid response: %T", resp)
			}
			return h(hc, target, in, out)
		}
		r.Register(e)
	}
}

// payloadAs accepts a payload sent as T locally or decoded as *T from the
// wire.
func payloadAs[T any](v any) (T, bool) {
	switch p := v.(type) {
	case T:
		return p, true
	case *T:
		if p != nil {
			return *p, true
		}
	}
	var zero T
	return zero, false
}

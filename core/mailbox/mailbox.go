// Package mailbox decides how an envelope reaches the entity it addresses.
//
// An entity can only receive messages once a Mailbox component is attached.
// The mailbox type selects the delivery policy:
//
//   - OrderedDispatch serializes handlers per persistent entity id with the
//     fiber's coroutine lock, across suspension points.
//   - UnorderedDispatch runs handlers as envelopes arrive.
//   - PassThrough forwards envelopes verbatim to a Session, e.g. a client
//     connection proxied by a gateway entity.
package mailbox

import (
	"context"
	"fmt"

	"github.com/codewandler/clstr-fiber/core/entity"
	"github.com/codewandler/clstr-fiber/core/message"
)

type Type int

const (
	OrderedDispatch Type = iota + 1
	UnorderedDispatch
	PassThrough
)

func (t Type) String() string {
	switch t {
	case OrderedDispatch:
		return "ordered"
	case UnorderedDispatch:
		return "unordered"
	case PassThrough:
		return "pass_through"
	default:
		return fmt.Sprintf("mailbox_type_%d", int(t))
	}
}

// Session receives envelopes of a PassThrough mailbox.
type Session interface {
	Forward(ctx context.Context, env *message.Envelope) error
}

// SessionFunc adapts a function to Session.
type SessionFunc func(ctx context.Context, env *message.Envelope) error

func (f SessionFunc) Forward(ctx context.Context, env *message.Envelope) error { return f(ctx, env) }

type Mailbox struct {
	Type    Type
	Session Session
}

// Attach adds a dispatching mailbox to e.
func Attach(e *entity.Entity, t Type) *Mailbox {
	mb := &Mailbox{Type: t}
	entity.AddComponent(e, mb)
	return mb
}

// AttachSession adds a PassThrough mailbox forwarding to s.
func AttachSession(e *entity.Entity, s Session) *Mailbox {
	mb := &Mailbox{Type: PassThrough, Session: s}
	entity.AddComponent(e, mb)
	return mb
}

func Detach(e *entity.Entity) { entity.RemoveComponent[*Mailbox](e) }

func Of(e *entity.Entity) (*Mailbox, bool) {
	return entity.GetComponent[*Mailbox](e)
}

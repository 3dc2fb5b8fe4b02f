// Package message holds the envelope exchanged between fibers, the response
// contract, the message type registry and the wire codec used when an
// envelope leaves its process.
package message

import (
	"log/slog"

	"github.com/codewandler/clstr-fiber/core/actorid"
	"github.com/codewandler/clstr-fiber/core/errcode"
	"github.com/codewandler/clstr-fiber/core/reflector"
)

// Envelope wraps a message for routing.
//
// RpcID 0 marks a fire-and-forget message. RpcIDs are allocated by the
// sending fiber and are only meaningful together with From.
type Envelope struct {
	From     actorid.Address
	Target   actorid.ActorID
	RpcID    uint32
	Response bool
	Error    errcode.Code
	Type     string
	Payload  any
}

// IsRequest reports whether the sender is waiting for a response.
func (e *Envelope) IsRequest() bool { return e.RpcID != 0 && !e.Response }

func (e *Envelope) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("type", e.Type),
		slog.String("from", e.From.String()),
		slog.String("target", e.Target.String()),
	}
	if e.RpcID != 0 {
		attrs = append(attrs, slog.Uint64("rpc_id", uint64(e.RpcID)))
	}
	if e.Response {
		attrs = append(attrs, slog.Bool("response", true))
	}
	if e.Error != errcode.OK {
		attrs = append(attrs, slog.String("error", e.Error.String()))
	}
	return slog.GroupValue(attrs...)
}

// New builds a fire-and-forget envelope for msg.
func New(from actorid.Address, target actorid.ActorID, msg any) *Envelope {
	return &Envelope{
		From:    from,
		Target:  target,
		Type:    reflector.Name(msg),
		Payload: msg,
	}
}

// Reply builds the response envelope for req, routed back to the sending
// fiber and stamped with the originating RpcID.
func Reply(req *Envelope, resp Response) *Envelope {
	return &Envelope{
		From:     req.Target.Address,
		Target:   actorid.ActorID{Address: req.From},
		RpcID:    req.RpcID,
		Response: true,
		Error:    resp.Header().Error,
		Type:     reflector.Name(resp),
		Payload:  resp,
	}
}

var _ slog.LogValuer = (*Envelope)(nil)

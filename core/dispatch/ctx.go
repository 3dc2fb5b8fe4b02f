package dispatch

import (
	"context"
	"log/slog"

	"github.com/codewandler/clstr-fiber/core/actorid"
	"github.com/codewandler/clstr-fiber/core/message"
)

type (
	// Ctx is passed to handlers. It is the handling task's context, so it can
	// be used for calls and sleeps that suspend the handler.
	Ctx interface {
		context.Context
		Log() *slog.Logger
		Envelope() *message.Envelope
		// From is the fiber that sent the message.
		From() actorid.Address
	}
)

type handlerCtx struct {
	context.Context
	log *slog.Logger
	env *message.Envelope
}

func (hc *handlerCtx) Log() *slog.Logger           { return hc.log }
func (hc *handlerCtx) Envelope() *message.Envelope { return hc.env }
func (hc *handlerCtx) From() actorid.Address       { return hc.env.From }

var _ Ctx = (*handlerCtx)(nil)

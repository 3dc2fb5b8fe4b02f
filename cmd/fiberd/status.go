package main

import (
	"github.com/codewandler/clstr-fiber/core/dispatch"
	"github.com/codewandler/clstr-fiber/core/entity"
	"github.com/codewandler/clstr-fiber/core/fiber"
	"github.com/codewandler/clstr-fiber/core/message"
)

type (
	// GetStatus asks the status entity of a process for a summary.
	GetStatus struct{}

	Status struct {
		message.ResponseHeader
		ProcessID int32         `json:"process_id"`
		BootID    string        `json:"boot_id"`
		Fibers    []FiberStatus `json:"fibers"`
	}

	FiberStatus struct {
		ID       int32 `json:"id"`
		Entities int   `json:"entities"`
		Pending  int   `json:"pending"`
	}

	// Echo is answered with the same text.
	Echo struct {
		Text string `json:"text"`
	}

	EchoReply struct {
		message.ResponseHeader
		Text string `json:"text"`
	}
)

func statusHandlers(processID int32) []dispatch.Registration {
	return []dispatch.Registration{
		dispatch.HandleRequest(func(hc dispatch.Ctx, _ *entity.Entity, _ GetStatus, resp *Status) error {
			f, ok := fiber.FromContext(hc)
			if !ok {
				return fiber.ErrNotInFiber
			}
			p := f.Process()
			resp.ProcessID = processID
			resp.BootID = p.BootID()
			for _, other := range p.Fibers() {
				resp.Fibers = append(resp.Fibers, FiberStatus{
					ID:       other.ID(),
					Entities: other.Entities().Len(),
					Pending:  other.Correlator().Pending(),
				})
			}
			return nil
		}),
		dispatch.HandleRequest(func(_ dispatch.Ctx, _ *entity.Entity, req Echo, resp *EchoReply) error {
			resp.Text = req.Text
			return nil
		}),
	}
}

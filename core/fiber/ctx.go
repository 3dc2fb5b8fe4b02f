package fiber

import (
	"context"
	"errors"
	"time"

	"github.com/codewandler/clstr-fiber/core/actorid"
	"github.com/codewandler/clstr-fiber/core/message"
	"github.com/codewandler/clstr-fiber/core/rpc"
	"github.com/codewandler/clstr-fiber/core/task"
)

// ErrNotInFiber is returned by the helpers below when ctx does not belong to
// a task of a fiber.
var ErrNotInFiber = errors.New("context is not running on a fiber")

type ctxKey struct{}

// FromContext returns the fiber ctx was created for, if any.
func FromContext(ctx context.Context) (*Fiber, bool) {
	f, ok := ctx.Value(ctxKey{}).(*Fiber)
	return f, ok
}

// current returns the fiber whose task ctx belongs to.
func current(ctx context.Context) (*Fiber, error) {
	f, ok := FromContext(ctx)
	if !ok || !task.InTask(ctx, f.runner) {
		return nil, ErrNotInFiber
	}
	return f, nil
}

// Send delivers msg to target from the current fiber.
func Send(ctx context.Context, target actorid.ActorID, msg any) error {
	f, err := current(ctx)
	if err != nil {
		return err
	}
	return f.rpc.Send(ctx, target, msg)
}

// Call sends req from the current fiber and suspends the calling task until
// the response arrives. See rpc.Correlator.Call for error classification.
func Call(ctx context.Context, target actorid.ActorID, req any, needException bool) (message.Response, error) {
	f, err := current(ctx)
	if err != nil {
		return nil, err
	}
	return f.rpc.Call(ctx, target, req, needException)
}

// CallAs is Call with a typed response.
func CallAs[RESP any, REQ any](ctx context.Context, target actorid.ActorID, req REQ, needException bool) (*RESP, error) {
	f, err := current(ctx)
	if err != nil {
		return nil, err
	}
	return rpc.CallAs[RESP](ctx, f.rpc, target, req, needException)
}

// Sleep suspends the calling task for d on the fiber's clock, letting other
// tasks run meanwhile.
func Sleep(ctx context.Context, d time.Duration) error {
	f, err := current(ctx)
	if err != nil {
		return err
	}
	return task.Sleep(ctx, f.clock, d)
}

// Go starts fn as a new task on the current fiber.
func Go(ctx context.Context, fn func(ctx context.Context)) error {
	f, err := current(ctx)
	if err != nil {
		return err
	}
	task.Go(ctx, f.runner, fn)
	return nil
}

// Await suspends the calling task until ch yields. Off-fiber goroutines
// (database calls, lookups) report back through ch while the fiber keeps
// running other tasks.
func Await[T any](ctx context.Context, ch <-chan T) (T, error) {
	if _, err := current(ctx); err != nil {
		var zero T
		return zero, err
	}
	return task.Await(ctx, ch)
}

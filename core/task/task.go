// Package task implements cooperative scheduling for a fiber.
//
// A Runner owns a single run token. Code touching fiber-local state runs only
// while holding it. Tasks started with Spawn run until their first suspension
// point (Await, Sleep) before Spawn returns, which keeps the order of work
// started from the fiber loop deterministic: a task that suspends on a lock
// is queued on that lock before the next task starts.
//
// While a task is suspended the token is free for the loop and other tasks;
// on wake-up the task reacquires it before continuing.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/codewandler/clstr-fiber/core/timer"
)

type Runner struct {
	token chan struct{}
	log   *slog.Logger
}

func NewRunner(log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		token: make(chan struct{}, 1),
		log:   log,
	}
}

// Acquire blocks until the caller holds the run token.
func (r *Runner) Acquire() { r.token <- struct{}{} }

// Release returns the run token.
func (r *Runner) Release() { <-r.token }

type ctxKey struct{}

type task struct {
	r *Runner
	// handoff is closed at the first suspension or on exit, returning the
	// token to the spawner. nil afterwards.
	handoff chan struct{}
}

func (t *task) yield() {
	if h := t.handoff; h != nil {
		t.handoff = nil
		close(h)
		return
	}
	t.r.Release()
}

// Spawn runs fn as a task. The caller must hold the token; it holds it again
// when Spawn returns, which happens once fn finished or first suspended.
// Panics in fn are recovered and logged.
func (r *Runner) Spawn(ctx context.Context, fn func(ctx context.Context)) {
	t := &task{r: r, handoff: make(chan struct{})}
	handoff := t.handoff
	go func() {
		defer t.yield()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("task panicked",
					slog.String("panic", fmt.Sprint(rec)),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		fn(context.WithValue(ctx, ctxKey{}, t))
	}()
	<-handoff
}

// Go spawns fn from inside a running task of the same runner. Outside a task
// it acquires the token first.
func Go(ctx context.Context, r *Runner, fn func(ctx context.Context)) {
	if t, ok := ctx.Value(ctxKey{}).(*task); ok && t.r == r {
		r.Spawn(ctx, fn)
		return
	}
	r.Acquire()
	r.Spawn(ctx, fn)
	r.Release()
}

// InTask reports whether ctx belongs to a task of r.
func InTask(ctx context.Context, r *Runner) bool {
	t, ok := ctx.Value(ctxKey{}).(*task)
	return ok && t.r == r
}

// Await suspends the calling task until ch yields a value or is closed, or
// ctx is done. Called outside a task it simply blocks.
//
// ctx must be the calling task's own context; passing it to another goroutine
// and awaiting there corrupts token accounting.
func Await[T any](ctx context.Context, ch <-chan T) (T, error) {
	if t, ok := ctx.Value(ctxKey{}).(*task); ok {
		t.yield()
		defer t.r.Acquire()
	}
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Sleep suspends the calling task for d on clock.
func Sleep(ctx context.Context, clock timer.Clock, d time.Duration) error {
	_, err := Await(ctx, clock.After(d))
	return err
}

package fiber

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewandler/clstr-fiber/core/actorid"
	"github.com/codewandler/clstr-fiber/core/corolock"
	"github.com/codewandler/clstr-fiber/core/entity"
	"github.com/codewandler/clstr-fiber/core/errcode"
	"github.com/codewandler/clstr-fiber/core/mailbox"
	"github.com/codewandler/clstr-fiber/core/message"
	"github.com/codewandler/clstr-fiber/core/rpc"
	"github.com/codewandler/clstr-fiber/core/task"
	"github.com/codewandler/clstr-fiber/core/timer"
)

// Fiber is a single-threaded execution context. Everything it owns is only
// touched by its tasks, one at a time.
type Fiber struct {
	id    int32
	addr  actorid.Address
	proc  *Process
	log   *slog.Logger
	clock timer.Clock

	runner    *task.Runner
	entities  *entity.Registry
	locks     *corolock.Locker[int64]
	rpc       *rpc.Correlator
	deliverer *mailbox.Deliverer

	wake          <-chan struct{}
	batch         atomic.Int64
	sweepInterval time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func newFiber(p *Process, id int32, wake <-chan struct{}, o Options) *Fiber {
	addr := actorid.NewAddress(p.id, id)
	log := p.log.With(slog.String("fiber", addr.String()))

	f := &Fiber{
		id:            id,
		addr:          addr,
		proc:          p,
		log:           log,
		clock:         o.Clock,
		runner:        task.NewRunner(log),
		entities:      entity.NewRegistry(addr, p.ids, log),
		locks:         corolock.New[int64](corolock.WithWaitTimeout(o.LockWaitTimeout), corolock.WithLog(log)),
		wake:          wake,
		sweepInterval: o.SweepInterval,
		done:          make(chan struct{}),
	}
	f.batch.Store(int64(o.BatchSize))
	f.rpc = rpc.New(rpc.Options{
		Address: addr,
		Sender:  p.queue,
		Types:   p.types,
		Clock:   o.Clock,
		Timeout: o.RequestTimeout,
		Log:     log,
		Metrics: p.metrics.RPC,
	})
	f.deliverer = mailbox.NewDeliverer(mailbox.DelivererOptions{
		Entities:  f.entities,
		Locks:     f.locks,
		Handler:   p.disp,
		Responder: p.disp,
		Log:       log,
		Metrics:   p.metrics.Mailbox,
	})
	f.ctx, f.cancel = context.WithCancel(context.WithValue(context.Background(), ctxKey{}, f))
	return f
}

func (f *Fiber) ID() int32                   { return f.id }
func (f *Fiber) Address() actorid.Address    { return f.addr }
func (f *Fiber) Process() *Process           { return f.proc }
func (f *Fiber) Log() *slog.Logger           { return f.log }
func (f *Fiber) Clock() timer.Clock          { return f.clock }
func (f *Fiber) Entities() *entity.Registry  { return f.entities }
func (f *Fiber) Correlator() *rpc.Correlator { return f.rpc }
func (f *Fiber) Done() <-chan struct{}       { return f.done }

// BatchSize is the number of envelopes drained per tick.
func (f *Fiber) BatchSize() int { return int(f.batch.Load()) }

// SetBatchSize changes the batch size from the next tick on. n <= 0 restores
// the default.
func (f *Fiber) SetBatchSize(n int) {
	if n <= 0 {
		n = DefaultBatchSize
	}
	f.batch.Store(int64(n))
}

// CreateEntity registers a new entity on this fiber with a mailbox of type
// mb. The returned ActorID is what peers use to reach it.
func (f *Fiber) CreateEntity(id int64, role string, mb mailbox.Type) (*entity.Entity, actorid.ActorID, error) {
	e, err := f.entities.Create(id, role)
	if err != nil {
		return nil, actorid.ActorID{}, err
	}
	mailbox.Attach(e, mb)
	return e, f.entities.ActorID(e), nil
}

// CreateSession registers a pass-through entity whose envelopes go to s.
func (f *Fiber) CreateSession(id int64, role string, s mailbox.Session) (*entity.Entity, actorid.ActorID, error) {
	e, err := f.entities.Create(id, role)
	if err != nil {
		return nil, actorid.ActorID{}, err
	}
	mailbox.AttachSession(e, s)
	return e, f.entities.ActorID(e), nil
}

// DestroyEntity disposes e. Envelopes still addressed to its instance are
// answered with NotFoundActor.
func (f *Fiber) DestroyEntity(e *entity.Entity) error {
	mailbox.Detach(e)
	return f.entities.Destroy(e)
}

// Exec runs fn as a task on the fiber and waits for it. Called from one of
// the fiber's own tasks it runs fn inline. Called from a task of another
// fiber, that task is suspended while it waits, so fibers may Exec on each
// other.
func (f *Fiber) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	if task.InTask(ctx, f.runner) {
		return fn(ctx)
	}
	select {
	case <-f.done:
		return ErrStopped
	default:
	}

	res := make(chan error, 1)
	start := func() {
		task.Go(context.WithValue(ctx, ctxKey{}, f), f.runner, func(ctx context.Context) {
			res <- f.protect(ctx, fn)
		})
	}
	if _, ok := FromContext(ctx); ok {
		// acquiring our token here would hold the caller's
		go start()
	} else {
		start()
	}
	err, waitErr := task.Await(ctx, res)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// Go starts fn as a task on the fiber without waiting for it.
func (f *Fiber) Go(ctx context.Context, fn func(ctx context.Context)) {
	task.Go(context.WithValue(ctx, ctxKey{}, f), f.runner, fn)
}

func (f *Fiber) protect(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			f.log.Error("exec panicked",
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())),
			)
			err = errcode.Errorf(errcode.RpcFail, "panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// Stop halts the loop, fails every pending call with RpcFail and answers
// queued requests with NotFoundActor. Must not be called from one of the
// fiber's own tasks.
func (f *Fiber) Stop() {
	f.stopOnce.Do(func() {
		f.cancel()
		<-f.done

		left := f.proc.queue.RemoveInbox(f.id)

		f.runner.Acquire()
		defer f.runner.Release()
		failed := f.rpc.FailAll(errcode.RpcFail, "fiber stopped")
		for _, env := range left {
			if env.IsRequest() {
				f.proc.disp.RespondError(context.Background(), env, errcode.NotFoundActor, "fiber stopped")
			}
		}
		f.log.Debug("fiber stopped", slog.Int("failed_calls", failed), slog.Int("dropped", len(left)))
	})
}

func (f *Fiber) run() {
	defer close(f.done)
	task.Go(f.ctx, f.runner, func(ctx context.Context) {
		f.rpc.RunSweeper(ctx, f.sweepInterval)
	})

	var buf []*message.Envelope
	for {
		select {
		case <-f.ctx.Done():
			return
		case <-f.wake:
		}
		buf = f.tick(buf[:0])
		if len(buf) >= f.BatchSize() {
			// more may be waiting; come back after a fresh wakeup
			f.proc.queue.Notify(f.id)
		}
		clear(buf)
	}
}

// tick drains one batch. Responses complete their pending call directly,
// everything else is delivered in a task of its own.
func (f *Fiber) tick(buf []*message.Envelope) []*message.Envelope {
	f.runner.Acquire()
	defer f.runner.Release()

	buf = f.proc.queue.Fetch(f.id, f.BatchSize(), buf)
	for _, env := range buf {
		if env.Response {
			f.rpc.HandleResponse(env)
			continue
		}
		f.runner.Spawn(f.ctx, func(ctx context.Context) {
			f.deliverer.Deliver(ctx, env.Target, env)
		})
	}
	return buf
}

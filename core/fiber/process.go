// Package fiber runs cooperative execution contexts that exchange messages
// with location-transparent actors.
//
// A Process owns the message queue, the wire listener, the dispatcher and the
// message type registry. It hosts any number of fibers; each fiber owns its
// entities, coroutine locks and RPC correlator, and drains its inbox in
// bounded batches. Handler code and fiber-local state only run while holding
// the fiber's run token, so they need no further locking.
//
//	p, _ := fiber.NewProcess(fiber.ProcessOptions{
//	    ID:       1,
//	    Wire:     wire,
//	    Handlers: []dispatch.Registration{dispatch.HandleRequest(handlePing)},
//	})
//	_ = p.Start(ctx)
//	f, _ := p.NewFiber(1)
//	err := f.Exec(ctx, func(ctx context.Context) error {
//	    pong, err := fiber.CallAs[Pong](ctx, target, Ping{}, true)
//	    ...
//	})
package fiber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/clstr-fiber/core/dispatch"
	"github.com/codewandler/clstr-fiber/core/entity"
	"github.com/codewandler/clstr-fiber/core/message"
	"github.com/codewandler/clstr-fiber/core/msgqueue"
	"github.com/codewandler/clstr-fiber/internal/hrw"
)

var (
	ErrFiberExists   = errors.New("fiber already exists")
	ErrFiberNotFound = errors.New("fiber not found")
	ErrStopped       = errors.New("fiber stopped")
)

type Process struct {
	id      int32
	bootID  string
	log     *slog.Logger
	types   *message.Registry
	queue   *msgqueue.Queue
	disp    *dispatch.Dispatcher
	ids     *entity.IDGenerator
	opts    ProcessOptions
	metrics Metrics

	mu     sync.RWMutex
	fibers map[int32]*Fiber
}

// NewProcess builds a process. Handler registration errors are returned here
// and are meant to abort startup.
func NewProcess(opts ProcessOptions) (*Process, error) {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Types == nil {
		opts.Types = message.NewRegistry()
	}
	opts.Metrics = opts.Metrics.withDefaults()
	if opts.ID < 0 || opts.ID > entity.MaxProcessID {
		return nil, fmt.Errorf("process id %d outside 0..%d", opts.ID, entity.MaxProcessID)
	}

	bootID := gonanoid.Must()
	log := opts.Log.With(slog.Int("process", int(opts.ID)), slog.String("boot", bootID))

	queue := msgqueue.New(msgqueue.Options{
		ProcessID:     opts.ID,
		Codec:         message.NewCodec(opts.Types),
		Wire:          opts.Wire,
		Log:           log,
		Metrics:       opts.Metrics.Queue,
		MaxInboxDepth: opts.MaxInboxDepth,
	})

	disp, err := dispatch.New(dispatch.Options{
		Types:   opts.Types,
		Sender:  queue,
		Log:     log,
		Metrics: opts.Metrics.Dispatch,
	}, opts.Handlers...)
	if err != nil {
		return nil, fmt.Errorf("process %d: %w", opts.ID, err)
	}

	return &Process{
		id:      opts.ID,
		bootID:  bootID,
		log:     log,
		types:   opts.Types,
		queue:   queue,
		disp:    disp,
		ids:     entity.NewIDGenerator(opts.ID),
		opts:    opts,
		metrics: opts.Metrics,
		fibers:  make(map[int32]*Fiber),
	}, nil
}

func (p *Process) ID() int32                        { return p.id }
func (p *Process) BootID() string                   { return p.bootID }
func (p *Process) Types() *message.Registry         { return p.types }
func (p *Process) Dispatcher() *dispatch.Dispatcher { return p.disp }

// Start begins receiving frames from the wire.
func (p *Process) Start(ctx context.Context) error {
	if err := p.queue.Listen(ctx); err != nil {
		return err
	}
	p.log.Info("process started", slog.Int("handlers", len(p.disp.MessageTypes())))
	return nil
}

// NewFiber creates and starts fiber id. opts override the process defaults.
func (p *Process) NewFiber(id int32, opts ...Option) (*Fiber, error) {
	o := p.opts.Fiber
	for _, opt := range opts {
		opt(&o)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.fibers[id]; ok {
		return nil, fmt.Errorf("%w: %d", ErrFiberExists, id)
	}
	wake, err := p.queue.AddInbox(id)
	if err != nil {
		return nil, err
	}
	f := newFiber(p, id, wake, o.withDefaults())
	p.fibers[id] = f
	go f.run()
	f.log.Debug("fiber started")
	return f, nil
}

func (p *Process) Fiber(id int32) (*Fiber, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.fibers[id]
	return f, ok
}

// Fibers returns the running fibers ordered by id.
func (p *Process) Fibers() []*Fiber {
	p.mu.RLock()
	out := make([]*Fiber, 0, len(p.fibers))
	for _, f := range p.fibers {
		out = append(out, f)
	}
	p.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Fiber) int { return int(a.id) - int(b.id) })
	return out
}

// RemoveFiber stops fiber id and forgets it.
func (p *Process) RemoveFiber(id int32) error {
	p.mu.Lock()
	f, ok := p.fibers[id]
	delete(p.fibers, id)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrFiberNotFound, id)
	}
	f.Stop()
	return nil
}

// Place picks the fiber that should host the persistent id, using
// rendezvous hashing so that adding a fiber only moves a share of the ids.
func (p *Process) Place(persistentID int64) (*Fiber, bool) {
	fibers := p.Fibers()
	if len(fibers) == 0 {
		return nil, false
	}
	ids := make([]int32, len(fibers))
	for i, f := range fibers {
		ids[i] = f.id
	}
	best, ok := hrw.Best(persistentID, ids, p.id)
	if !ok {
		return nil, false
	}
	return fibers[slices.Index(ids, best)], true
}

// SetBatchSize updates the batch size of every running fiber.
func (p *Process) SetBatchSize(n int) {
	for _, f := range p.Fibers() {
		f.SetBatchSize(n)
	}
}

// Stop stops every fiber and detaches from the wire.
func (p *Process) Stop() error {
	p.mu.Lock()
	fibers := p.fibers
	p.fibers = make(map[int32]*Fiber)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, f := range fibers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Stop()
		}()
	}
	wg.Wait()
	p.log.Info("process stopped")
	return p.queue.Close()
}

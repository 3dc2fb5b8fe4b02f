package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codewandler/clstr-fiber/core/actorid"
	"github.com/codewandler/clstr-fiber/core/dispatch"
	"github.com/codewandler/clstr-fiber/core/entity"
	"github.com/codewandler/clstr-fiber/core/fiber"
	"github.com/codewandler/clstr-fiber/core/location"
	"github.com/codewandler/clstr-fiber/core/mailbox"
	"github.com/codewandler/clstr-fiber/core/message"
	"github.com/codewandler/clstr-fiber/core/msgqueue"
	"github.com/codewandler/clstr-fiber/core/proxy"
	"github.com/codewandler/clstr-fiber/ports/kv"
)

var (
	ErrAlreadySpawned = errors.New("entity already spawned")
	ErrNotSpawned     = errors.New("entity not spawned")
)

type Config struct {
	Context   context.Context
	Log       *slog.Logger
	ProcessID int32
	// Fibers is the number of fibers started by Run, numbered from 1.
	Fibers int
	Fiber  fiber.Options
	// Wire defaults to a wire private to this process.
	Wire msgqueue.Wire
	// Locations defaults to an in-memory store private to this process.
	Locations   kv.Store
	LocationTTL time.Duration
	Types       *message.Registry
	Metrics     fiber.Metrics
	Proxy       proxy.Options
}

type spawned struct {
	fiber  *fiber.Fiber
	entity *entity.Entity
	aid    actorid.ActorID
}

type App struct {
	ctx       context.Context
	cancelCtx context.CancelFunc
	log       *slog.Logger
	fibers    int
	proc      *fiber.Process
	ownedWire msgqueue.Wire
	locations *location.Registry
	proxy     *proxy.Proxy

	mu      sync.Mutex
	spawned map[int64]spawned
}

func New(config Config, handlers ...dispatch.Registration) (*App, error) {
	if config.ProcessID == 0 {
		config.ProcessID = 1
	}
	if config.Fibers <= 0 {
		config.Fibers = 1
	}
	if config.Log == nil {
		config.Log = slog.Default()
	}
	if config.Context == nil {
		config.Context = context.Background()
	}
	var ownedWire msgqueue.Wire
	if config.Wire == nil {
		ownedWire = msgqueue.NewMemoryWire()
		config.Wire = ownedWire
	}
	if config.Locations == nil {
		config.Locations = kv.NewMemStore()
	}

	log := config.Log.With(slog.Int("process", int(config.ProcessID)))
	proc, err := fiber.NewProcess(fiber.ProcessOptions{
		ID:       config.ProcessID,
		Wire:     config.Wire,
		Types:    config.Types,
		Handlers: handlers,
		Fiber:    config.Fiber,
		Log:      log,
		Metrics:  config.Metrics,
	})
	if err != nil {
		return nil, err
	}

	if config.Proxy.Log == nil {
		config.Proxy.Log = log
	}
	locations := location.New(location.Options{
		Store:  config.Locations,
		TTL:    config.LocationTTL,
		BootID: proc.BootID(),
		Log:    log,
	})
	config.Proxy.Locator = locations

	a := &App{
		log:       log,
		fibers:    config.Fibers,
		proc:      proc,
		ownedWire: ownedWire,
		locations: locations,
		proxy:     proxy.New(config.Proxy),
		spawned:   make(map[int64]spawned),
	}
	a.ctx, a.cancelCtx = context.WithCancel(config.Context)
	return a, nil
}

func (a *App) Process() *fiber.Process       { return a.proc }
func (a *App) Proxy() *proxy.Proxy           { return a.proxy }
func (a *App) Locations() *location.Registry { return a.locations }

// Run attaches the process to the wire and starts its fibers.
func (a *App) Run() error {
	if err := a.proc.Start(a.ctx); err != nil {
		return err
	}
	for i := 1; i <= a.fibers; i++ {
		if _, err := a.proc.NewFiber(int32(i)); err != nil {
			_ = a.proc.Stop()
			return err
		}
	}
	a.log.Info("app started", slog.Int("fibers", a.fibers), slog.String("boot_id", a.proc.BootID()))
	return nil
}

// Spawn creates entity id on the fiber it is placed on and registers its
// location.
func (a *App) Spawn(ctx context.Context, id int64, role string, mb mailbox.Type) (*entity.Entity, actorid.ActorID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.spawned[id]; ok {
		return nil, actorid.ActorID{}, fmt.Errorf("%w: %d", ErrAlreadySpawned, id)
	}
	f, ok := a.proc.Place(id)
	if !ok {
		return nil, actorid.ActorID{}, fiber.ErrFiberNotFound
	}
	e, aid, err := f.CreateEntity(id, role, mb)
	if err != nil {
		return nil, actorid.ActorID{}, err
	}
	if err := a.locations.Register(ctx, id, aid); err != nil {
		_ = f.DestroyEntity(e)
		return nil, actorid.ActorID{}, fmt.Errorf("register %d: %w", id, err)
	}
	a.spawned[id] = spawned{fiber: f, entity: e, aid: aid}
	a.log.Debug("spawned", slog.Int64("id", id), slog.String("role", role), slog.String("actor", aid.String()))
	return e, aid, nil
}

// Despawn unregisters entity id and destroys it.
func (a *App) Despawn(ctx context.Context, id int64) error {
	a.mu.Lock()
	s, ok := a.spawned[id]
	delete(a.spawned, id)
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotSpawned, id)
	}
	err := a.locations.Unregister(ctx, id, s.aid)
	return errors.Join(err, s.fiber.DestroyEntity(s.entity))
}

// Exec runs fn in a task of the first fiber, for callers outside any fiber.
func (a *App) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	f, ok := a.proc.Fiber(1)
	if !ok {
		return fiber.ErrFiberNotFound
	}
	return f.Exec(ctx, fn)
}

// Stop unregisters every spawned entity and stops the process.
func (a *App) Stop() error {
	a.mu.Lock()
	ids := make([]int64, 0, len(a.spawned))
	for id := range a.spawned {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.ctx), 5*time.Second)
	defer cancel()
	var errs []error
	for _, id := range ids {
		if err := a.Despawn(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}

	a.cancelCtx()
	a.proxy.Close()
	errs = append(errs, a.proc.Stop())
	if a.ownedWire != nil {
		errs = append(errs, a.ownedWire.Close())
	}
	a.log.Info("app stopped")
	return errors.Join(errs...)
}

func Run(config Config, handlers ...dispatch.Registration) (*App, error) {
	a, err := New(config, handlers...)
	if err != nil {
		return nil, err
	}
	if err := a.Run(); err != nil {
		return nil, err
	}
	return a, nil
}

package entity

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/codewandler/clstr-fiber/core/actorid"
)

var (
	ErrDuplicateEntity = errors.New("entity already exists")
	ErrDisposed        = errors.New("entity disposed")
)

// instanceBits is the width of the per-process sequence inside an instance id;
// the process id occupies the bits above.
const instanceBits = 40

// MaxProcessID is the largest process id an instance id can carry in the
// bits above the sequence.
const MaxProcessID = 1<<(63-instanceBits) - 1

// IDGenerator hands out process-wide unique instance ids with the process id
// in the high bits.
type IDGenerator struct {
	prefix int64
	seq    atomic.Int64
}

// NewIDGenerator panics when processID is outside 0..MaxProcessID.
func NewIDGenerator(processID int32) *IDGenerator {
	if processID < 0 || processID > MaxProcessID {
		panic(fmt.Sprintf("entity: process id %d out of range", processID))
	}
	return &IDGenerator{prefix: int64(processID) << instanceBits}
}

// ProcessOf returns the process id encoded in instanceID.
func ProcessOf(instanceID int64) int32 { return int32(instanceID >> instanceBits) }

func (g *IDGenerator) Next() int64 {
	return g.prefix | (g.seq.Add(1) & (1<<instanceBits - 1))
}

// Registry tracks the live entities of one fiber.
type Registry struct {
	addr actorid.Address
	ids  *IDGenerator
	log  *slog.Logger

	mu         sync.RWMutex
	byInstance map[int64]*Entity
	byID       map[int64]*Entity
}

func NewRegistry(addr actorid.Address, ids *IDGenerator, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		addr:       addr,
		ids:        ids,
		log:        log,
		byInstance: make(map[int64]*Entity),
		byID:       make(map[int64]*Entity),
	}
}

// Create registers a new incarnation for the persistent id.
func (r *Registry) Create(id int64, role string) (*Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateEntity, id)
	}
	e := &Entity{id: id, role: role}
	inst := r.ids.Next()
	e.instanceID.Store(inst)
	r.byID[id] = e
	r.byInstance[inst] = e
	r.log.Debug("entity created", slog.Int64("id", id), slog.Int64("instance_id", inst), slog.String("role", role))
	return e, nil
}

// Destroy disposes e and its components. Messages still addressed to the
// old instance id are answered as not found.
func (r *Registry) Destroy(e *Entity) error {
	r.mu.Lock()
	inst := e.instanceID.Swap(0)
	if inst == 0 {
		r.mu.Unlock()
		return ErrDisposed
	}
	delete(r.byInstance, inst)
	if cur, ok := r.byID[e.id]; ok && cur == e {
		delete(r.byID, e.id)
	}
	r.mu.Unlock()

	e.clearComponents()
	r.log.Debug("entity destroyed", slog.Int64("id", e.id), slog.Int64("instance_id", inst))
	return nil
}

// Get looks up a live entity by instance id.
func (r *Registry) Get(instanceID int64) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byInstance[instanceID]
	return e, ok
}

// Resolve looks up the live incarnation of a persistent id.
func (r *Registry) Resolve(id int64) (*Entity, int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, 0, false
	}
	return e, e.InstanceID(), true
}

// ActorID addresses the current incarnation of e.
func (r *Registry) ActorID(e *Entity) actorid.ActorID {
	return actorid.New(r.addr, e.InstanceID())
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byInstance)
}

// Each calls fn for every live entity until fn returns false.
func (r *Registry) Each(fn func(e *Entity) bool) {
	r.mu.RLock()
	list := make([]*Entity, 0, len(r.byInstance))
	for _, e := range r.byInstance {
		list = append(list, e)
	}
	r.mu.RUnlock()
	for _, e := range list {
		if !fn(e) {
			return
		}
	}
}

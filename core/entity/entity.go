// Package entity is the per-fiber registry of live objects that can receive
// messages.
//
// An Entity has a persistent ID that survives destroy/recreate cycles and an
// instance ID that is regenerated on every creation and reset to 0 on
// destruction. Messages address one incarnation via its instance ID; the
// persistent ID is what ordered dispatch serializes on.
package entity

import (
	"reflect"
	"sync"
	"sync/atomic"
)

type Entity struct {
	id         int64
	role       string
	instanceID atomic.Int64

	mu         sync.RWMutex
	components map[reflect.Type]any
}

// ID returns the persistent id.
func (e *Entity) ID() int64 { return e.id }

// Role selects which scoped handlers receive messages for this entity.
func (e *Entity) Role() string { return e.role }

// InstanceID returns the current incarnation, 0 once destroyed.
func (e *Entity) InstanceID() int64 { return e.instanceID.Load() }

func (e *Entity) IsDisposed() bool { return e.InstanceID() == 0 }

// AddComponent attaches c, replacing any component of the same type.
func AddComponent[T any](e *Entity, c T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.components == nil {
		e.components = make(map[reflect.Type]any)
	}
	e.components[reflect.TypeFor[T]()] = c
}

func GetComponent[T any](e *Entity) (T, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.components[reflect.TypeFor[T]()].(T)
	return c, ok
}

func RemoveComponent[T any](e *Entity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.components, reflect.TypeFor[T]())
}

func (e *Entity) clearComponents() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.components = nil
}

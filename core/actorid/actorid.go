// Package actorid defines the addressing model: a fiber Address inside a
// process, and an ActorID naming one live incarnation of an entity on that
// fiber.
//
// Both are plain comparable values. They carry no liveness information; a
// receiver re-validates the instance id against its entity registry on every
// delivery, so an ActorID held across a destroy/recreate cycle becomes stale
// and is answered with "not found" rather than redirected.
package actorid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidActorID = errors.New("invalid actor id")

// Address identifies a fiber inside a process.
type Address struct {
	Process int32 `json:"process"`
	Fiber   int32 `json:"fiber"`
}

func NewAddress(process, fiber int32) Address {
	return Address{Process: process, Fiber: fiber}
}

func (a Address) IsZero() bool { return a == Address{} }

func (a Address) String() string {
	return fmt.Sprintf("%d:%d", a.Process, a.Fiber)
}

// ActorID names one incarnation of an entity hosted on a fiber.
type ActorID struct {
	Address
	InstanceID int64 `json:"instance_id"`
}

func New(addr Address, instanceID int64) ActorID {
	return ActorID{Address: addr, InstanceID: instanceID}
}

func (id ActorID) IsZero() bool { return id == ActorID{} }

func (id ActorID) String() string {
	return fmt.Sprintf("%d:%d:%d", id.Process, id.Fiber, id.InstanceID)
}

// Parse reads the "process:fiber:instance" form produced by String.
func Parse(s string) (ActorID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return ActorID{}, fmt.Errorf("%w: %q", ErrInvalidActorID, s)
	}
	p, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return ActorID{}, fmt.Errorf("%w: process: %w", ErrInvalidActorID, err)
	}
	f, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return ActorID{}, fmt.Errorf("%w: fiber: %w", ErrInvalidActorID, err)
	}
	i, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return ActorID{}, fmt.Errorf("%w: instance: %w", ErrInvalidActorID, err)
	}
	return New(NewAddress(int32(p), int32(f)), i), nil
}

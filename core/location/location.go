// Package location maps persistent entity ids to the ActorID currently
// hosting them, in a key-value store shared by all processes.
//
// The store calls block on I/O. Fiber tasks reach the registry through the
// proxy package, which runs lookups off the fiber.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/codewandler/clstr-fiber/core/actorid"
	"github.com/codewandler/clstr-fiber/ports/kv"
)

var ErrNotRegistered = errors.New("location not registered")

const DefaultPrefix = "loc."

// Record is what the store holds per persistent id.
type Record struct {
	Actor  actorid.ActorID `json:"actor"`
	BootID string          `json:"boot_id,omitempty"`
}

type Options struct {
	Store  kv.Store
	Prefix string
	// TTL expires records of processes that died without unregistering.
	TTL time.Duration
	// BootID tags records with the registering process incarnation.
	BootID string
	Log    *slog.Logger
}

type Registry struct {
	store  kv.Store
	prefix string
	ttl    time.Duration
	bootID string
	log    *slog.Logger
}

func New(opts Options) *Registry {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Registry{
		store:  opts.Store,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		bootID: opts.BootID,
		log:    opts.Log.With(slog.String("component", "location")),
	}
}

func (r *Registry) key(id int64) string {
	return r.prefix + strconv.FormatInt(id, 10)
}

// Register records that id lives at aid, replacing any previous location.
func (r *Registry) Register(ctx context.Context, id int64, aid actorid.ActorID) error {
	rec := Record{Actor: aid, BootID: r.bootID}
	if _, err := kv.Put(ctx, r.store, r.key(id), rec, kv.PutOptions{TTL: r.ttl}); err != nil {
		return fmt.Errorf("register %d: %w", id, err)
	}
	r.log.Debug("registered", slog.Int64("id", id), slog.String("actor", aid.String()))
	return nil
}

// Unregister removes the record of id if it still points at aid, so a
// stale owner cannot remove the location of a newer incarnation. The check
// and the delete are one revision-guarded operation on the store.
func (r *Registry) Unregister(ctx context.Context, id int64, aid actorid.ActorID) error {
	key := r.key(id)
	rec, rev, err := kv.Get[Record](ctx, r.store, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("unregister %d: %w", id, err)
	}
	if rec.Actor != aid {
		r.log.Debug("skip unregister of moved entity",
			slog.Int64("id", id),
			slog.String("actor", aid.String()),
			slog.String("current", rec.Actor.String()),
		)
		return nil
	}
	err = r.store.DeleteRevision(ctx, key, rev)
	switch {
	case errors.Is(err, kv.ErrConflict):
		// re-registered in between
		r.log.Debug("skip unregister of re-registered entity", slog.Int64("id", id))
		return nil
	case err != nil:
		return fmt.Errorf("unregister %d: %w", id, err)
	}
	r.log.Debug("unregistered", slog.Int64("id", id), slog.String("actor", aid.String()))
	return nil
}

// Locate returns where id currently lives.
func (r *Registry) Locate(ctx context.Context, id int64) (actorid.ActorID, error) {
	rec, err := r.Lookup(ctx, id)
	if err != nil {
		return actorid.ActorID{}, err
	}
	return rec.Actor, nil
}

// Lookup returns the full record of id.
func (r *Registry) Lookup(ctx context.Context, id int64) (Record, error) {
	rec, _, err := kv.Get[Record](ctx, r.store, r.key(id))
	if errors.Is(err, kv.ErrNotFound) {
		return Record{}, fmt.Errorf("%w: %d", ErrNotRegistered, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("locate %d: %w", id, err)
	}
	return rec, nil
}

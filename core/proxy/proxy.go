// Package proxy addresses entities by persistent id instead of ActorID.
//
// A Proxy resolves the id through a Locator, caches the result, and sends
// on the current fiber. When the target answers NotFoundActor (it moved or
// was destroyed) the cached location is dropped and the call is retried
// after a short delay. Calls to the same id are serialized per proxy, so
// they reach the target in the order they were made.
//
// All methods must run in a fiber task.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/codewandler/clstr-fiber/core/actorid"
	"github.com/codewandler/clstr-fiber/core/cache"
	"github.com/codewandler/clstr-fiber/core/corolock"
	"github.com/codewandler/clstr-fiber/core/errcode"
	"github.com/codewandler/clstr-fiber/core/fiber"
	"github.com/codewandler/clstr-fiber/core/location"
	"github.com/codewandler/clstr-fiber/core/message"
	"github.com/codewandler/clstr-fiber/core/msgqueue"
	"github.com/codewandler/clstr-fiber/core/sf"
)

const (
	DefaultRetryDelay    = 500 * time.Millisecond
	DefaultMaxRetries    = 5
	DefaultCacheTTL      = time.Minute
	DefaultLookupTimeout = 5 * time.Second
)

type Locator interface {
	Locate(ctx context.Context, id int64) (actorid.ActorID, error)
}

type Options struct {
	Locator Locator
	// Cache defaults to an LRU owned by the proxy; see Close.
	Cache         cache.Cache
	CacheTTL      time.Duration
	RetryDelay    time.Duration
	MaxRetries    int
	LookupTimeout time.Duration
	Log           *slog.Logger
}

type Proxy struct {
	locator       Locator
	locations     *cache.Keyed[int64, actorid.ActorID]
	owned         *cache.LRU
	ttl           time.Duration
	retryDelay    time.Duration
	maxRetries    int
	lookupTimeout time.Duration
	lookups       *sf.Group[actorid.ActorID]
	locks         *corolock.Locker[int64]
	log           *slog.Logger
}

func New(opts Options) *Proxy {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = DefaultLookupTimeout
	}
	p := &Proxy{
		locator:       opts.Locator,
		ttl:           opts.CacheTTL,
		retryDelay:    opts.RetryDelay,
		maxRetries:    opts.MaxRetries,
		lookupTimeout: opts.LookupTimeout,
		lookups:       sf.New[actorid.ActorID](),
		locks:         corolock.New[int64](corolock.WithLog(opts.Log)),
		log:           opts.Log.With(slog.String("component", "proxy")),
	}
	if opts.Cache == nil {
		p.owned = cache.NewLRU(cache.LRUOpts{Size: 4096, TTL: opts.CacheTTL})
		opts.Cache = p.owned
	}
	p.locations = cache.ByID[actorid.ActorID](opts.Cache, "loc.")
	return p
}

// Close releases the cache the proxy created for itself.
func (p *Proxy) Close() {
	if p.owned != nil {
		p.owned.Close()
	}
}

// Resolve returns the current ActorID of id. Concurrent misses for the same
// id share one lookup, which runs off the fiber.
func (p *Proxy) Resolve(ctx context.Context, id int64) (actorid.ActorID, error) {
	if aid, ok := p.locations.Get(id); ok {
		return aid, nil
	}
	res, err := fiber.Await(ctx, p.lookups.DoChan(strconv.FormatInt(id, 10), func() (actorid.ActorID, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.lookupTimeout)
		defer cancel()
		return p.locator.Locate(lctx, id)
	}))
	if err != nil {
		return actorid.ActorID{}, err
	}
	if res.Err != nil {
		return actorid.ActorID{}, res.Err
	}
	p.locations.Put(id, res.Val, cache.WithTTL(p.ttl))
	return res.Val, nil
}

// Invalidate drops the cached location of id.
func (p *Proxy) Invalidate(id int64) {
	p.locations.Delete(id)
}

// Call sends req to the entity with persistent id and waits for the
// response, following the entity when it moved. Errors are classified as
// in fiber.Call; an id that stays unresolvable fails with NotFoundActor.
func (p *Proxy) Call(ctx context.Context, id int64, req any, needException bool) (message.Response, error) {
	return call(ctx, p, id, func(ctx context.Context, aid actorid.ActorID) (message.Response, error) {
		return fiber.Call(ctx, aid, req, needException)
	})
}

// CallAs is Call with a typed response.
func CallAs[RESP any, REQ any](ctx context.Context, p *Proxy, id int64, req REQ, needException bool) (*RESP, error) {
	return call(ctx, p, id, func(ctx context.Context, aid actorid.ActorID) (*RESP, error) {
		return fiber.CallAs[RESP](ctx, aid, req, needException)
	})
}

func call[R any](ctx context.Context, p *Proxy, id int64, do func(context.Context, actorid.ActorID) (R, error)) (R, error) {
	var zero R
	tok, err := p.locks.Acquire(ctx, id)
	if err != nil {
		return zero, err
	}
	defer tok.Release()

	for attempt := 0; ; attempt++ {
		aid, err := p.Resolve(ctx, id)
		if err == nil {
			resp, err := do(ctx, aid)
			if !notFound(resp, err) || attempt >= p.maxRetries {
				return resp, err
			}
		} else if !errors.Is(err, location.ErrNotRegistered) {
			return zero, err
		} else if attempt >= p.maxRetries {
			return zero, errcode.Errorf(errcode.NotFoundActor, "entity %d: %v", id, err)
		}

		p.Invalidate(id)
		p.log.Debug("retrying moved entity", slog.Int64("id", id), slog.Int("attempt", attempt+1))
		if err := fiber.Sleep(ctx, p.retryDelay); err != nil {
			return zero, err
		}
	}
}

func notFound(resp any, err error) bool {
	if err != nil {
		return errors.Is(err, errcode.ErrNotFoundActor)
	}
	r, ok := resp.(message.Response)
	return ok && r != nil && r.Header().Error == errcode.NotFoundActor
}

// Send delivers msg to the entity with persistent id without waiting. It
// returns immediately; delivery happens in a task of the current fiber and
// keeps the order of earlier sends to the same id.
func (p *Proxy) Send(ctx context.Context, id int64, msg any) error {
	return fiber.Go(ctx, func(ctx context.Context) {
		if err := p.send(ctx, id, msg); err != nil {
			p.log.Warn("send failed", slog.Int64("id", id), slog.Any("error", err))
		}
	})
}

func (p *Proxy) send(ctx context.Context, id int64, msg any) error {
	tok, err := p.locks.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer tok.Release()

	for attempt := 0; ; attempt++ {
		aid, err := p.Resolve(ctx, id)
		if err == nil {
			err = fiber.Send(ctx, aid, msg)
			if err == nil || !msgqueue.Unroutable(err) {
				return err
			}
		} else if !errors.Is(err, location.ErrNotRegistered) {
			return err
		}
		if attempt >= p.maxRetries {
			return fmt.Errorf("entity %d: %w", id, err)
		}

		p.Invalidate(id)
		if err := fiber.Sleep(ctx, p.retryDelay); err != nil {
			return err
		}
	}
}

// Package corolock provides a keyed FIFO lock for cooperative tasks.
//
// At most one owner holds a key at a time; waiters are granted the key in the
// order they asked for it. Waiting suspends the calling task (see
// task.Await) instead of blocking its fiber, so other work on the fiber keeps
// running while a key is contended.
//
// Typical use is serializing message handling per entity: handlers for the
// same entity never interleave, even when a handler suspends halfway.
package corolock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewandler/clstr-fiber/core/task"
)

// ErrLockTimeout is returned when a waiter gave up after the configured wait
// timeout.
var ErrLockTimeout = errors.New("coroutine lock wait timeout")

// Option configures a Locker.
type Option func(*config)

type config struct {
	waitTimeout time.Duration
	log         *slog.Logger
}

// WithWaitTimeout bounds how long Acquire waits for a contended key.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.waitTimeout = d
		}
	}
}

func WithLog(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

type Locker[K comparable] struct {
	mu     sync.Mutex
	queues map[K]*queue
	cfg    config
}

type queue struct {
	waiters []chan struct{}
}

// New creates a Locker.
func New[K comparable](opts ...Option) *Locker[K] {
	cfg := config{log: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Locker[K]{
		queues: make(map[K]*queue),
		cfg:    cfg,
	}
}

// Token is the ownership of one key. Release is idempotent.
type Token[K comparable] struct {
	l        *Locker[K]
	key      K
	released atomic.Bool
}

func (t *Token[K]) Key() K { return t.key }

func (t *Token[K]) Release() {
	if t.released.CompareAndSwap(false, true) {
		t.l.release(t.key)
	}
}

// Acquire waits until the caller owns key.
func (l *Locker[K]) Acquire(ctx context.Context, key K) (*Token[K], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	q, held := l.queues[key]
	if !held {
		l.queues[key] = &queue{}
		l.mu.Unlock()
		return &Token[K]{l: l, key: key}, nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	l.mu.Unlock()

	waitCtx := ctx
	if l.cfg.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeoutCause(ctx, l.cfg.waitTimeout, ErrLockTimeout)
		defer cancel()
	}

	if _, err := task.Await(waitCtx, ch); err != nil {
		if cause := context.Cause(waitCtx); errors.Is(cause, ErrLockTimeout) {
			err = ErrLockTimeout
		}
		l.abandon(key, ch)
		return nil, err
	}
	return &Token[K]{l: l, key: key}, nil
}

// Do runs fn while owning key. The key is released on every exit path,
// including panics.
func (l *Locker[K]) Do(ctx context.Context, key K, fn func() error) error {
	tok, err := l.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer tok.Release()
	return fn()
}

// Len returns the number of keys currently held.
func (l *Locker[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues)
}

// Waiting returns the number of waiters queued on key.
func (l *Locker[K]) Waiting(key K) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if q, ok := l.queues[key]; ok {
		return len(q.waiters)
	}
	return 0
}

func (l *Locker[K]) release(key K) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, ok := l.queues[key]
	if !ok {
		l.cfg.log.Warn("corolock: release of unheld key", slog.Any("key", key))
		return
	}
	if len(q.waiters) == 0 {
		delete(l.queues, key)
		return
	}
	next := q.waiters[0]
	q.waiters = q.waiters[1:]
	close(next)
}

// abandon removes a waiter that stopped waiting. When ownership was handed
// over concurrently the key is released on its behalf.
func (l *Locker[K]) abandon(key K, ch chan struct{}) {
	l.mu.Lock()
	select {
	case <-ch:
		l.mu.Unlock()
		l.release(key)
		return
	default:
	}
	if q, ok := l.queues[key]; ok {
		for i, w := range q.waiters {
			if w == ch {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				break
			}
		}
	}
	l.mu.Unlock()
}

package cache

import (
	"container/list"
	"time"

	"github.com/codewandler/clstr-fiber/core/timer"
)

type LRUOpts struct {
	// Size is the maximum number of entries; defaults to 128.
	Size int
	// TTL applies to entries put without WithTTL; 0 keeps them until evicted.
	TTL   time.Duration
	Clock timer.Clock
}

type lruEntry struct {
	key     string
	val     any
	expires time.Time
}

func (e *lruEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// LRU is a size-bounded cache. All state is owned by one goroutine; the
// methods send it closures, so the cache is safe for concurrent use without
// locks.
type LRU struct {
	ops   chan func(*lruState)
	done  chan struct{}
	ttl   time.Duration
	clock timer.Clock
}

type lruState struct {
	size  int
	order *list.List
	items map[string]*list.Element
}

func NewLRU(opts LRUOpts) *LRU {
	if opts.Size <= 0 {
		opts.Size = 128
	}
	if opts.Clock == nil {
		opts.Clock = timer.Real()
	}
	l := &LRU{
		ops:   make(chan func(*lruState)),
		done:  make(chan struct{}),
		ttl:   opts.TTL,
		clock: opts.Clock,
	}
	go l.run(&lruState{
		size:  opts.Size,
		order: list.New(),
		items: make(map[string]*list.Element),
	})
	return l
}

func (l *LRU) run(s *lruState) {
	for {
		select {
		case op := <-l.ops:
			op(s)
		case <-l.done:
			return
		}
	}
}

// do runs op on the owner goroutine. It reports false once the cache is
// closed.
func (l *LRU) do(op func(*lruState)) bool {
	finished := make(chan struct{})
	select {
	case l.ops <- func(s *lruState) { op(s); close(finished) }:
		<-finished
		return true
	case <-l.done:
		return false
	}
}

func (l *LRU) Get(key string) (val any, ok bool) {
	now := l.clock.Now()
	l.do(func(s *lruState) {
		el, found := s.items[key]
		if !found {
			return
		}
		e := el.Value.(*lruEntry)
		if e.expired(now) {
			s.remove(el)
			return
		}
		s.order.MoveToFront(el)
		val, ok = e.val, true
	})
	return val, ok
}

func (l *LRU) Put(key string, val any, opts ...PutOption) {
	o := PutOptions{TTL: l.ttl}
	for _, opt := range opts {
		opt(&o)
	}
	var expires time.Time
	if o.TTL > 0 {
		expires = l.clock.Now().Add(o.TTL)
	}

	l.do(func(s *lruState) {
		if el, found := s.items[key]; found {
			e := el.Value.(*lruEntry)
			e.val, e.expires = val, expires
			s.order.MoveToFront(el)
			return
		}
		s.items[key] = s.order.PushFront(&lruEntry{key: key, val: val, expires: expires})
		if s.order.Len() > s.size {
			s.remove(s.order.Back())
		}
	})
}

func (l *LRU) Delete(key string) {
	l.do(func(s *lruState) {
		if el, found := s.items[key]; found {
			s.remove(el)
		}
	})
}

// Len returns the number of entries, expired ones included until they are
// touched.
func (l *LRU) Len() (n int) {
	l.do(func(s *lruState) { n = s.order.Len() })
	return n
}

// Close stops the owner goroutine. Afterwards Get misses and writes are
// dropped. Close must be called at most once.
func (l *LRU) Close() {
	close(l.done)
}

func (s *lruState) remove(el *list.Element) {
	s.order.Remove(el)
	delete(s.items, el.Value.(*lruEntry).key)
}

var _ Cache = (*LRU)(nil)

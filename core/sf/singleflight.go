package sf

import "golang.org/x/sync/singleflight"

// Group deduplicates concurrent lookups of the same key.
type Group[T any] struct {
	group singleflight.Group
}

func New[T any]() *Group[T] {
	return &Group[T]{}
}

// Result is what DoChan delivers.
type Result[T any] struct {
	Val    T
	Err    error
	Shared bool
}

// Do runs fn for key unless a call for key is already in flight, in which
// case it waits for that call and returns its result.
func (g *Group[T]) Do(key string, fn func() (T, error)) (T, error) {
	v, err, _ := g.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// DoChan is Do without blocking the caller. Fiber tasks await the channel so
// that the fiber keeps running while the lookup is in flight.
func (g *Group[T]) DoChan(key string, fn func() (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	ch := g.group.DoChan(key, func() (any, error) {
		return fn()
	})
	go func() {
		r := <-ch
		res := Result[T]{Err: r.Err, Shared: r.Shared}
		if r.Err == nil {
			res.Val = r.Val.(T)
		}
		out <- res
	}()
	return out
}

// Forget drops the in-flight call for key so the next caller starts afresh.
func (g *Group[T]) Forget(key string) {
	g.group.Forget(key)
}

// Package singleflight coalesces concurrent loads of the same key.
//
// It differs from the usual shape in one way: results are reference-counted
// values, so every caller that receives a shared result must own its own
// reference. The leader calls share once per waiting follower before it
// publishes the result, while it still holds a reference itself.
package singleflight

import (
	"context"
	"sync"
)

// Group coalesces concurrent function calls for the same key K so that the
// supplied fn is executed at most once. Other concurrent callers wait for the
// shared result.
//
// Concurrency notes:
//   - The first caller for a given key becomes the leader and runs fn.
//   - Followers register under g.mu before waiting. The leader counts them
//     under g.mu when publishing, so the number of share calls matches the
//     number of followers that will receive the value.
//   - A follower whose ctx is cancelled before publication unregisters and
//     returns ctx.Err(); after publication it always takes the value, since a
//     reference was already acquired on its behalf.
//   - Cancelling a follower does not cancel the leader's fn.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done      chan struct{} // closed when val/err are published
	val       V
	err       error
	waiters   int  // followers expecting a shared reference; guarded by Group.mu
	published bool // guarded by Group.mu
}

// Do runs fn once for the given key. share is called by the leader once per
// follower on a successful result; it may be nil when V needs no per-caller
// ownership.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error), share func(V)) (V, error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		c.waiters++
		g.mu.Unlock()
		return g.wait(ctx, c)
	}

	// We are the leader for this key.
	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	v, err := fn()

	g.mu.Lock()
	c.val, c.err = v, err
	if err == nil && share != nil {
		for i := 0; i < c.waiters; i++ {
			share(v)
		}
	}
	c.published = true
	delete(g.m, key)
	g.mu.Unlock()
	close(c.done)

	return v, err
}

func (g *Group[K, V]) wait(ctx context.Context, c *call[V]) (V, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
	}

	g.mu.Lock()
	if c.published {
		g.mu.Unlock()
		<-c.done
		return c.val, c.err
	}
	c.waiters--
	g.mu.Unlock()

	var zero V
	return zero, ctx.Err()
}

package router

import (
	"context"
	"sync"
)

// inflightGroup de-duplicates concurrent reads of the same key so
// only one actually touches the backends while the rest share its
// outcome. This also guarantees the cache is written at most once per
// outcome.
type inflightGroup struct {
	mu    sync.Mutex
	calls map[string]*inflightCall
}

type inflightCall struct {
	done  chan struct{}
	value string
	found bool
	err   error
}

func newInflightGroup() *inflightGroup {
	return &inflightGroup{calls: make(map[string]*inflightCall)}
}

// do runs fn for the key unless an identical read is already in
// flight, in which case it waits for that read's result instead.
func (g *inflightGroup) do(ctx context.Context, key string, fn func() (string, bool, error)) (string, bool, error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.value, c.found, c.err
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}

	c := &inflightCall{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	c.value, c.found, c.err = fn()
	close(c.done)

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()

	return c.value, c.found, c.err
}

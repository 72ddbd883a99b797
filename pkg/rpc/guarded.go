package rpc

import (
	"fmt"
	"sync"
)

// guarded wraps mutable connection state so a panic inside a critical
// section marks the state broken instead of leaving other goroutines
// blocked behind a lock that will never make progress again. The first
// panic is kept and reported by every later access.
type guarded[T any] struct {
	mu     sync.Mutex
	state  T
	broken error
	report func(error)
	once   sync.Once
}

func newGuarded[T any](state T, report func(error)) *guarded[T] {
	return &guarded[T]{state: state, report: report}
}

// with runs fn holding the lock. It returns an error if the state was
// broken by an earlier panic, and converts a panic in fn into that
// broken state.
func (g *guarded[T]) with(fn func(*T)) (err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.broken != nil {
		return g.broken
	}
	defer func() {
		if r := recover(); r != nil {
			g.broken = fmt.Errorf("connection state corrupted: %v", r)
			err = g.broken
			if g.report != nil {
				g.once.Do(func() { g.report(g.broken) })
			}
		}
	}()
	fn(&g.state)
	return nil
}

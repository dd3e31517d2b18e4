package engine

import (
	"context"
	"sync"
)

// gate is a single-fire rendezvous: one writer opens it once, any number of
// readers wait for it.
type gate struct {
	once sync.Once
	ch   chan struct{}
}

func newGate() *gate {
	return &gate{ch: make(chan struct{})}
}

// Open releases every current and future waiter. Opening twice is a no-op.
func (g *gate) Open() {
	g.once.Do(func() { close(g.ch) })
}

// Wait blocks until the gate is open or ctx is done. It reports whether the
// gate opened.
func (g *gate) Wait(ctx context.Context) bool {
	select {
	case <-g.ch:
		return true
	case <-ctx.Done():
		// Both may be ready; an open gate wins.
		select {
		case <-g.ch:
			return true
		default:
			return false
		}
	}
}


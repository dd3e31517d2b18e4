package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDGenerator hands out machine ids "<prefix>-1", "<prefix>-2", ...
// in creation order.
//
// Unlike engine.FixedGenerator it never runs out, so a scenario that starts
// an unknown number of child machines still gets reproducible ids as long as
// the machines are created in a deterministic order.
//
// Implements engine.IDGenerator. Safe for concurrent use.
type SequentialIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDGenerator creates a generator. An empty prefix defaults
// to "machine".
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "machine"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Issued returns how many ids were handed out.
func (g *SequentialIDGenerator) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Reset starts numbering from 1 again.
func (g *SequentialIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}

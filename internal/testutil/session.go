package testutil

import (
	"fmt"
	"sync"
)

// FixedSessionGenerator hands out predictable session ids.
//
// Ids are prefix-1, prefix-2, ... so that golden traces do not depend on
// UUID randomness.
//
// Implements rbn.SessionIDGenerator.
type FixedSessionGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedSessionGenerator creates a generator. An empty prefix becomes
// "test-session".
func NewFixedSessionGenerator(prefix string) *FixedSessionGenerator {
	if prefix == "" {
		prefix = "test-session"
	}
	return &FixedSessionGenerator{prefix: prefix}
}

// Generate returns the next id in sequence.
func (g *FixedSessionGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

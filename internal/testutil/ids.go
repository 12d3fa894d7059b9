package testutil

import (
	"fmt"
	"sync"
)

// SequentialGenerator generates record ids of the form "<prefix>-0001",
// "<prefix>-0002", and so on.
//
// This enables deterministic test execution and golden snapshot comparison.
// Unlike record.FixedGenerator, it never runs out: scenarios can add as many
// records as they like without declaring ids up front.
//
// Thread-safety: SequentialGenerator is safe for concurrent use via internal mutex.
type SequentialGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialGenerator creates a generator for prefix.
// If prefix is empty, ids are prefixed with "tx".
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	if prefix == "" {
		prefix = "tx"
	}
	return &SequentialGenerator{prefix: prefix}
}

// Generate returns the next id.
//
// Implements record.IDGenerator interface.
func (g *SequentialGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

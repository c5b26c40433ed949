package testutil

import (
	"fmt"
	"sync"
)

// SequenceTokens generates "tok-1", "tok-2", ... so component ids and
// dispatch tokens are stable across runs. The same scenario with the
// same generator produces byte-identical markup and journal traces.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceTokens struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceTokens creates a generator with the given prefix. An empty
// prefix defaults to "tok".
func NewSequenceTokens(prefix string) *SequenceTokens {
	if prefix == "" {
		prefix = "tok"
	}
	return &SequenceTokens{prefix: prefix}
}

// Generate returns the next token in the sequence.
func (g *SequenceTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

package reactive

import (
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator produces unique dispatch tokens for log and journal
// correlation. Implemented by UUIDv7Generator (production) and
// FixedGenerator (tests).
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 dispatch tokens.
// Sortability by creation time keeps journal traces readable.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails, which does not happen in practice.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined tokens for deterministic tests
// and golden trace comparison.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator returning tokens in order.
// Generate panics once all tokens are consumed; exhausting the sequence
// is a test bug worth failing fast on.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.tokens) {
		panic("reactive: fixed token generator exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}

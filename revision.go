package arbor

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// RevisionSource produces the revision token stamped on each committed
// change batch. The store consumes tokens single-threaded; sources only need
// to be safe for concurrent use if they are shared across stores.
type RevisionSource interface {
	// Next returns the token for the batch being committed.
	Next() string
}

// UUIDv7Source generates time-sortable UUIDv7 revision tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, so revisions sort
// by commit time, which keeps journals and logs easy to read.
//
// Thread-safety: UUIDv7Source is stateless and safe for concurrent use.
type UUIDv7Source struct{}

// Next creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Source) Next() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedSource returns predetermined revision tokens for testing.
//
// Deterministic revisions make golden traces byte-stable: tests provide a
// known sequence and compare exact output.
//
// Thread-safety: FixedSource is safe for concurrent use via internal mutex.
type FixedSource struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedSource creates a source that returns tokens in order.
//
// Example:
//
//	src := NewFixedSource("rev-1", "rev-2")
//	src.Next() // "rev-1"
//	src.Next() // "rev-2"
//	src.Next() // panic: all tokens exhausted
func NewFixedSource(tokens ...string) *FixedSource {
	return &FixedSource{tokens: tokens}
}

// Next returns the next predetermined token.
//
// Panics when all tokens have been consumed, failing fast on a test that
// commits more batches than it declared.
func (s *FixedSource) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx >= len(s.tokens) {
		panic("FixedSource: all tokens exhausted")
	}
	token := s.tokens[s.idx]
	s.idx++
	return token
}

// SequentialSource numbers revisions rev-1, rev-2, ... without a fixed
// budget. Useful in scenario harnesses where the commit count varies.
type SequentialSource struct {
	mu sync.Mutex
	n  int
}

// Next returns the next numbered token.
func (s *SequentialSource) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "rev-" + strconv.Itoa(s.n)
}

package inmem

import (
	"context"
	"sync"

	"github.com/orchestra-ai/agentcore/runtime/agent/runlog"
)

// Sink implements runlog.Sink in memory, for tests and local development
// that need to assert on recorded run-history entries without a network
// dependency.
type Sink struct {
	mu      sync.Mutex
	entries []runlog.Entry
}

// NewSink returns a new in-memory run-history sink.
func NewSink() *Sink {
	return &Sink{}
}

// Record implements runlog.Sink.
func (s *Sink) Record(_ context.Context, e runlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a copy of every entry recorded so far, oldest first.
func (s *Sink) Entries() []runlog.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]runlog.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Package memory provides an in-memory discovery sink.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/idprobe/internal/probe"
)

// Sink keeps discoveries in insertion order.
type Sink struct {
	mu   sync.Mutex
	recs []probe.Discovery
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{}
}

// Append implements probe.DiscoverySink.
func (s *Sink) Append(_ context.Context, d probe.Discovery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, d)
	return nil
}

// Discoveries returns a copy of everything appended so far.
func (s *Sink) Discoveries() []probe.Discovery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]probe.Discovery(nil), s.recs...)
}

// URLs returns the appended URLs in order.
func (s *Sink) URLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.recs))
	for _, d := range s.recs {
		out = append(out, d.URL)
	}
	return out
}

package probe

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Gate admits at most one discovery per outer key. The first Found outcome to
// reach Record claims the gate and is appended to the sink; later ones are
// discarded. Probes still in flight after the scheduler short-circuits go
// through the same gate, so they can never add a second record.
type Gate struct {
	sink   DiscoverySink
	logger *zap.Logger

	mu      sync.Mutex
	claimed bool
	url     string
	err     error
}

// NewGate returns an open gate writing to sink.
func NewGate(sink DiscoverySink, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{sink: sink, logger: logger}
}

// Record appends d if the gate is still open and reports whether it was
// written. Sink failures are logged and do not abort the scan.
func (g *Gate) Record(ctx context.Context, d Discovery) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claimed {
		g.logger.Debug("discovery discarded; outer key already resolved",
			zap.String("url", d.URL),
			zap.String("recorded", g.url),
		)
		return false
	}
	g.claimed = true
	g.url = d.URL
	if g.sink == nil {
		return false
	}
	// The append must not be torn by a late cancellation.
	if err := g.sink.Append(context.WithoutCancel(ctx), d); err != nil {
		g.err = err
		g.logger.Error("discovery sink write failed", zap.String("url", d.URL), zap.Error(err))
		return false
	}
	return true
}

// URL returns the URL that claimed the gate, if any.
func (g *Gate) URL() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.url
}

// Err returns the sink error for the claiming discovery, if any.
func (g *Gate) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

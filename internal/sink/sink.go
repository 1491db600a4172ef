// Package sink combines discovery sinks.
package sink

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/idprobe/internal/probe"
)

// Tee writes every discovery to a primary sink and then to any number of
// secondaries. Only the primary's error is returned; secondary failures are
// logged.
type Tee struct {
	primary     probe.DiscoverySink
	secondaries []probe.DiscoverySink
	logger      *zap.Logger
}

// NewTee builds a Tee. Nil secondaries are ignored.
func NewTee(logger *zap.Logger, primary probe.DiscoverySink, secondaries ...probe.DiscoverySink) (*Tee, error) {
	if primary == nil {
		return nil, errors.New("tee requires a primary sink")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	active := make([]probe.DiscoverySink, 0, len(secondaries))
	for _, s := range secondaries {
		if s != nil {
			active = append(active, s)
		}
	}
	return &Tee{primary: primary, secondaries: active, logger: logger}, nil
}

// Append implements probe.DiscoverySink.
func (t *Tee) Append(ctx context.Context, d probe.Discovery) error {
	if err := t.primary.Append(ctx, d); err != nil {
		return err
	}
	for _, s := range t.secondaries {
		if err := s.Append(ctx, d); err != nil {
			t.logger.Warn("secondary discovery sink failed", zap.String("url", d.URL), zap.Error(err))
		}
	}
	return nil
}

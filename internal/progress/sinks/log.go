package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/idprobe/internal/progress"
)

// LogSink emits structured debug logs for every progress event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields. The run id
// is left to the logger passed to NewLogSink.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if ce := s.logger.Check(zap.DebugLevel, "progress event"); ce != nil {
			ce.Write(
				zap.String("stage", string(evt.Stage)),
				zap.Int("outer", evt.Outer),
				zap.Int("inner", evt.Inner),
				zap.String("url", evt.URL),
				zap.String("outcome", evt.Outcome),
				zap.String("status_class", string(evt.StatusClass)),
				zap.Int("attempts", evt.Attempts),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

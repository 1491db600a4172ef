package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/idprobe/internal/progress"
)

// Status is a point-in-time view of a scan.
type Status struct {
	RunID        string    `json:"run_id,omitempty"`
	Running      bool      `json:"running"`
	Outer        int       `json:"outer"`
	OuterDone    int       `json:"outer_done"`
	Probes       int64     `json:"probes"`
	Backoffs     int64     `json:"backoffs"`
	Discoveries  []string  `json:"discoveries"`
	LastActivity time.Time `json:"last_activity,omitzero"`
}

// StatusSink folds progress events into a Status snapshot.
type StatusSink struct {
	mu     sync.RWMutex
	status Status
}

// NewStatusSink returns an empty StatusSink.
func NewStatusSink() *StatusSink {
	return &StatusSink{status: Status{Discoveries: []string{}}}
}

// Consume implements progress.Sink.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageScanStart:
			s.status.RunID = evt.RunUUID().String()
			s.status.Running = true
		case progress.StageScanDone:
			s.status.Running = false
		case progress.StageOuterStart:
			s.status.Outer = evt.Outer
		case progress.StageOuterDone:
			s.status.OuterDone++
		case progress.StageProbeDone:
			s.status.Probes++
		case progress.StageBackoff:
			s.status.Backoffs++
		case progress.StageDiscovery:
			s.status.Discoveries = append(s.status.Discoveries, evt.URL)
		}
		if evt.TS.After(s.status.LastActivity) {
			s.status.LastActivity = evt.TS
		}
	}
	return nil
}

// Snapshot returns a copy of the current status.
func (s *StatusSink) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.status
	out.Discoveries = append([]string{}, s.status.Discoveries...)
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *StatusSink) Close(context.Context) error {
	return nil
}

package probe

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/idprobe/internal/clock/system"
	"github.com/JakeFAU/idprobe/internal/progress"
)

// State is a scheduler phase for one outer key.
type State int

// Scheduler states.
const (
	StateFilling State = iota
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateFilling:
		return "filling"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Outer key results reported in OUTER_DONE events.
const (
	OuterFound     = "found"
	OuterExhausted = "exhausted"
	OuterCancelled = "cancelled"
)

// SchedulerConfig bounds the inner identifier range and the in-flight window.
type SchedulerConfig struct {
	Concurrency int
	InnerStart  int
	InnerEnd    int
	RunID       [16]byte
}

// Validate enforces a positive window and an ordered range.
func (c SchedulerConfig) Validate() error {
	if c.Concurrency <= 0 {
		return errors.New("concurrency must be > 0")
	}
	if c.InnerEnd < c.InnerStart {
		return fmt.Errorf("inner range [%d, %d) is inverted", c.InnerStart, c.InnerEnd)
	}
	return nil
}

// ScanResult summarizes one outer key.
type ScanResult struct {
	Outer int
	// Found is set when a Found outcome short-circuited the scan.
	Found bool
	// URL is the discovery that claimed the outer key.
	URL string
	// Recorded reports whether the discovery reached the sink.
	Recorded bool
	// Admitted counts candidates handed to the prober.
	Admitted int
	// Completed counts outcomes observed before the scan was decided.
	Completed int
	// Discarded counts outcomes that arrived after a Found short-circuit.
	// Admitted always equals Completed plus Discarded.
	Discarded int
	// Cancelled is set when cancellation stopped admission.
	Cancelled bool
	// Path lists the states visited, ending in StateDone.
	Path []State
}

// Result returns the OUTER_DONE classification.
func (r ScanResult) Result() string {
	switch {
	case r.Found:
		return OuterFound
	case r.Cancelled:
		return OuterCancelled
	default:
		return OuterExhausted
	}
}

// Scheduler drives a sliding window of in-flight probes over the inner range
// of one outer key.
type Scheduler struct {
	prober   CandidateProber
	template Template
	sink     DiscoverySink
	cfg      SchedulerConfig
	clock    Clock
	emitter  progress.Emitter
	logger   *zap.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(
	prober CandidateProber,
	template Template,
	sink DiscoverySink,
	cfg SchedulerConfig,
	clock Clock,
	emitter progress.Emitter,
	logger *zap.Logger,
) (*Scheduler, error) {
	if prober == nil {
		return nil, errors.New("scheduler requires a prober")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler config: %w", err)
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		prober:   prober,
		template: template,
		sink:     sink,
		cfg:      cfg,
		clock:    clock,
		emitter:  emitter,
		logger:   logger,
	}, nil
}

// Scan probes the inner range for outer in increasing order, keeping at most
// Concurrency probes in flight. The first Found outcome decides the scan:
// nothing more is admitted, and tasks still in flight are awaited with their
// outcomes discarded. Cancellation stops admission and the scan drains
// whatever is already in flight. Scan returns only after every admitted task
// has reported, so no probe for outer outlives the call.
func (s *Scheduler) Scan(ctx context.Context, outer int) ScanResult {
	start := s.clock.Now()
	s.emit(progress.Event{Stage: progress.StageOuterStart, Outer: outer})
	s.logger.Info("searching outer key", zap.Int("outer", outer))

	gate := NewGate(s.sink, s.logger)
	// Capacity equals the window, so a task never blocks delivering its outcome.
	results := make(chan Outcome, s.cfg.Concurrency)
	res := ScanResult{Outer: outer, Path: []State{StateFilling}}
	inFlight := 0

	observe := func(out Outcome) bool {
		inFlight--
		res.Completed++
		if !out.Found() {
			return false
		}
		// A Found outcome has already been offered to the gate, so the gate
		// holds whichever discovery claimed this outer key.
		res.Found = true
		res.URL = gate.URL()
		if res.URL == "" {
			res.URL = out.URL
		}
		res.Recorded = s.sink != nil && gate.Err() == nil
		return true
	}

	state := StateFilling
	for inner := s.cfg.InnerStart; inner < s.cfg.InnerEnd && state == StateFilling; inner++ {
		for inFlight >= s.cfg.Concurrency {
			if observe(<-results) {
				state = StateDone
				break
			}
		}
		if state == StateDone {
			break
		}
		if ctx.Err() != nil {
			res.Cancelled = true
			state = StateDraining
			break
		}
		key := Key{Inner: inner, Outer: outer}
		url := s.template.Expand(key)
		inFlight++
		res.Admitted++
		go func() {
			results <- s.prober.Probe(ctx, key, url, gate)
		}()
	}

	if state == StateFilling {
		state = StateDraining
	}
	if state == StateDraining && inFlight > 0 {
		res.Path = append(res.Path, StateDraining)
		for inFlight > 0 {
			if observe(<-results) {
				break
			}
		}
	}
	// Outcomes still pending belong to a decided scan. The gate has already
	// refused any second discovery, so they are only counted.
	for ; inFlight > 0; inFlight-- {
		s.discard(outer, <-results)
		res.Discarded++
	}
	res.Path = append(res.Path, StateDone)

	s.emit(progress.Event{
		Stage:   progress.StageOuterDone,
		Outer:   outer,
		URL:     res.URL,
		Outcome: res.Result(),
		Dur:     s.clock.Now().Sub(start),
	})
	s.logger.Info("outer key done",
		zap.Int("outer", outer),
		zap.String("result", res.Result()),
		zap.String("url", res.URL),
		zap.Int("admitted", res.Admitted),
		zap.Int("discarded", res.Discarded),
	)
	return res
}

func (s *Scheduler) discard(outer int, out Outcome) {
	s.logger.Debug("discarding outcome after short-circuit",
		zap.Int("outer", outer),
		zap.String("url", out.URL),
		zap.String("outcome", out.Kind.String()),
	)
}

func (s *Scheduler) emit(evt progress.Event) {
	if s.emitter == nil {
		return
	}
	evt.RunID = s.cfg.RunID
	evt.TS = s.clock.Now()
	s.emitter.Emit(evt)
}

package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/idprobe/internal/progress"
)

// PrometheusSink exports scan progress via Prometheus. It owns the collectors
// for scans, outer keys, probes, backoffs and discoveries.
type PrometheusSink struct {
	scansStarted  prometheus.Counter
	scansRunning  prometheus.Gauge
	outerKeys     *prometheus.CounterVec
	outerDuration *prometheus.HistogramVec

	probes        *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	attempts      prometheus.Histogram
	backoffs      prometheus.Counter
	backoffDelay  prometheus.Counter
	discoveries   prometheus.Counter

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		scansStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "idprobe_scans_started_total",
			Help: "Total scans that have started.",
		}),
		scansRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idprobe_scans_running",
			Help: "Current number of running scans.",
		}),
		outerKeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idprobe_outer_keys_total",
			Help: "Outer keys finished partitioned by result.",
		}, []string{"result"}),
		outerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idprobe_outer_key_duration_seconds",
			Help:    "Wall time per outer key partitioned by result.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
		}, []string{"result"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idprobe_probes_total",
			Help: "Terminal probe outcomes partitioned by outcome and status class.",
		}, []string{"outcome", "status_class"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idprobe_probe_duration_seconds",
			Help:    "Probe duration including backoff, partitioned by outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60, 120},
		}, []string{"outcome"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "idprobe_probe_attempts",
			Help:    "Transport attempts per probe.",
			Buckets: []float64{1, 2, 3, 4},
		}),
		backoffs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "idprobe_backoffs_total",
			Help: "Backoff sleeps taken after rate limiting.",
		}),
		backoffDelay: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "idprobe_backoff_seconds_total",
			Help: "Total time scheduled for backoff sleeps.",
		}),
		discoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "idprobe_discoveries_total",
			Help: "Discoveries written to the sink.",
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.scansStarted,
		s.scansRunning,
		s.outerKeys,
		s.outerDuration,
		s.probes,
		s.probeDuration,
		s.attempts,
		s.backoffs,
		s.backoffDelay,
		s.discoveries,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageScanStart:
		s.scansStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.scansRunning.Inc()
		}
	case progress.StageScanDone:
		if s.tracker.complete(evt.RunID) {
			s.scansRunning.Dec()
		}
	case progress.StageOuterDone:
		s.outerKeys.WithLabelValues(evt.Outcome).Inc()
		if evt.Dur > 0 {
			s.outerDuration.WithLabelValues(evt.Outcome).Observe(evt.Dur.Seconds())
		}
	case progress.StageProbeDone:
		s.handleProbeEvent(evt)
	case progress.StageBackoff:
		s.backoffs.Inc()
		s.backoffDelay.Add(evt.Dur.Seconds())
	case progress.StageDiscovery:
		s.discoveries.Inc()
	}
}

func (s *PrometheusSink) handleProbeEvent(evt progress.Event) {
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.probes.WithLabelValues(evt.Outcome, statusClass).Inc()
	if evt.Attempts > 0 {
		s.attempts.Observe(float64(evt.Attempts))
	}
	if evt.Dur > 0 {
		s.probeDuration.WithLabelValues(evt.Outcome).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}

package probe

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/idprobe/internal/progress"
)

func TestSchedulerStopsAtFirstDiscovery(t *testing.T) {
	tmpl := mustTemplate(t, "https://x.test/{outer}-item-{inner}")
	transport := newScriptedTransport(statusByURL(map[string]int{
		"https://x.test/1-item-0": 404,
		"https://x.test/1-item-1": 200,
		"https://x.test/1-item-2": 404,
	}))
	sink := &recordingSink{}
	sched := newTestScheduler(t, newTestProber(transport, &recordingPauser{}, nil), tmpl, sink,
		SchedulerConfig{Concurrency: 2, InnerStart: 0, InnerEnd: 3})

	res := sched.Scan(context.Background(), 1)

	require.True(t, res.Found)
	require.Equal(t, "https://x.test/1-item-1", res.URL)
	require.True(t, res.Recorded)
	require.Equal(t, OuterFound, res.Result())
	require.Equal(t, []string{"https://x.test/1-item-1"}, sink.URLs())
	require.LessOrEqual(t, res.Admitted, 3)
	require.Equal(t, res.Admitted, res.Completed+res.Discarded)
	require.Equal(t, StateDone, res.Path[len(res.Path)-1])
}

func TestSchedulerNeverExceedsWindow(t *testing.T) {
	tmpl := mustTemplate(t, "https://x.test/{outer}/{inner}")
	transport := newScriptedTransport(alwaysStatus(404))
	transport.delay = 2 * time.Millisecond
	sched := newTestScheduler(t, newTestProber(transport, &recordingPauser{}, nil), tmpl, &recordingSink{},
		SchedulerConfig{Concurrency: 3, InnerStart: 0, InnerEnd: 24})

	res := sched.Scan(context.Background(), 5)

	require.False(t, res.Found)
	require.Equal(t, OuterExhausted, res.Result())
	require.Equal(t, 24, res.Admitted)
	require.Equal(t, 24, res.Completed)
	require.Zero(t, res.Discarded)
	require.LessOrEqual(t, transport.MaxInFlight(), 3)
	require.GreaterOrEqual(t, transport.MaxInFlight(), 1)
	require.Len(t, transport.URLs(), 24)
	require.Equal(t, []State{StateFilling, StateDraining, StateDone}, res.Path)
}

func TestSchedulerSequentialWithWindowOfOne(t *testing.T) {
	tmpl := mustTemplate(t, "https://x.test/{outer}/{inner}")
	transport := newScriptedTransport(alwaysStatus(404))
	sched := newTestScheduler(t, newTestProber(transport, &recordingPauser{}, nil), tmpl, &recordingSink{},
		SchedulerConfig{Concurrency: 1, InnerStart: 10, InnerEnd: 15})

	res := sched.Scan(context.Background(), 2)

	require.Equal(t, 5, res.Admitted)
	require.Equal(t, 1, transport.MaxInFlight())
	var want []string
	for inner := 10; inner < 15; inner++ {
		want = append(want, fmt.Sprintf("https://x.test/2/%d", inner))
	}
	require.Equal(t, want, transport.URLs())
}

func TestSchedulerEmptyRange(t *testing.T) {
	tmpl := mustTemplate(t, "https://x.test/{outer}/{inner}")
	transport := newScriptedTransport(alwaysStatus(200))
	sched := newTestScheduler(t, newTestProber(transport, &recordingPauser{}, nil), tmpl, &recordingSink{},
		SchedulerConfig{Concurrency: 4, InnerStart: 7, InnerEnd: 7})

	res := sched.Scan(context.Background(), 1)

	require.False(t, res.Found)
	require.Zero(t, res.Admitted)
	require.Empty(t, transport.URLs())
	require.Equal(t, []State{StateFilling, StateDone}, res.Path)
}

func TestSchedulerPreCancelledIssuesNoProbes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tmpl := mustTemplate(t, "https://x.test/{outer}/{inner}")
	transport := newScriptedTransport(alwaysStatus(200))
	sink := &recordingSink{}
	sched := newTestScheduler(t, newTestProber(transport, &recordingPauser{}, nil), tmpl, sink,
		SchedulerConfig{Concurrency: 4, InnerStart: 0, InnerEnd: 100})

	res := sched.Scan(ctx, 1)

	require.True(t, res.Cancelled)
	require.Equal(t, OuterCancelled, res.Result())
	require.Zero(t, res.Admitted)
	require.Empty(t, transport.URLs())
	require.Empty(t, sink.URLs())
	require.Equal(t, []State{StateFilling, StateDone}, res.Path)
}

func TestSchedulerCancelStopsAdmissionAndDrains(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tmpl := mustTemplate(t, "https://x.test/{outer}/{inner}")
	transport := newScriptedTransport(alwaysStatus(200))
	transport.hold = make(chan struct{})
	sink := &recordingSink{}
	sched := newTestScheduler(t, newTestProber(transport, &recordingPauser{}, nil), tmpl, sink,
		SchedulerConfig{Concurrency: 2, InnerStart: 0, InnerEnd: 10})

	done := make(chan ScanResult, 1)
	go func() { done <- sched.Scan(ctx, 1) }()

	<-transport.started
	<-transport.started
	cancel()
	close(transport.hold)

	var res ScanResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not finish after cancellation")
	}

	require.True(t, res.Cancelled)
	require.False(t, res.Found)
	require.Equal(t, 2, res.Admitted)
	require.Equal(t, 2, res.Completed)
	require.Zero(t, res.Discarded)
	require.Len(t, transport.URLs(), 2)
	require.Empty(t, sink.URLs())
	require.Equal(t, []State{StateFilling, StateDraining, StateDone}, res.Path)
}

func TestSchedulerConcurrentDiscoveriesRecordOnce(t *testing.T) {
	tmpl := mustTemplate(t, "https://x.test/{outer}/{inner}")
	transport := newScriptedTransport(alwaysStatus(200))
	transport.hold = make(chan struct{})
	sink := &recordingSink{}
	emitter := &recordingEmitter{}
	sched := newTestScheduler(t, newTestProber(transport, &recordingPauser{}, emitter), tmpl, sink,
		SchedulerConfig{Concurrency: 4, InnerStart: 0, InnerEnd: 4})

	done := make(chan ScanResult, 1)
	go func() { done <- sched.Scan(context.Background(), 3) }()
	for range 4 {
		<-transport.started
	}
	close(transport.hold)
	res := <-done

	require.True(t, res.Found)
	require.Equal(t, 1, res.Completed)
	require.Equal(t, 3, res.Discarded)
	require.Equal(t, 4, transport.Returned())
	require.Equal(t, 4, emitter.Count(progress.StageProbeDone))
	require.Len(t, sink.URLs(), 1)
	require.Equal(t, res.URL, sink.URLs()[0])
	require.Equal(t, 1, emitter.Count(progress.StageDiscovery))
}

func TestSchedulerRateLimitedKeyYieldsNoDiscovery(t *testing.T) {
	tmpl := mustTemplate(t, "https://x.test/{outer}/{inner}")
	transport := newScriptedTransport(alwaysStatus(429))
	pauser := &recordingPauser{}
	sink := &recordingSink{}
	sched := newTestScheduler(t, newTestProber(transport, pauser, nil), tmpl, sink,
		SchedulerConfig{Concurrency: 2, InnerStart: 0, InnerEnd: 2})

	res := sched.Scan(context.Background(), 1)

	require.False(t, res.Found)
	require.Equal(t, OuterExhausted, res.Result())
	require.Empty(t, sink.URLs())
	require.Equal(t, 4, transport.CallsFor("https://x.test/1/0"))
	require.Equal(t, 4, transport.CallsFor("https://x.test/1/1"))
	require.Equal(t, []time.Duration{
		15 * time.Second, 15 * time.Second,
		30 * time.Second, 30 * time.Second,
		45 * time.Second, 45 * time.Second,
	}, pauser.Delays())
}

func TestSchedulerSinkFailureIsNotFatal(t *testing.T) {
	tmpl := mustTemplate(t, "https://x.test/{outer}/{inner}")
	transport := newScriptedTransport(statusByURL(map[string]int{"https://x.test/1/0": 200}))
	sched := newTestScheduler(t, newTestProber(transport, &recordingPauser{}, nil), tmpl,
		&recordingSink{err: errSinkDown}, SchedulerConfig{Concurrency: 1, InnerStart: 0, InnerEnd: 3})

	res := sched.Scan(context.Background(), 1)

	require.True(t, res.Found)
	require.False(t, res.Recorded)
	require.Equal(t, "https://x.test/1/0", res.URL)
}

func TestSchedulerEmitsOuterEvents(t *testing.T) {
	tmpl := mustTemplate(t, "https://x.test/{outer}/{inner}")
	emitter := &recordingEmitter{}
	prober := newTestProber(newScriptedTransport(alwaysStatus(404)), &recordingPauser{}, nil)
	sched, err := NewScheduler(prober, tmpl, nil, SchedulerConfig{Concurrency: 1, InnerStart: 0, InnerEnd: 1, RunID: [16]byte{9}},
		nil, emitter, nil)
	require.NoError(t, err)

	sched.Scan(context.Background(), 1)

	require.Equal(t, 1, emitter.Count(progress.StageOuterStart))
	require.Equal(t, 1, emitter.Count(progress.StageOuterDone))
	for _, evt := range emitter.events {
		require.NoError(t, evt.Validate())
	}
}

func TestNewSchedulerValidation(t *testing.T) {
	tmpl := mustTemplate(t, "https://x.test/{outer}/{inner}")
	prober := newTestProber(newScriptedTransport(alwaysStatus(404)), nil, nil)

	_, err := NewScheduler(nil, tmpl, nil, SchedulerConfig{Concurrency: 1}, nil, nil, nil)
	require.Error(t, err)
	_, err = NewScheduler(prober, tmpl, nil, SchedulerConfig{Concurrency: 0}, nil, nil, nil)
	require.Error(t, err)
	_, err = NewScheduler(prober, tmpl, nil, SchedulerConfig{Concurrency: 1, InnerStart: 5, InnerEnd: 4}, nil, nil, nil)
	require.Error(t, err)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "filling", StateFilling.String())
	require.Equal(t, "draining", StateDraining.String())
	require.Equal(t, "done", StateDone.String())
}

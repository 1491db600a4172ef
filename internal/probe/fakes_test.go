package probe

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/idprobe/internal/progress"
)

type respondFunc func(req Request, call int) (Response, error)

// scriptedTransport answers probes from respond and tracks concurrency.
type scriptedTransport struct {
	respond respondFunc
	hold    chan struct{}
	started chan string
	delay   time.Duration

	mu          sync.Mutex
	calls       []Request
	perURL      map[string]int
	inFlight    int
	maxInFlight int
	returned    int
}

func newScriptedTransport(respond respondFunc) *scriptedTransport {
	return &scriptedTransport{
		respond: respond,
		started: make(chan string, 1024),
		perURL:  make(map[string]int),
	}
}

func (t *scriptedTransport) Probe(_ context.Context, req Request) (Response, error) {
	t.mu.Lock()
	t.calls = append(t.calls, req)
	t.perURL[req.URL]++
	call := t.perURL[req.URL]
	t.inFlight++
	if t.inFlight > t.maxInFlight {
		t.maxInFlight = t.inFlight
	}
	t.mu.Unlock()

	t.started <- req.URL
	if t.hold != nil {
		<-t.hold
	}
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	resp, err := t.respond(req, call)

	t.mu.Lock()
	t.inFlight--
	t.returned++
	t.mu.Unlock()
	return resp, err
}

func (t *scriptedTransport) URLs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.calls))
	for _, c := range t.calls {
		out = append(out, c.URL)
	}
	return out
}

func (t *scriptedTransport) Requests() []Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Request(nil), t.calls...)
}

func (t *scriptedTransport) CallsFor(url string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.perURL[url]
}

func (t *scriptedTransport) MaxInFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxInFlight
}

func (t *scriptedTransport) Returned() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.returned
}

// statusByURL answers with the mapped status at the requested URL, 404 otherwise.
func statusByURL(statuses map[string]int) respondFunc {
	return func(req Request, _ int) (Response, error) {
		code, ok := statuses[req.URL]
		if !ok {
			code = 404
		}
		return Response{StatusCode: code, FinalURL: req.URL}, nil
	}
}

func alwaysStatus(code int) respondFunc {
	return func(req Request, _ int) (Response, error) {
		return Response{StatusCode: code, FinalURL: req.URL}, nil
	}
}

// recordingPauser returns immediately and remembers every requested delay.
type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
	hook   func(d time.Duration)
}

func (p *recordingPauser) Pause(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.delays = append(p.delays, d)
	hook := p.hook
	p.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

func (p *recordingPauser) Delays() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]time.Duration(nil), p.delays...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// recordingSink is an in-memory DiscoverySink.
type recordingSink struct {
	mu   sync.Mutex
	recs []Discovery
	err  error
}

func (s *recordingSink) Append(_ context.Context, d Discovery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, d)
	return nil
}

func (s *recordingSink) URLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r.URL)
	}
	return out
}

// recordingEmitter captures events without validation or batching.
type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) Count(stage progress.Stage) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, evt := range e.events {
		if evt.Stage == stage {
			n++
		}
	}
	return n
}

type errLimiter struct {
	err error
}

func (l errLimiter) Wait(context.Context, string) error {
	return l.err
}

var errSinkDown = errors.New("sink down")

const testBackoffBase = 15 * time.Second

func newTestProber(transport Transport, pauser Pauser, emitter progress.Emitter) *Prober {
	return NewProber(
		transport,
		FixedCourtesy{Agent: "probe-test/1.0"},
		nil,
		pauser,
		nil,
		emitter,
		ProberConfig{
			Timeout:     2 * time.Second,
			MaxRetries:  3,
			BackoffBase: testBackoffBase,
			RunID:       [16]byte{1},
		},
		zap.NewNop(),
	)
}

func newTestScheduler(
	t *testing.T,
	prober CandidateProber,
	tmpl Template,
	sink DiscoverySink,
	cfg SchedulerConfig,
) *Scheduler {
	t.Helper()
	s, err := NewScheduler(prober, tmpl, sink, cfg, nil, nil, zap.NewNop())
	require.NoError(t, err)
	return s
}

func mustTemplate(t *testing.T, raw string) Template {
	t.Helper()
	tmpl, err := ParseTemplate(raw, "{inner}", "{outer}")
	require.NoError(t, err)
	return tmpl
}

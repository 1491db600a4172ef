package probe

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/idprobe/internal/clock/system"
	"github.com/JakeFAU/idprobe/internal/progress"
)

const defaultRequestTimeout = 5 * time.Second

// ProberConfig controls Prober behavior.
type ProberConfig struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	RunID       [16]byte
}

// Prober resolves a single candidate: courtesy delay, pacing, transport call,
// classification and retry on rate limiting.
type Prober struct {
	transport Transport
	courtesy  Courtesy
	limiter   Limiter
	pauser    Pauser
	clock     Clock
	emitter   progress.Emitter
	retry     *RetryController
	cfg       ProberConfig
	logger    *zap.Logger
}

// NewProber constructs a Prober. courtesy, limiter, pauser, clock and emitter
// may be nil.
func NewProber(
	transport Transport,
	courtesy Courtesy,
	limiter Limiter,
	pauser Pauser,
	clock Clock,
	emitter progress.Emitter,
	cfg ProberConfig,
	logger *zap.Logger,
) *Prober {
	if courtesy == nil {
		courtesy = FixedCourtesy{}
	}
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	p := &Prober{
		transport: transport,
		courtesy:  courtesy,
		limiter:   limiter,
		pauser:    pauser,
		clock:     clock,
		emitter:   emitter,
		cfg:       cfg,
		logger:    logger,
	}
	p.retry = NewRetryController(
		NewLinearBackoff(cfg.MaxRetries, cfg.BackoffBase),
		pauser,
		p.observeBackoff,
		logger,
	)
	return p
}

// Probe returns the terminal outcome for key. A Found outcome is offered to
// gate before Probe returns.
func (p *Prober) Probe(ctx context.Context, key Key, url string, gate *Gate) Outcome {
	start := p.clock.Now()
	out := p.retry.Run(ctx, key, url, func(ctx context.Context) (Outcome, bool) {
		return p.attempt(ctx, url)
	})
	if out.Found() && gate != nil {
		out.Recorded = gate.Record(ctx, Discovery{URL: url, Key: key, FoundAt: p.clock.Now()})
		if out.Recorded {
			p.logger.Info("found", zap.String("url", url), zap.Int("outer", key.Outer), zap.Int("inner", key.Inner))
			p.emit(progress.Event{Stage: progress.StageDiscovery, Outer: key.Outer, Inner: key.Inner, URL: url})
		}
	}
	evt := progress.Event{
		Stage:       progress.StageProbeDone,
		Outer:       key.Outer,
		Inner:       key.Inner,
		URL:         url,
		Outcome:     out.Kind.String(),
		StatusClass: progress.ClassifyStatus(out.StatusCode),
		Attempts:    out.Attempts,
		Dur:         p.clock.Now().Sub(start),
	}
	if out.Err != nil {
		evt.Note = out.Err.Error()
	}
	p.emit(evt)
	return out
}

// attempt issues at most one request for url. sent reports whether the
// transport was called.
func (p *Prober) attempt(ctx context.Context, url string) (out Outcome, sent bool) {
	if ctx.Err() != nil {
		return Outcome{URL: url, Kind: KindCancelled}, false
	}
	if delay := p.courtesy.Jitter(); delay > 0 {
		if err := p.pauser.Pause(ctx, delay); err != nil {
			return Outcome{URL: url, Kind: KindCancelled}, false
		}
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, url); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return Outcome{URL: url, Kind: KindCancelled}, false
			}
			return Outcome{URL: url, Kind: KindTransientError, Err: err}, false
		}
	}
	if ctx.Err() != nil {
		return Outcome{URL: url, Kind: KindCancelled}, false
	}

	p.logger.Debug("trying", zap.String("url", url))
	// The request itself is not torn down on cancellation; its result is
	// discarded below instead.
	resp, err := p.transport.Probe(context.WithoutCancel(ctx), Request{
		URL:       url,
		UserAgent: p.courtesy.UserAgent(),
		Timeout:   p.cfg.Timeout,
	})
	if ctx.Err() != nil {
		return Outcome{URL: url, Kind: KindCancelled}, true
	}

	out = Classify(url, resp, err)
	switch out.Kind {
	case KindRejected:
		if out.StatusCode >= 400 {
			p.logger.Debug("bad status", zap.String("url", url), zap.Int("status", out.StatusCode))
		} else if resp.FinalURL != "" && resp.FinalURL != url {
			p.logger.Debug("resolved elsewhere", zap.String("url", url), zap.String("final_url", resp.FinalURL))
		}
	case KindTransientError:
		p.logger.Warn("probe failed", zap.String("url", url), zap.Error(out.Err))
	}
	return out, true
}

func (p *Prober) observeBackoff(key Key, url string, _ int, delay time.Duration) {
	p.emit(progress.Event{
		Stage: progress.StageBackoff,
		Outer: key.Outer,
		Inner: key.Inner,
		URL:   url,
		Dur:   delay,
	})
}

func (p *Prober) emit(evt progress.Event) {
	if p.emitter == nil {
		return
	}
	evt.RunID = p.cfg.RunID
	evt.TS = p.clock.Now()
	p.emitter.Emit(evt)
}

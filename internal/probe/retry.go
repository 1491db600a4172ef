package probe

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = 15 * time.Second
)

// LinearBackoff retries rate-limited probes with a delay of Base*n before
// retry n.
type LinearBackoff struct {
	MaxRetries int
	Base       time.Duration
}

// NewLinearBackoff builds a policy. A negative maxRetries or base falls back
// to 3 retries and 15s.
func NewLinearBackoff(maxRetries int, base time.Duration) LinearBackoff {
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	if base < 0 {
		base = defaultBackoffBase
	}
	return LinearBackoff{MaxRetries: maxRetries, Base: base}
}

// ShouldRetry reports whether out warrants another attempt after retries
// retries have already been spent.
func (b LinearBackoff) ShouldRetry(out Outcome, retries int) bool {
	return out.Kind == KindRateLimited && retries < b.MaxRetries
}

// Backoff returns the wait before retry n (1-based).
func (b LinearBackoff) Backoff(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	return b.Base * time.Duration(retry)
}

// TimerPauser sleeps on a timer and wakes early when the context ends.
type TimerPauser struct{}

// Pause implements Pauser.
func (TimerPauser) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// BackoffFunc observes each backoff before the controller sleeps.
type BackoffFunc func(key Key, url string, retry int, delay time.Duration)

// RetryController wraps one candidate's attempts with the backoff policy.
type RetryController struct {
	policy    LinearBackoff
	pauser    Pauser
	onBackoff BackoffFunc
	logger    *zap.Logger
}

// NewRetryController builds a controller. A nil pauser sleeps on real timers.
func NewRetryController(policy LinearBackoff, pauser Pauser, onBackoff BackoffFunc, logger *zap.Logger) *RetryController {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryController{
		policy:    policy,
		pauser:    pauser,
		onBackoff: onBackoff,
		logger:    logger,
	}
}

// Run calls attempt until it yields something other than RateLimited or the
// retry budget is spent. Exhaustion returns the last RateLimited outcome.
// Cancellation is checked before every attempt and every sleep. attempt
// reports whether it handed a request to the transport; only those calls
// count towards Outcome.Attempts.
func (r *RetryController) Run(ctx context.Context, key Key, url string, attempt func(context.Context) (Outcome, bool)) Outcome {
	attempts := 0
	for retries := 0; ; retries++ {
		if ctx.Err() != nil {
			return cancelledOutcome(key, url, attempts)
		}
		out, sent := attempt(ctx)
		if sent {
			attempts++
		}
		out.Key = key
		out.Attempts = attempts
		if out.Kind == KindCancelled {
			return out
		}
		if !r.policy.ShouldRetry(out, retries) {
			if out.Kind == KindRateLimited {
				r.logger.Warn("rate limited; giving up",
					zap.String("url", url),
					zap.Int("retries", retries),
				)
			}
			return out
		}

		if ctx.Err() != nil {
			return cancelledOutcome(key, url, attempts)
		}
		delay := r.policy.Backoff(retries + 1)
		r.logger.Info("rate limited; backing off",
			zap.String("url", url),
			zap.Int("retry", retries+1),
			zap.Duration("delay", delay),
		)
		if r.onBackoff != nil {
			r.onBackoff(key, url, retries+1, delay)
		}
		if err := r.pauser.Pause(ctx, delay); err != nil {
			return cancelledOutcome(key, url, attempts)
		}
	}
}

func cancelledOutcome(key Key, url string, attempts int) Outcome {
	return Outcome{Key: key, URL: url, Kind: KindCancelled, Attempts: attempts}
}

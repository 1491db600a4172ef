package probe

import (
	"context"
	"time"
)

// Request describes a single existence check.
type Request struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
}

// Response is the raw transport result of one request.
type Response struct {
	StatusCode int
	// FinalURL is the URL the response was served for. Transports must not
	// follow redirects, so it differs from the request only when the
	// underlying client rewrote it.
	FinalURL string
}

// Transport issues one HTTP GET without following redirects.
type Transport interface {
	Probe(ctx context.Context, req Request) (Response, error)
}

// Discovery is one confirmed URL.
type Discovery struct {
	URL     string
	Key     Key
	FoundAt time.Time
}

// DiscoverySink durably records confirmed URLs. Implementations serialize
// concurrent Append calls.
type DiscoverySink interface {
	Append(ctx context.Context, d Discovery) error
}

// Courtesy supplies the per-attempt pre-request delay and identity header.
type Courtesy interface {
	Jitter() time.Duration
	UserAgent() string
}

// Pauser suspends the caller for d or until ctx is done, returning an error
// in the latter case.
type Pauser interface {
	Pause(ctx context.Context, d time.Duration) error
}

// Limiter paces outbound requests.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// CandidateProber resolves one candidate to its terminal outcome.
type CandidateProber interface {
	Probe(ctx context.Context, key Key, url string, gate *Gate) Outcome
}

// Scanner scans one outer key.
type Scanner interface {
	Scan(ctx context.Context, outer int) ScanResult
}

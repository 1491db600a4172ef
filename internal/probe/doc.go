// Package probe implements the bounded-concurrency probing engine: URL
// templating over a two-dimensional identifier space, response
// classification, rate-limit backoff, the per-outer-key sliding-window
// scheduler, and the outer iteration driver.
//
// Cancellation is carried by the context passed to Driver.Run. It is
// cooperative: requests already on the wire are allowed to finish (bounded by
// the transport timeout) but their results are discarded, and no new
// candidates are admitted once the context is done.
package probe

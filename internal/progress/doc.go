// Package progress carries scan progress events from the probing engine to
// pluggable sinks. Emitters never block: the Hub buffers events, flushes them
// in batches on a background goroutine and drops (and counts) events when the
// buffer is full.
package progress

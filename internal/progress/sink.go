package progress

import "context"

// Sink consumes batches of progress events. Consume is only ever called from
// the Hub goroutine; Close is called once during Hub shutdown.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it, so the engine does
// not care how events are buffered or where they end up.
type Emitter interface {
	Emit(evt Event)
}

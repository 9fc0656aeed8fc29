package audit

import (
	"context"
	"log/slog"
)

// Worker consumes audit events from a channel and forwards them to a heavy
// sink, typically kafka. Sink failures are logged and the event dropped; the
// file store already holds the durable copy.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit sink append failed", "action", event.Action, "error", err)
			}
		}
	}
}

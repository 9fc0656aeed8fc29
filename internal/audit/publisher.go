package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily. When an inbox
// channel is attached, every event is also offered to it without blocking;
// the worker drains it into the heavy sink.
type Publisher struct {
	store  Store
	logger *slog.Logger
	inbox  chan<- Event
}

func NewPublisher(store Store, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, logger: logger}
}

// AttachInbox routes a copy of every emitted event to ch.
func (p *Publisher) AttachInbox(ch chan<- Event) {
	p.inbox = ch
}

// Emit records one event. Failures are logged, never propagated: the action
// log is an observer of the system, not a gate on it.
func (p *Publisher) Emit(ctx context.Context, base Event) {
	if base.ID == "" {
		base.ID = uuid.NewString()
	}
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now().UTC()
	}
	if err := p.store.Append(ctx, base); err != nil {
		p.logger.ErrorContext(ctx, "audit append failed", "action", base.Action, "error", err)
	}
	if p.inbox != nil {
		select {
		case p.inbox <- base:
		default:
			p.logger.WarnContext(ctx, "audit inbox full, event not forwarded", "action", base.Action)
		}
	}
}

// RecordAction is the convenience form used by the record store and services.
func (p *Publisher) RecordAction(ctx context.Context, actor, action, subject, reason string) {
	p.Emit(ctx, Event{Actor: actor, Action: action, Subject: subject, Reason: reason})
}

// ListRecent serves the admin audit view.
func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	return p.store.ListRecent(ctx, limit)
}

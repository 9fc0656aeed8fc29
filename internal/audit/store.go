package audit

import "context"

// Sink accepts events one at a time. The kafka sink implements only this
// half; full stores add retrieval.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Store persists audit events append-only and serves the admin audit view.
type Store interface {
	Sink
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

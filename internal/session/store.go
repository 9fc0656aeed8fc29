package session

import "context"

// Store abstracts session persistence. The file store is the default; the
// redis store is selected by configuration for multi-instance deployments.
// Implementations own their concurrency guard, independent of the record
// store's lock so no ordering exists between the two.
type Store interface {
	Save(ctx context.Context, s Session) error
	Find(ctx context.Context, chatID string) (Session, error)
	Delete(ctx context.Context, chatID string) error
	All(ctx context.Context) ([]Session, error)
}

package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"regdesk/pkg/sentinel"
)

// Manager implements the session lifecycle over a Store. Expiry is lazy:
// there is no background sweep, sessions are checked and culled at time of
// use. Store failures are logged and never block the caller; correctness of
// the current process does not depend on a successful persist.
type Manager struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger

	now func() time.Time
}

func NewManager(store Store, ttl time.Duration, logger *slog.Logger) *Manager {
	return &Manager{store: store, ttl: ttl, logger: logger, now: time.Now}
}

// Get returns the session for chatID, if any. No expiry side effects.
func (m *Manager) Get(ctx context.Context, chatID string) (Session, bool) {
	sess, err := m.store.Find(ctx, chatID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Session{}, false
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "session lookup failed", "chat_id", chatID, "error", err)
		return Session{}, false
	}
	return sess, true
}

// StartUnverified creates or overwrites a session with no record binding,
// clearing any previous binding and pending field.
func (m *Manager) StartUnverified(ctx context.Context, chatID string) {
	sess := Session{ChatID: chatID, CreatedAt: m.now().UTC()}
	m.save(ctx, sess)
}

// Verify promotes the session: bound to recordIndex, expiring after the TTL,
// pending field cleared.
func (m *Manager) Verify(ctx context.Context, chatID string, recordIndex int) Session {
	sess := Session{
		ChatID:      chatID,
		Verified:    true,
		RecordIndex: recordIndex,
		ExpiresAt:   m.now().UTC().Add(m.ttl),
		CreatedAt:   m.now().UTC(),
	}
	m.save(ctx, sess)
	return sess
}

// IsActive reports whether chatID holds a live verified session. An expired
// session is deleted on the spot (lazy expiry) before reporting false.
func (m *Manager) IsActive(ctx context.Context, chatID string) bool {
	sess, ok := m.Get(ctx, chatID)
	if !ok || !sess.Verified {
		return false
	}
	if sess.ExpiredAt(m.now()) {
		m.delete(ctx, chatID)
		m.logger.InfoContext(ctx, "session expired", "chat_id", chatID)
		return false
	}
	return true
}

// SetPendingField marks an in-progress edit awaiting a value.
func (m *Manager) SetPendingField(ctx context.Context, chatID, field string) {
	m.updatePending(ctx, chatID, field)
}

// ClearPendingField abandons any in-progress edit.
func (m *Manager) ClearPendingField(ctx context.Context, chatID string) {
	m.updatePending(ctx, chatID, "")
}

func (m *Manager) updatePending(ctx context.Context, chatID, field string) {
	sess, ok := m.Get(ctx, chatID)
	if !ok {
		return
	}
	sess.PendingField = field
	m.save(ctx, sess)
}

// Logout deletes the session outright.
func (m *Manager) Logout(ctx context.Context, chatID string) {
	m.delete(ctx, chatID)
}

// VerifiedSessions returns the sessions that are verified and unexpired now.
// Used by broadcast and the admin stats view.
func (m *Manager) VerifiedSessions(ctx context.Context) []Session {
	all, err := m.store.All(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "session enumeration failed", "error", err)
		return nil
	}
	now := m.now()
	var out []Session
	for _, sess := range all {
		if sess.Verified && !sess.ExpiredAt(now) {
			out = append(out, sess)
		}
	}
	return out
}

func (m *Manager) save(ctx context.Context, sess Session) {
	if err := m.store.Save(ctx, sess); err != nil {
		m.logger.ErrorContext(ctx, "session persist failed", "chat_id", sess.ChatID, "error", err)
	}
}

func (m *Manager) delete(ctx context.Context, chatID string) {
	if err := m.store.Delete(ctx, chatID); err != nil {
		m.logger.ErrorContext(ctx, "session delete failed", "chat_id", chatID, "error", err)
	}
}

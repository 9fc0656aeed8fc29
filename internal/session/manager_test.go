package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regdesk/pkg/sentinel"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) (*Manager, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	return NewManager(store, 24*time.Hour, discardLogger()), store
}

func TestManagerVerifyBindsRecord(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }

	sess := m.Verify(ctx, "chat-1", 4)
	assert.True(t, sess.Verified)
	assert.Equal(t, 4, sess.RecordIndex)
	assert.Equal(t, start.Add(24*time.Hour), sess.ExpiresAt)
	assert.True(t, m.IsActive(ctx, "chat-1"))
}

func TestManagerTTLBoundary(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }
	m.Verify(ctx, "chat-1", 0)

	m.now = func() time.Time { return start.Add(23*time.Hour + 59*time.Minute) }
	assert.True(t, m.IsActive(ctx, "chat-1"))

	m.now = func() time.Time { return start.Add(24*time.Hour + time.Minute) }
	assert.False(t, m.IsActive(ctx, "chat-1"))
}

func TestManagerLazyExpiryDeletes(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }
	m.Verify(ctx, "chat-1", 0)

	m.now = func() time.Time { return start.Add(25 * time.Hour) }
	require.False(t, m.IsActive(ctx, "chat-1"))

	_, err := store.Find(ctx, "chat-1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestManagerUnverifiedNeverActive(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	m.StartUnverified(ctx, "chat-1")
	assert.False(t, m.IsActive(ctx, "chat-1"))

	sess, ok := m.Get(ctx, "chat-1")
	require.True(t, ok)
	assert.False(t, sess.Verified)
	assert.True(t, sess.ExpiresAt.IsZero())
}

func TestManagerPendingField(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	m.Verify(ctx, "chat-1", 2)
	m.SetPendingField(ctx, "chat-1", "FullName")

	sess, ok := m.Get(ctx, "chat-1")
	require.True(t, ok)
	assert.Equal(t, "FullName", sess.PendingField)

	m.ClearPendingField(ctx, "chat-1")
	sess, ok = m.Get(ctx, "chat-1")
	require.True(t, ok)
	assert.Empty(t, sess.PendingField)
}

func TestManagerVerifyClearsPendingField(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	m.Verify(ctx, "chat-1", 2)
	m.SetPendingField(ctx, "chat-1", "BankName")

	m.Verify(ctx, "chat-1", 2)
	sess, ok := m.Get(ctx, "chat-1")
	require.True(t, ok)
	assert.Empty(t, sess.PendingField)
}

func TestManagerLogout(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	m.Verify(ctx, "chat-1", 0)
	m.Logout(ctx, "chat-1")

	assert.False(t, m.IsActive(ctx, "chat-1"))
	_, ok := m.Get(ctx, "chat-1")
	assert.False(t, ok)
}

func TestManagerVerifiedSessions(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }

	m.Verify(ctx, "chat-live", 0)
	m.StartUnverified(ctx, "chat-pending")

	m.now = func() time.Time { return start.Add(time.Hour) }
	m.Verify(ctx, "chat-late", 1)

	m.now = func() time.Time { return start.Add(24*time.Hour + time.Minute) }
	active := m.VerifiedSessions(ctx)
	require.Len(t, active, 1)
	assert.Equal(t, "chat-late", active[0].ChatID)
}

// failingStore rejects every write but serves reads from the wrapped store.
type failingStore struct {
	*InMemoryStore
}

func (s *failingStore) Save(_ context.Context, _ Session) error {
	return errors.New("disk full")
}

func (s *failingStore) Delete(_ context.Context, _ string) error {
	return errors.New("disk full")
}

func TestManagerSurvivesStoreWriteFailure(t *testing.T) {
	store := &failingStore{InMemoryStore: NewInMemoryStore()}
	m := NewManager(store, 24*time.Hour, discardLogger())
	ctx := context.Background()

	sess := m.Verify(ctx, "chat-1", 3)
	assert.True(t, sess.Verified)
	assert.Equal(t, 3, sess.RecordIndex)

	// The write never landed, so the session is simply absent.
	assert.False(t, m.IsActive(ctx, "chat-1"))
}

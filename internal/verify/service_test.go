package verify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regdesk/internal/audit"
	jwttoken "regdesk/internal/jwt_token"
	"regdesk/internal/platform/metrics"
	"regdesk/internal/record"
	"regdesk/internal/session"
	dErrors "regdesk/pkg/domainerrors"
	"regdesk/pkg/sentinel"
)

type fakeFinder struct {
	index int
	row   record.Record
	err   error
}

func (f *fakeFinder) FindByIdentity(_, _ string) (int, record.Record, error) {
	return f.index, f.row, f.err
}

type fixture struct {
	service *Service
	manager *session.Manager
	audit   *audit.InMemoryStore
}

func newFixture(t *testing.T, finder *fakeFinder) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := session.NewManager(session.NewInMemoryStore(), 24*time.Hour, logger)
	tokens := jwttoken.NewJWTService("test-key", "regdesk", "regdesk")
	auditStore := audit.NewInMemoryStore()
	publisher := audit.NewPublisher(auditStore, logger)
	m := metrics.New(prometheus.NewRegistry())

	return fixture{
		service: NewService(finder, manager, tokens, m, publisher, logger),
		manager: manager,
		audit:   auditStore,
	}
}

func TestVerifySuccess(t *testing.T) {
	finder := &fakeFinder{
		index: 3,
		row:   record.Record{"Email": "a@x.com", "AdmissionNumber": "ADM003"},
	}
	fx := newFixture(t, finder)
	ctx := context.Background()

	result, err := fx.service.Verify(ctx, "chat-1", "a@x.com", "2340000001")
	require.NoError(t, err)
	assert.Equal(t, 3, result.RecordIndex)
	assert.NotEmpty(t, result.Token)
	assert.True(t, fx.manager.IsActive(ctx, "chat-1"))

	events, err := fx.audit.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionVerified, events[0].Action)
	assert.Equal(t, "ADM003", events[0].Subject)
}

func TestVerifyTokenBoundToSessionExpiry(t *testing.T) {
	finder := &fakeFinder{index: 0, row: record.Record{}}
	fx := newFixture(t, finder)
	ctx := context.Background()

	result, err := fx.service.Verify(ctx, "chat-1", "a@x.com", "2340000001")
	require.NoError(t, err)

	sess, ok := fx.manager.Get(ctx, "chat-1")
	require.True(t, ok)
	assert.Equal(t, sess.ExpiresAt, result.ExpiresAt)
}

func TestVerifyNoMatchLeavesUnverifiedSession(t *testing.T) {
	finder := &fakeFinder{err: sentinel.ErrNotFound}
	fx := newFixture(t, finder)
	ctx := context.Background()

	_, err := fx.service.Verify(ctx, "chat-1", "nobody@x.com", "000")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))

	sess, ok := fx.manager.Get(ctx, "chat-1")
	require.True(t, ok)
	assert.False(t, sess.Verified)
	assert.False(t, fx.manager.IsActive(ctx, "chat-1"))

	events, err := fx.audit.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionVerifyFailed, events[0].Action)
}

func TestVerifyRejectsBlankClaims(t *testing.T) {
	fx := newFixture(t, &fakeFinder{err: sentinel.ErrNotFound})
	ctx := context.Background()

	for _, tc := range []struct {
		name         string
		chatID       string
		email, phone string
	}{
		{"missing chat id", "", "a@x.com", "2340000001"},
		{"missing email", "chat-1", "  ", "2340000001"},
		{"missing phone", "chat-1", "a@x.com", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.service.Verify(ctx, tc.chatID, tc.email, tc.phone)
			require.Error(t, err)
			assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
		})
	}
}

func TestVerifyLookupFailureIsUnavailable(t *testing.T) {
	finder := &fakeFinder{err: errors.New("disk error")}
	fx := newFixture(t, finder)

	_, err := fx.service.Verify(context.Background(), "chat-1", "a@x.com", "2340000001")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnavailable))
}

//go:build integration

package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"regdesk/internal/session"
	"regdesk/pkg/sentinel"
	"regdesk/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *session.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = session.NewRedisStore(s.redis.Client, time.Hour)
}

func (s *RedisStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.redis.FlushAll(ctx)
	s.Require().NoError(err)
}

func makeVerified(chatID string) session.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return session.Session{
		ChatID:      chatID,
		Verified:    true,
		RecordIndex: 3,
		ExpiresAt:   now.Add(24 * time.Hour),
		CreatedAt:   now,
	}
}

func (s *RedisStoreSuite) TestSaveFindRoundTrip() {
	ctx := context.Background()
	sess := makeVerified("chat-1")
	sess.PendingField = "FullName"

	s.Require().NoError(s.store.Save(ctx, sess))

	got, err := s.store.Find(ctx, "chat-1")
	s.Require().NoError(err)
	s.Equal(sess.ChatID, got.ChatID)
	s.Equal(sess.RecordIndex, got.RecordIndex)
	s.Equal(sess.PendingField, got.PendingField)
	s.Equal(sess.ExpiresAt.Unix(), got.ExpiresAt.Unix())
}

func (s *RedisStoreSuite) TestFindMissing() {
	_, err := s.store.Find(context.Background(), "nope")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestDelete() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, makeVerified("chat-1")))
	s.Require().NoError(s.store.Delete(ctx, "chat-1"))

	_, err := s.store.Find(ctx, "chat-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestDeleteMissingIsNoop() {
	s.NoError(s.store.Delete(context.Background(), "nope"))
}

func (s *RedisStoreSuite) TestAllScansEverySession() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, makeVerified("chat-1")))
	s.Require().NoError(s.store.Save(ctx, makeVerified("chat-2")))
	s.Require().NoError(s.store.Save(ctx, session.Session{ChatID: "chat-3", CreatedAt: time.Now().UTC()}))

	all, err := s.store.All(ctx)
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *RedisStoreSuite) TestVerifiedSessionCarriesTTL() {
	ctx := context.Background()
	sess := makeVerified("chat-1")
	s.Require().NoError(s.store.Save(ctx, sess))

	ttl, err := s.redis.Client.TTL(ctx, "regdesk:session:chat-1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 24*time.Hour, "TTL should outlive the session expiry")
}

func (s *RedisStoreSuite) TestUnverifiedSessionAgesOut() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, session.Session{ChatID: "chat-1", CreatedAt: time.Now().UTC()}))

	ttl, err := s.redis.Client.TTL(ctx, "regdesk:session:chat-1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Hour)
}

func (s *RedisStoreSuite) TestMalformedValueTreatedAsMissing() {
	ctx := context.Background()
	s.Require().NoError(s.redis.Client.Set(ctx, "regdesk:session:chat-1", "{broken", time.Hour).Err())

	_, err := s.store.Find(ctx, "chat-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

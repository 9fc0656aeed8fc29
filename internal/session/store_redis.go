package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"regdesk/pkg/sentinel"
)

const keyPrefix = "regdesk:session:"

// RedisStore keeps sessions in redis, one JSON value per chat identity.
// Verified sessions carry a redis TTL slightly past their own expiry so
// abandoned entries age out server-side; the manager's lazy expiry check
// remains the authority on liveness.
type RedisStore struct {
	client *redis.Client

	// unverifiedTTL bounds half-finished verification flows.
	unverifiedTTL time.Duration
}

func NewRedisStore(client *redis.Client, unverifiedTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, unverifiedTTL: unverifiedTTL}
}

func (s *RedisStore) Save(ctx context.Context, sess Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := s.unverifiedTTL
	if sess.Verified {
		ttl = time.Until(sess.ExpiresAt) + time.Hour
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := s.client.Set(ctx, keyPrefix+sess.ChatID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, chatID string) (Session, error) {
	raw, err := s.client.Get(ctx, keyPrefix+chatID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("find session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		// Malformed persisted state is equivalent to no session.
		return Session{}, sentinel.ErrNotFound
	}
	return sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, chatID string) error {
	if err := s.client.Del(ctx, keyPrefix+chatID).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) All(ctx context.Context) ([]Session, error) {
	var out []Session
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scan sessions: %w", err)
		}
		var sess Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			continue
		}
		out = append(out, sess)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	return out, nil
}

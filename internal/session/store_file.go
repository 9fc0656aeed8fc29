package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"regdesk/pkg/sentinel"
)

// FileStore persists the whole session map as one JSON document, rewritten
// wholesale on every change. In-memory state is authoritative: a failed write
// is reported but never rolls the map back, so the current process keeps
// behaving correctly and only restart durability is at risk.
type FileStore struct {
	mu       sync.RWMutex
	path     string
	sessions map[string]Session
	logger   *slog.Logger
}

// NewFileStore loads existing sessions from path. A malformed file is
// equivalent to no sessions at all; it is never treated as verified state.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	s := &FileStore{path: path, sessions: make(map[string]Session), logger: logger}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("session file unreadable, starting empty", "path", path, "error", err)
		}
		return s
	}
	if err := json.Unmarshal(raw, &s.sessions); err != nil {
		logger.Warn("session file malformed, starting empty", "path", path, "error", err)
		s.sessions = make(map[string]Session)
	}
	return s
}

func (s *FileStore) Save(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ChatID] = sess
	return s.persistLocked()
}

func (s *FileStore) Find(_ context.Context, chatID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[chatID]; ok {
		return sess, nil
	}
	return Session{}, sentinel.ErrNotFound
}

func (s *FileStore) Delete(_ context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
	return s.persistLocked()
}

func (s *FileStore) All(_ context.Context) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

func (s *FileStore) persistLocked() error {
	raw, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write sessions: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write sessions: %w", err)
	}
	return nil
}

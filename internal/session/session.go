// Package session maps chat identities to verification state. Sessions
// persist across process restarts; persistence is best-effort and never
// blocks the serving path.
package session

import "time"

// Session binds a chat identity to a record. A session starts unverified and
// is promoted by the verification service; the zero RecordIndex is only
// meaningful while Verified is true.
type Session struct {
	ChatID       string    `json:"chat_id"`
	Verified     bool      `json:"verified"`
	RecordIndex  int       `json:"record_index"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	PendingField string    `json:"pending_field,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ExpiredAt reports whether the session's verification has lapsed at t.
// Unverified sessions never expire; they are simply replaced.
func (s Session) ExpiredAt(t time.Time) bool {
	return s.Verified && !t.Before(s.ExpiresAt)
}

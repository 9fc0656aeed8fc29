package testutil

import (
	"context"
	"net/http"

	"regdesk/internal/platform/middleware"
)

// WithChatID adds an authenticated chat identity to the request context,
// simulating what the auth middleware does for valid bearer tokens.
func WithChatID(req *http.Request, chatID string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyChatID, chatID)
	return req.WithContext(ctx)
}

// WithRequestID adds a correlation ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyRequestID, requestID)
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// TokenValidator defines the interface for validating chat bearer tokens.
type TokenValidator interface {
	ValidateChatToken(tokenString string) (string, error)
}

type contextKeyChatID struct{}

// ContextKeyChatID is exported for use in handlers and tests.
var ContextKeyChatID = contextKeyChatID{}

// GetChatID retrieves the authenticated chat identity from the context.
func GetChatID(ctx context.Context) string {
	chatID, ok := ctx.Value(ContextKeyChatID).(string)
	if !ok {
		return ""
	}
	return chatID
}

// RequireAuth validates the Bearer token minted at verification time and puts
// the chat identity on the context. The session manager remains authoritative:
// a valid token over a logged-out session still fails downstream.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				logger.WarnContext(r.Context(), "unauthorized access - missing token",
					"request_id", GetRequestID(r.Context()),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			chatID, err := validator.ValidateChatToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyChatID, chatID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}

// Package broadcast delivers an admin announcement to every chat identity
// holding a live verified session.
package broadcast

import (
	"context"
	"log/slog"
	"strings"

	"regdesk/internal/audit"
	"regdesk/internal/platform/metrics"
	"regdesk/internal/session"
	dErrors "regdesk/pkg/domainerrors"
)

// Notifier delivers one message to one chat identity. The conversational
// frontend supplies the real implementation.
type Notifier interface {
	Notify(ctx context.Context, chatID, message string) error
}

// LogNotifier is the default sink when no frontend is attached: deliveries
// land in the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, chatID, message string) error {
	n.Logger.InfoContext(ctx, "broadcast delivery", "chat_id", chatID, "message", message)
	return nil
}

// Sessions enumerates live verified sessions.
type Sessions interface {
	VerifiedSessions(ctx context.Context) []session.Session
}

// ActionLogger records broadcasts in the action log.
type ActionLogger interface {
	RecordAction(ctx context.Context, actor, action, subject, reason string)
}

// Result summarizes one broadcast run.
type Result struct {
	Recipients int
	Delivered  int
	Failed     int
}

type Service struct {
	sessions Sessions
	notifier Notifier
	metrics  *metrics.Metrics
	audit    ActionLogger
	logger   *slog.Logger
}

func NewService(sessions Sessions, notifier Notifier, m *metrics.Metrics, auditLog ActionLogger, logger *slog.Logger) *Service {
	return &Service{sessions: sessions, notifier: notifier, metrics: m, audit: auditLog, logger: logger}
}

// Broadcast sends message to every live verified session. Delivery failures
// are counted, logged and skipped; one bad recipient never aborts the run.
func (s *Service) Broadcast(ctx context.Context, admin, message string) (Result, error) {
	if strings.TrimSpace(message) == "" {
		return Result{}, dErrors.New(dErrors.CodeBadRequest, "message must not be empty")
	}

	sessions := s.sessions.VerifiedSessions(ctx)
	result := Result{Recipients: len(sessions)}
	for _, sess := range sessions {
		if err := s.notifier.Notify(ctx, sess.ChatID, message); err != nil {
			result.Failed++
			s.logger.WarnContext(ctx, "broadcast delivery failed", "chat_id", sess.ChatID, "error", err)
			continue
		}
		result.Delivered++
		s.metrics.IncBroadcastsDelivered()
	}

	s.audit.RecordAction(ctx, admin, audit.ActionBroadcastSent, "", "")
	s.logger.InfoContext(ctx, "broadcast complete",
		"recipients", result.Recipients, "delivered", result.Delivered, "failed", result.Failed)
	return result, nil
}

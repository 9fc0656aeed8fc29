// Package verify implements the identity verification flow: a chat identity
// claims an email and phone pair, which must both match a single record
// before a verified session and access token are issued.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"regdesk/internal/audit"
	"regdesk/internal/platform/metrics"
	"regdesk/internal/record"
	"regdesk/internal/session"
	dErrors "regdesk/pkg/domainerrors"
	"regdesk/pkg/sentinel"
)

// RecordFinder locates a record by its identity columns.
type RecordFinder interface {
	FindByIdentity(email, phone string) (int, record.Record, error)
}

// Sessions is the slice of the session manager verification needs.
type Sessions interface {
	Verify(ctx context.Context, chatID string, recordIndex int) session.Session
	StartUnverified(ctx context.Context, chatID string)
}

// TokenIssuer mints the access token returned alongside a verified session.
type TokenIssuer interface {
	GenerateChatToken(chatID string, expiresAt time.Time) (string, error)
}

// ActionLogger records verification outcomes in the action log.
type ActionLogger interface {
	RecordAction(ctx context.Context, actor, action, subject, reason string)
}

// Result is returned on successful verification.
type Result struct {
	RecordIndex int
	Token       string
	ExpiresAt   time.Time
}

type Service struct {
	records  RecordFinder
	sessions Sessions
	tokens   TokenIssuer
	metrics  *metrics.Metrics
	audit    ActionLogger
	logger   *slog.Logger
}

func NewService(
	records RecordFinder,
	sessions Sessions,
	tokens TokenIssuer,
	m *metrics.Metrics,
	auditLog ActionLogger,
	logger *slog.Logger,
) *Service {
	return &Service{
		records:  records,
		sessions: sessions,
		tokens:   tokens,
		metrics:  m,
		audit:    auditLog,
		logger:   logger,
	}
}

// Verify checks the claimed identity against the record table. Both values
// must match the same record. On a miss the chat identity is left with an
// unverified session so the frontend can re-prompt.
func (s *Service) Verify(ctx context.Context, chatID, email, phone string) (Result, error) {
	ctx, span := otel.Tracer("regdesk").Start(ctx, "verify.Verify",
		trace.WithAttributes(attribute.String("chat_id", chatID)))
	defer span.End()

	if chatID == "" {
		return Result{}, dErrors.New(dErrors.CodeBadRequest, "chat id is required")
	}
	if strings.TrimSpace(email) == "" || strings.TrimSpace(phone) == "" {
		return Result{}, dErrors.New(dErrors.CodeBadRequest, "email and phone are required")
	}

	index, row, err := s.records.FindByIdentity(email, phone)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.sessions.StartUnverified(ctx, chatID)
		s.metrics.IncVerificationFailed()
		s.audit.RecordAction(ctx, chatID, audit.ActionVerifyFailed, "", "no matching record")
		s.logger.InfoContext(ctx, "verification failed", "chat_id", chatID)
		span.SetAttributes(attribute.Bool("verified", false))
		return Result{}, dErrors.New(dErrors.CodeNotFound, "no record matches the provided details")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record lookup failed")
		return Result{}, dErrors.Wrap(dErrors.CodeUnavailable, "record table unavailable", err)
	}

	sess := s.sessions.Verify(ctx, chatID, index)

	token, err := s.tokens.GenerateChatToken(chatID, sess.ExpiresAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token generation failed")
		return Result{}, dErrors.Wrap(dErrors.CodeInternal, "could not issue token", err)
	}

	s.metrics.IncVerificationSucceeded()
	s.audit.RecordAction(ctx, chatID, audit.ActionVerified, row["AdmissionNumber"], "")
	s.logger.InfoContext(ctx, "verification succeeded", "chat_id", chatID, "record_index", index)
	span.SetAttributes(attribute.Bool("verified", true), attribute.Int("record_index", index))

	return Result{RecordIndex: index, Token: token, ExpiresAt: sess.ExpiresAt}, nil
}

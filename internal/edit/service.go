// Package edit implements the two-step field edit flow: a verified owner
// first chooses a field, then submits its new value. Session liveness, field
// mutability, and the deployment edit window are re-checked at each step.
package edit

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"regdesk/internal/audit"
	"regdesk/internal/platform/metrics"
	"regdesk/internal/record"
	"regdesk/internal/session"
	dErrors "regdesk/pkg/domainerrors"
)

// RecordMutator is the slice of the record store edits go through.
type RecordMutator interface {
	Get(index int) (record.Record, error)
	SetField(index int, field, value string) (string, error)
	Persist(ctx context.Context, reason string) error
}

// Sessions is the slice of the session manager the edit flow needs.
type Sessions interface {
	Get(ctx context.Context, chatID string) (session.Session, bool)
	IsActive(ctx context.Context, chatID string) bool
	SetPendingField(ctx context.Context, chatID, field string)
	ClearPendingField(ctx context.Context, chatID string)
	Logout(ctx context.Context, chatID string)
}

// WindowPolicy gates edits on the deployment-relative window.
type WindowPolicy interface {
	IsEditingAllowed() bool
	DaysLeft() int
}

// ActionLogger records applied edits in the action log.
type ActionLogger interface {
	RecordAction(ctx context.Context, actor, action, subject, reason string)
}

// Change describes one applied edit.
type Change struct {
	Field    string
	OldValue string
	NewValue string
}

type Service struct {
	records  RecordMutator
	sessions Sessions
	window   WindowPolicy
	metrics  *metrics.Metrics
	audit    ActionLogger
	logger   *slog.Logger
}

func NewService(
	records RecordMutator,
	sessions Sessions,
	window WindowPolicy,
	m *metrics.Metrics,
	auditLog ActionLogger,
	logger *slog.Logger,
) *Service {
	return &Service{
		records:  records,
		sessions: sessions,
		window:   window,
		metrics:  m,
		audit:    auditLog,
		logger:   logger,
	}
}

// ChooseField validates field against the session, mutability rules and the
// edit window, then parks it on the session awaiting a value.
func (s *Service) ChooseField(ctx context.Context, chatID, field string) error {
	ctx, span := otel.Tracer("regdesk").Start(ctx, "edit.ChooseField",
		trace.WithAttributes(attribute.String("chat_id", chatID), attribute.String("field", field)))
	defer span.End()

	sess, err := s.requireLiveSession(ctx, chatID)
	if err != nil {
		return err
	}

	field = strings.TrimSpace(field)
	if record.IsImmutable(field) {
		return dErrors.New(dErrors.CodeImmutableField, "this field cannot be changed")
	}
	if !record.IsEditable(field) {
		return dErrors.New(dErrors.CodeBadRequest, "unknown field")
	}
	if !s.window.IsEditingAllowed() {
		return dErrors.New(dErrors.CodeWindowClosed, "the edit window has closed")
	}

	if _, err := s.records.Get(sess.RecordIndex); err != nil {
		// The table shrank under this session; force re-verification.
		s.sessions.Logout(ctx, chatID)
		return dErrors.New(dErrors.CodeSessionExpired, "session no longer matches a record")
	}

	s.sessions.SetPendingField(ctx, chatID, field)
	return nil
}

// SubmitValue applies the pending field's new value and persists the table.
// The pending field is cleared whether or not the persist lands.
func (s *Service) SubmitValue(ctx context.Context, chatID, value string) (Change, error) {
	ctx, span := otel.Tracer("regdesk").Start(ctx, "edit.SubmitValue",
		trace.WithAttributes(attribute.String("chat_id", chatID)))
	defer span.End()

	sess, err := s.requireLiveSession(ctx, chatID)
	if err != nil {
		return Change{}, err
	}
	if sess.PendingField == "" {
		return Change{}, dErrors.New(dErrors.CodeNoPendingField, "no field is awaiting a value")
	}
	if !s.window.IsEditingAllowed() {
		s.sessions.ClearPendingField(ctx, chatID)
		return Change{}, dErrors.New(dErrors.CodeWindowClosed, "the edit window has closed")
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return Change{}, dErrors.New(dErrors.CodeBadRequest, "value must not be empty")
	}

	field := sess.PendingField
	defer s.sessions.ClearPendingField(ctx, chatID)

	old, err := s.records.SetField(sess.RecordIndex, field, value)
	if errors.Is(err, record.ErrIndexOutOfRange) {
		s.sessions.Logout(ctx, chatID)
		return Change{}, dErrors.New(dErrors.CodeSessionExpired, "session no longer matches a record")
	}
	if err != nil {
		span.RecordError(err)
		return Change{}, dErrors.Wrap(dErrors.CodeInternal, "could not apply edit", err)
	}

	if err := s.records.Persist(ctx, "edit"); err != nil {
		// The in-memory edit stands; only durability failed.
		s.metrics.IncPersistFailures()
		s.logger.ErrorContext(ctx, "edit persist failed", "chat_id", chatID, "field", field, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return Change{}, dErrors.Wrap(dErrors.CodePersistFailed, "edit applied but not saved to disk", err)
	}

	s.metrics.IncEditsApplied()
	s.audit.RecordAction(ctx, chatID, audit.ActionRecordEdited, field, "")
	s.logger.InfoContext(ctx, "edit applied", "chat_id", chatID, "field", field)

	return Change{Field: field, OldValue: old, NewValue: value}, nil
}

func (s *Service) requireLiveSession(ctx context.Context, chatID string) (session.Session, error) {
	sess, ok := s.sessions.Get(ctx, chatID)
	if !ok || !sess.Verified {
		return session.Session{}, dErrors.New(dErrors.CodeNotVerified, "verify your identity first")
	}
	if !s.sessions.IsActive(ctx, chatID) {
		return session.Session{}, dErrors.New(dErrors.CodeSessionExpired, "your session has expired")
	}
	return sess, nil
}

package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"regdesk/internal/audit"
	"regdesk/internal/edit"
	"regdesk/internal/platform/middleware"
	"regdesk/internal/record"
	"regdesk/internal/session"
	"regdesk/internal/transport/http/shared"
	"regdesk/internal/verify"
	dErrors "regdesk/pkg/domainerrors"
)

// VerifyService runs the identity verification flow.
type VerifyService interface {
	Verify(ctx context.Context, chatID, email, phone string) (verify.Result, error)
}

// EditService runs the two-step edit flow.
type EditService interface {
	ChooseField(ctx context.Context, chatID, field string) error
	SubmitValue(ctx context.Context, chatID, value string) (edit.Change, error)
}

// UserSessions is the session surface the /v1 handlers need.
type UserSessions interface {
	Get(ctx context.Context, chatID string) (session.Session, bool)
	IsActive(ctx context.Context, chatID string) bool
	Logout(ctx context.Context, chatID string)
}

// RecordReader serves the owner's own record.
type RecordReader interface {
	Get(index int) (record.Record, error)
}

// WindowView exposes the edit window state shown alongside a record.
type WindowView interface {
	DaysLeft() int
	IsEditingAllowed() bool
}

// ActionLogger records logout events.
type ActionLogger interface {
	RecordAction(ctx context.Context, actor, action, subject, reason string)
}

// UserHandler is the conversational frontend's surface.
type UserHandler struct {
	logger    *slog.Logger
	verify    VerifyService
	edit      EditService
	sessions  UserSessions
	records   RecordReader
	window    WindowView
	audit     ActionLogger
	validator middleware.TokenValidator
}

func NewUserHandler(
	verifySvc VerifyService,
	editSvc EditService,
	sessions UserSessions,
	records RecordReader,
	window WindowView,
	auditLog ActionLogger,
	validator middleware.TokenValidator,
	logger *slog.Logger,
) *UserHandler {
	return &UserHandler{
		logger:    logger,
		verify:    verifySvc,
		edit:      editSvc,
		sessions:  sessions,
		records:   records,
		window:    window,
		audit:     auditLog,
		validator: validator,
	}
}

// Register mounts the /v1 routes. Verification is the only unauthenticated
// endpoint; everything else presents the bearer token it returned.
func (h *UserHandler) Register(r chi.Router) {
	userRouter := chi.NewRouter()
	userRouter.Use(middleware.Recovery(h.logger))
	userRouter.Use(middleware.RequestID)
	userRouter.Use(middleware.Logger(h.logger))
	userRouter.Use(middleware.Timeout(30 * time.Second))
	userRouter.Use(middleware.ContentTypeJSON)

	userRouter.Post("/verify", h.handleVerify)

	userRouter.Group(func(g chi.Router) {
		g.Use(middleware.RequireAuth(h.validator, h.logger))
		g.Get("/record", h.handleGetRecord)
		g.Post("/edit/field", h.handleChooseField)
		g.Post("/edit/value", h.handleSubmitValue)
		g.Post("/logout", h.handleLogout)
	})

	r.Mount("/v1", userRouter)
}

type verifyRequest struct {
	ChatID string `json:"chat_id"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
}

type verifyResponse struct {
	RecordIndex int       `json:"record_index"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *UserHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.verify.Verify(ctx, req.ChatID, req.Email, req.Phone)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, verifyResponse{
		RecordIndex: result.RecordIndex,
		Token:       result.Token,
		ExpiresAt:   result.ExpiresAt,
	})
}

type recordResponse struct {
	RecordIndex    int               `json:"record_index"`
	Record         map[string]string `json:"record"`
	DaysLeft       int               `json:"days_left"`
	EditingAllowed bool              `json:"editing_allowed"`
}

func (h *UserHandler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID := middleware.GetChatID(ctx)

	sess, ok := h.liveSession(ctx, w, chatID)
	if !ok {
		return
	}

	row, err := h.records.Get(sess.RecordIndex)
	if err != nil {
		// The table shrank under this session; force re-verification.
		h.sessions.Logout(ctx, chatID)
		shared.WriteError(w, dErrors.New(dErrors.CodeSessionExpired, "session no longer matches a record"))
		return
	}

	shared.WriteJSON(w, http.StatusOK, recordResponse{
		RecordIndex:    sess.RecordIndex,
		Record:         row,
		DaysLeft:       h.window.DaysLeft(),
		EditingAllowed: h.window.IsEditingAllowed(),
	})
}

type chooseFieldRequest struct {
	Field string `json:"field"`
}

func (h *UserHandler) handleChooseField(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID := middleware.GetChatID(ctx)

	var req chooseFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.edit.ChooseField(ctx, chatID, req.Field); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitValueRequest struct {
	Value string `json:"value"`
}

type submitValueResponse struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

func (h *UserHandler) handleSubmitValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID := middleware.GetChatID(ctx)

	var req submitValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	change, err := h.edit.SubmitValue(ctx, chatID, req.Value)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, submitValueResponse{
		Field:    change.Field,
		OldValue: change.OldValue,
		NewValue: change.NewValue,
	})
}

func (h *UserHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID := middleware.GetChatID(ctx)

	h.sessions.Logout(ctx, chatID)
	h.audit.RecordAction(ctx, chatID, audit.ActionLoggedOut, "", "")
	w.WriteHeader(http.StatusNoContent)
}

// liveSession resolves the caller's verified session or writes the error.
func (h *UserHandler) liveSession(ctx context.Context, w http.ResponseWriter, chatID string) (session.Session, bool) {
	sess, ok := h.sessions.Get(ctx, chatID)
	if !ok || !sess.Verified {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotVerified, "verify your identity first"))
		return session.Session{}, false
	}
	if !h.sessions.IsActive(ctx, chatID) {
		shared.WriteError(w, dErrors.New(dErrors.CodeSessionExpired, "your session has expired"))
		return session.Session{}, false
	}
	return sess, true
}

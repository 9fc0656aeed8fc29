package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"regdesk/internal/audit"
	"regdesk/internal/broadcast"
	"regdesk/internal/platform/metrics"
	"regdesk/internal/platform/middleware"
	"regdesk/internal/record"
	"regdesk/internal/session"
	"regdesk/internal/transport/http/shared"
	dErrors "regdesk/pkg/domainerrors"
)

// walletColumn is the record column the credit operation mutates.
const walletColumn = "Wallet"

// AdminRecords is the record store surface the admin handlers need.
type AdminRecords interface {
	Load(ctx context.Context) error
	Rows() []record.Record
	Header() []string
	Len() int
	Search(q string) []record.Match
	Append(fields map[string]string) (int, error)
	SetField(index int, field, value string) (string, error)
	Persist(ctx context.Context, reason string) error
	Backup(ctx context.Context) (string, error)
}

// AdminWindow manages the deployment-relative edit window.
type AdminWindow interface {
	StartDate() time.Time
	DaysSinceStart() int
	DaysLeft() int
	IsEditingAllowed() bool
	ResetWindow(newStart time.Time) error
}

// AdminSessions enumerates live sessions for the stats view.
type AdminSessions interface {
	VerifiedSessions(ctx context.Context) []session.Session
}

// Broadcaster sends an announcement to verified sessions.
type Broadcaster interface {
	Broadcast(ctx context.Context, admin, message string) (broadcast.Result, error)
}

// AuditReader serves the action-log tail.
type AuditReader interface {
	RecordAction(ctx context.Context, actor, action, subject, reason string)
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

// AdminHandler is the operator surface, guarded by the admin token.
type AdminHandler struct {
	logger      *slog.Logger
	records     AdminRecords
	window      AdminWindow
	sessions    AdminSessions
	broadcaster Broadcaster
	audit       AuditReader
	metrics     *metrics.Metrics
	tokenHash   string
}

func NewAdminHandler(
	records AdminRecords,
	window AdminWindow,
	sessions AdminSessions,
	broadcaster Broadcaster,
	auditLog AuditReader,
	m *metrics.Metrics,
	tokenHash string,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		logger:      logger,
		records:     records,
		window:      window,
		sessions:    sessions,
		broadcaster: broadcaster,
		audit:       auditLog,
		metrics:     m,
		tokenHash:   tokenHash,
	}
}

// adminActor labels admin-originated audit events. The admin surface is a
// single shared token, so there is no finer identity to record.
const adminActor = "admin"

// Register mounts the /admin routes behind the token check.
func (h *AdminHandler) Register(r chi.Router) {
	adminRouter := chi.NewRouter()
	adminRouter.Use(middleware.Recovery(h.logger))
	adminRouter.Use(middleware.RequestID)
	adminRouter.Use(middleware.Logger(h.logger))
	adminRouter.Use(middleware.Timeout(30 * time.Second))
	adminRouter.Use(middleware.ContentTypeJSON)
	adminRouter.Use(middleware.RequireAdminToken(h.tokenHash, h.logger))

	adminRouter.Get("/records", h.handleListRecords)
	adminRouter.Get("/records/search", h.handleSearchRecords)
	adminRouter.Post("/records", h.handleAddRecord)
	adminRouter.Post("/credit", h.handleCredit)
	adminRouter.Post("/reload", h.handleReload)
	adminRouter.Post("/backup", h.handleBackup)
	adminRouter.Get("/stats", h.handleStats)
	adminRouter.Post("/window", h.handleResetWindow)
	adminRouter.Get("/audit", h.handleAuditTail)
	adminRouter.Post("/broadcast", h.handleBroadcast)

	r.Mount("/admin", adminRouter)
}

type recordEntry struct {
	Index  int               `json:"index"`
	Fields map[string]string `json:"fields"`
}

type listRecordsResponse struct {
	Header  []string      `json:"header"`
	Records []recordEntry `json:"records"`
	Count   int           `json:"count"`
}

func (h *AdminHandler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	rows := h.records.Rows()
	entries := make([]recordEntry, len(rows))
	for i, row := range rows {
		entries[i] = recordEntry{Index: i, Fields: row}
	}
	shared.WriteJSON(w, http.StatusOK, listRecordsResponse{
		Header:  h.records.Header(),
		Records: entries,
		Count:   len(rows),
	})
}

func (h *AdminHandler) handleSearchRecords(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "q is required"))
		return
	}

	matches := h.records.Search(q)
	entries := make([]recordEntry, len(matches))
	for i, m := range matches {
		entries[i] = recordEntry{Index: m.Index, Fields: m.Record}
	}
	shared.WriteJSON(w, http.StatusOK, listRecordsResponse{
		Header:  h.records.Header(),
		Records: entries,
		Count:   len(entries),
	})
}

type addRecordRequest struct {
	Fields map[string]string `json:"fields"`
}

func (h *AdminHandler) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if strings.TrimSpace(req.Fields[record.FieldEmail]) == "" || strings.TrimSpace(req.Fields[record.FieldPhone]) == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Email and Phone are required"))
		return
	}

	index, err := h.records.Append(req.Fields)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "could not add record", err))
		return
	}
	if err := h.records.Persist(ctx, "admin_add"); err != nil {
		h.metrics.IncPersistFailures()
		shared.WriteError(w, dErrors.Wrap(dErrors.CodePersistFailed, "record added but not saved to disk", err))
		return
	}

	h.metrics.SetRecordRows(h.records.Len())
	h.audit.RecordAction(ctx, adminActor, audit.ActionRecordAdded, req.Fields["AdmissionNumber"], "")
	shared.WriteJSON(w, http.StatusCreated, map[string]int{"index": index})
}

type creditRequest struct {
	AdmissionNumber string  `json:"admission_number"`
	Amount          float64 `json:"amount"`
}

type creditResponse struct {
	Index  int    `json:"index"`
	Wallet string `json:"wallet"`
}

func (h *AdminHandler) handleCredit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if strings.TrimSpace(req.AdmissionNumber) == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "admission_number is required"))
		return
	}
	if req.Amount <= 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "amount must be positive"))
		return
	}

	index := -1
	var current float64
	for i, row := range h.records.Rows() {
		if row["AdmissionNumber"] == req.AdmissionNumber {
			index = i
			current, _ = strconv.ParseFloat(strings.TrimSpace(row[walletColumn]), 64)
			break
		}
	}
	if index < 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no record with that admission number"))
		return
	}

	balance := strconv.FormatFloat(current+req.Amount, 'f', -1, 64)
	if _, err := h.records.SetField(index, walletColumn, balance); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "table has no wallet column"))
		return
	}
	if err := h.records.Persist(ctx, "credit"); err != nil {
		h.metrics.IncPersistFailures()
		shared.WriteError(w, dErrors.Wrap(dErrors.CodePersistFailed, "credit applied but not saved to disk", err))
		return
	}

	h.audit.RecordAction(ctx, adminActor, audit.ActionWalletCredited, req.AdmissionNumber,
		strconv.FormatFloat(req.Amount, 'f', -1, 64))
	shared.WriteJSON(w, http.StatusOK, creditResponse{Index: index, Wallet: balance})
}

func (h *AdminHandler) handleReload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.records.Load(ctx); err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeUnavailable, "reload failed", err))
		return
	}

	h.metrics.IncTableReloads()
	h.metrics.SetRecordRows(h.records.Len())
	h.audit.RecordAction(ctx, adminActor, audit.ActionTableReloaded, "", "manual")
	shared.WriteJSON(w, http.StatusOK, map[string]int{"rows": h.records.Len()})
}

func (h *AdminHandler) handleBackup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	path, err := h.records.Backup(ctx)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeUnavailable, "backup failed", err))
		return
	}

	h.metrics.IncBackupsWritten()
	shared.WriteJSON(w, http.StatusOK, map[string]string{"backup": path})
}

type statsResponse struct {
	Rows           int    `json:"rows"`
	StartDate      string `json:"start_date"`
	DaysSinceStart int    `json:"days_since_start"`
	DaysLeft       int    `json:"days_left"`
	EditingAllowed bool   `json:"editing_allowed"`
	ActiveSessions int    `json:"active_sessions"`
}

func (h *AdminHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, http.StatusOK, statsResponse{
		Rows:           h.records.Len(),
		StartDate:      h.window.StartDate().Format(time.RFC3339),
		DaysSinceStart: h.window.DaysSinceStart(),
		DaysLeft:       h.window.DaysLeft(),
		EditingAllowed: h.window.IsEditingAllowed(),
		ActiveSessions: len(h.sessions.VerifiedSessions(r.Context())),
	})
}

type resetWindowRequest struct {
	StartDate string `json:"start_date"`
}

func (h *AdminHandler) handleResetWindow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req resetWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	newStart, err := parseStartDate(req.StartDate)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "start_date must be RFC3339 or YYYY-MM-DD"))
		return
	}

	if err := h.window.ResetWindow(newStart); err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeUnavailable, "could not persist window state", err))
		return
	}

	h.audit.RecordAction(ctx, adminActor, audit.ActionWindowReset, req.StartDate, "")
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"start_date": h.window.StartDate().Format(time.RFC3339),
		"days_left":  h.window.DaysLeft(),
	})
}

func parseStartDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func (h *AdminHandler) handleAuditTail(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	events, err := h.audit.ListRecent(r.Context(), limit)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeUnavailable, "could not read action log", err))
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (h *AdminHandler) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.broadcaster.Broadcast(r.Context(), adminActor, req.Message)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int{
		"recipients": result.Recipients,
		"delivered":  result.Delivered,
		"failed":     result.Failed,
	})
}

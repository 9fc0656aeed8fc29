package httptransport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regdesk/internal/audit"
)

func (ts *testServer) doAdmin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Admin-Token", adminToken)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func TestAdminRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/records", nil)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/records", nil)
	req.Header.Set("X-Admin-Token", "wrong-token")
	w = httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminListRecords(t *testing.T) {
	ts := newTestServer(t)

	w := ts.doAdmin(t, http.MethodGet, "/admin/records", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Header  []string `json:"header"`
		Records []struct {
			Index  int               `json:"index"`
			Fields map[string]string `json:"fields"`
		} `json:"records"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Contains(t, resp.Header, "Email")
	assert.Equal(t, "ADM001", resp.Records[0].Fields["AdmissionNumber"])
}

func TestAdminSearch(t *testing.T) {
	ts := newTestServer(t)

	w := ts.doAdmin(t, http.MethodGet, "/admin/records/search?q=union", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count   int `json:"count"`
		Records []struct {
			Index int `json:"index"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, 1, resp.Records[0].Index)

	w = ts.doAdmin(t, http.MethodGet, "/admin/records/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminAddRecord(t *testing.T) {
	ts := newTestServer(t)

	w := ts.doAdmin(t, http.MethodPost, "/admin/records", map[string]any{
		"fields": map[string]string{
			"Email":           "c@x.com",
			"Phone":           "2340000003",
			"AdmissionNumber": "ADM003",
			"FullName":        "Third Person",
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Index int `json:"index"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Index)

	// The new row is immediately verifiable.
	ts.verifyChat(t, "chat-new", "c@x.com", "2340000003")

	// And it reached disk.
	raw, err := os.ReadFile(ts.store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ADM003")
}

func TestAdminAddRecordRequiresIdentity(t *testing.T) {
	ts := newTestServer(t)

	w := ts.doAdmin(t, http.MethodPost, "/admin/records", map[string]any{
		"fields": map[string]string{"FullName": "No Identity"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminCredit(t *testing.T) {
	ts := newTestServer(t)

	w := ts.doAdmin(t, http.MethodPost, "/admin/credit", map[string]any{
		"admission_number": "ADM001",
		"amount":           250,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Index  int    `json:"index"`
		Wallet string `json:"wallet"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Index)
	assert.Equal(t, "350", resp.Wallet)

	// Empty wallet cell reads as zero.
	w = ts.doAdmin(t, http.MethodPost, "/admin/credit", map[string]any{
		"admission_number": "ADM002",
		"amount":           100,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "100", resp.Wallet)
}

func TestAdminCreditUnknownAdmission(t *testing.T) {
	ts := newTestServer(t)

	w := ts.doAdmin(t, http.MethodPost, "/admin/credit", map[string]any{
		"admission_number": "ADM999",
		"amount":           100,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminCreditRejectsNonPositiveAmount(t *testing.T) {
	ts := newTestServer(t)

	w := ts.doAdmin(t, http.MethodPost, "/admin/credit", map[string]any{
		"admission_number": "ADM001",
		"amount":           0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminReload(t *testing.T) {
	ts := newTestServer(t)

	// Replace the table on disk behind the store's back.
	newCSV := "Email,Phone,AdmissionNumber,FullName,DateOfBirth,BankName,AccountNumber,Wallet\n" +
		"z@x.com,2340000009,ADM009,Only Person,1995-05-05,Zenith Bank,9999999999,0\n"
	require.NoError(t, os.WriteFile(ts.store.Path(), []byte(newCSV), 0o600))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(ts.store.Path(), future, future))

	w := ts.doAdmin(t, http.MethodPost, "/admin/reload", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Rows int `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Rows)
}

func TestAdminBackup(t *testing.T) {
	ts := newTestServer(t)

	w := ts.doAdmin(t, http.MethodPost, "/admin/backup", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Backup string `json:"backup"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Backup)

	_, err := os.Stat(resp.Backup)
	assert.NoError(t, err)
}

func TestAdminStats(t *testing.T) {
	ts := newTestServer(t)
	ts.verifyChat(t, "chat-1", "a@x.com", "2340000001")

	w := ts.doAdmin(t, http.MethodGet, "/admin/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Rows           int  `json:"rows"`
		DaysSinceStart int  `json:"days_since_start"`
		DaysLeft       int  `json:"days_left"`
		EditingAllowed bool `json:"editing_allowed"`
		ActiveSessions int  `json:"active_sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Rows)
	assert.Equal(t, 1, resp.DaysSinceStart)
	assert.Equal(t, 7, resp.DaysLeft)
	assert.True(t, resp.EditingAllowed)
	assert.Equal(t, 1, resp.ActiveSessions)
}

func TestAdminResetWindowDisablesEditing(t *testing.T) {
	ts := newTestServer(t)
	token := ts.verifyChat(t, "chat-1", "a@x.com", "2340000001")

	w := ts.doAdmin(t, http.MethodPost, "/admin/window", map[string]string{
		"start_date": "2020-01-01",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		DaysLeft int `json:"days_left"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.DaysLeft)

	uw := ts.do(t, http.MethodPost, "/v1/edit/field", token, map[string]string{"field": "FullName"})
	assert.Equal(t, http.StatusConflict, uw.Code)
}

func TestAdminResetWindowBadDate(t *testing.T) {
	ts := newTestServer(t)

	w := ts.doAdmin(t, http.MethodPost, "/admin/window", map[string]string{
		"start_date": "next tuesday",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminAuditTail(t *testing.T) {
	ts := newTestServer(t)
	ts.verifyChat(t, "chat-1", "a@x.com", "2340000001")

	w := ts.doAdmin(t, http.MethodGet, "/admin/audit?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Events []audit.Event `json:"events"`
		Count  int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotZero(t, resp.Count)

	var sawVerified bool
	for _, e := range resp.Events {
		if e.Action == audit.ActionVerified && e.Actor == "chat-1" {
			sawVerified = true
		}
	}
	assert.True(t, sawVerified)

	w = ts.doAdmin(t, http.MethodGet, "/admin/audit?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminBroadcast(t *testing.T) {
	ts := newTestServer(t)
	ts.verifyChat(t, "chat-1", "a@x.com", "2340000001")
	ts.verifyChat(t, "chat-2", "b@x.com", "2340000002")

	w := ts.doAdmin(t, http.MethodPost, "/admin/broadcast", map[string]string{
		"message": "registration closes friday",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Recipients int `json:"recipients"`
		Delivered  int `json:"delivered"`
		Failed     int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Recipients)
	assert.Equal(t, 2, resp.Delivered)
	assert.Zero(t, resp.Failed)
	assert.ElementsMatch(t, []string{"chat-1", "chat-2"}, ts.notifier.delivered)
}

func TestAdminBroadcastEmptyMessage(t *testing.T) {
	ts := newTestServer(t)

	w := ts.doAdmin(t, http.MethodPost, "/admin/broadcast", map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

package audit

import "time"

// Event captures one administrative or data-changing action. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Well-known actions. Free-form actions are allowed; these are the ones the
// engine itself emits.
const (
	ActionVerified       = "verified"
	ActionVerifyFailed   = "verify_failed"
	ActionRecordEdited   = "record_edited"
	ActionRecordAdded    = "record_added"
	ActionWalletCredited = "wallet_credited"
	ActionTablePersisted = "table_persisted"
	ActionTableReloaded  = "table_reloaded"
	ActionBackupWritten  = "backup_written"
	ActionWindowReset    = "window_reset"
	ActionBroadcastSent  = "broadcast_sent"
	ActionLoggedOut      = "logged_out"
)

// ActorSystem marks events not attributable to a chat identity or admin.
const ActorSystem = "system"

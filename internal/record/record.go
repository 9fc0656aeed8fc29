// Package record owns the authoritative registrant table: loading it from the
// backing CSV file, identity lookup, field mutation, and durable
// backup-preceded persistence.
package record

import (
	"slices"
	"strings"
)

// Identity columns used to authenticate a claim against a record.
const (
	FieldEmail = "Email"
	FieldPhone = "Phone"
)

// EditableFields are the columns a verified owner may change while the edit
// window is open. ImmutableFields can never be changed by the owner.
var (
	EditableFields  = []string{"FullName", "DateOfBirth", "BankName", "AccountNumber"}
	ImmutableFields = []string{FieldEmail, FieldPhone, "AdmissionNumber"}
)

// IsEditable reports whether field is declared owner-editable.
func IsEditable(field string) bool {
	return slices.Contains(EditableFields, field)
}

// IsImmutable reports whether field is in the protected set.
func IsImmutable(field string) bool {
	return slices.Contains(ImmutableFields, field)
}

// Record is one row of the table. All values are strings; absent columns read
// as the empty string.
type Record map[string]string

// Clone returns an independent copy so callers cannot mutate store state.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// normalizeEmail lowers and trims an email for identity comparison.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizePhone trims a phone number; comparison is otherwise literal.
func normalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}

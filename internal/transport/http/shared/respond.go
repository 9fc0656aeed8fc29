// Package shared holds the JSON response helpers used by every handler.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "regdesk/pkg/domainerrors"
)

// WriteJSON writes v with the given status. Encoding failures at this point
// can only be half-written responses, so they are ignored.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the JSON error envelope for both surfaces.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError translates a domain error into its HTTP status and envelope.
// Non-domain errors collapse to a generic internal response.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	WriteJSON(w, dErrors.ToHTTPStatus(code), ErrorResponse{
		Error:            string(code),
		ErrorDescription: dErrors.MessageOf(err),
	})
}

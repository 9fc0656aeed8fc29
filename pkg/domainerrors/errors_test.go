package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesCodeThroughWrapping(t *testing.T) {
	base := New(CodeWindowClosed, "editing window has closed")
	wrapped := fmt.Errorf("submit value: %w", base)

	assert.True(t, Is(wrapped, CodeWindowClosed))
	assert.False(t, Is(wrapped, CodeImmutableField))
	assert.False(t, Is(errors.New("plain"), CodeWindowClosed))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodePersistFailed, "could not persist table", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, CodePersistFailed, CodeOf(err))
	assert.Equal(t, "could not persist table", MessageOf(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("unexpected")))
	assert.Equal(t, "internal error", MessageOf(errors.New("unexpected")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeNotFound:       http.StatusNotFound,
		CodeNotVerified:    http.StatusUnauthorized,
		CodeSessionExpired: http.StatusUnauthorized,
		CodeImmutableField: http.StatusForbidden,
		CodeWindowClosed:   http.StatusConflict,
		CodeNoPendingField: http.StatusBadRequest,
		CodeBadRequest:     http.StatusBadRequest,
		CodeUnauthorized:   http.StatusUnauthorized,
		CodeUnavailable:    http.StatusServiceUnavailable,
		CodePersistFailed:  http.StatusInternalServerError,
		CodeInternal:       http.StatusInternalServerError,
		Code("mystery"):    http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), "code %s", code)
	}
}

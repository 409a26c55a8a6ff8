package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStatusMapsCodes(t *testing.T) {
	cases := map[int]string{
		http.StatusBadRequest:          ErrValidation.Code,
		http.StatusUnauthorized:        ErrUnauthorized.Code,
		http.StatusForbidden:           ErrForbidden.Code,
		http.StatusNotFound:            ErrNotFound.Code,
		http.StatusConflict:            ErrConflict.Code,
		http.StatusTooManyRequests:     ErrRateLimited.Code,
		http.StatusBadGateway:          ErrInternal.Code,
		http.StatusInternalServerError: ErrInternal.Code,
	}
	for status, code := range cases {
		e := FromStatus(status, "", nil)
		assert.Equal(t, code, e.Code, "status %d", status)
		assert.Equal(t, status, e.Status)
	}
}

func TestCloneDoesNotMutateSentinel(t *testing.T) {
	e := FromStatus(http.StatusUnauthorized, "token expired", nil)
	assert.Equal(t, "token expired", e.Message)
	assert.Equal(t, "unauthorized", ErrUnauthorized.Message)
	assert.True(t, errors.Is(e, ErrUnauthorized))
}

func TestUserMessagePrefersRemoteMessage(t *testing.T) {
	err := fmt.Errorf("login: %w", FromStatus(http.StatusUnauthorized, "No active account found", nil))
	assert.Equal(t, "No active account found", UserMessage(err, ErrInvalidCredentials.Message))
}

func TestUserMessageFallsBack(t *testing.T) {
	err := FromStatus(http.StatusUnauthorized, "", nil)
	assert.Equal(t, "Invalid email or password.", UserMessage(err, ErrInvalidCredentials.Message))

	assert.Equal(t, "fallback", UserMessage(errors.New("plain"), "fallback"))
	assert.Empty(t, UserMessage(nil, "fallback"))
}

func TestUserMessageUsesFirstFieldError(t *testing.T) {
	err := FromStatus(http.StatusBadRequest, "", map[string]string{"password": "too short", "email": "invalid"})
	err.Message = ""
	assert.Equal(t, "invalid", UserMessage(err, "x"))
}

func TestValidationAndTransportPredicates(t *testing.T) {
	v := Validation("bad form", map[string]string{"email": "required"})
	require.True(t, IsValidation(v))
	require.False(t, IsTransport(v))

	tr := Wrap(errors.New("dial tcp: refused"), ErrTransport.Code, 0, ErrTransport.Message)
	require.True(t, IsTransport(tr))
	assert.Contains(t, tr.Error(), "dial tcp")
}

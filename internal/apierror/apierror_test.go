package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Error(t *testing.T) {
	err := NewAPIError(ErrInsufficientFunds, "Insufficient balance", nil)
	assert.Equal(t, "INSUFFICIENT_FUNDS: Insufficient balance", err.Error())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrNotFound, CodeOf(NewAPIError(ErrNotFound, "missing", nil)))
	assert.Equal(t, ErrInternalServer, CodeOf(errors.New("plain error")))

	// wrapped APIErrors still resolve to their code
	wrapped := fmt.Errorf("commit failed: %w", NewAPIError(ErrConflict, "version mismatch", nil))
	assert.Equal(t, ErrConflict, CodeOf(wrapped))
	assert.True(t, IsConflict(wrapped))
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		code   ErrorCode
		status int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrConflict, http.StatusConflict},
		{ErrDuplicateNumber, http.StatusConflict},
		{ErrInvalidState, http.StatusUnprocessableEntity},
		{ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{ErrSelfTransfer, http.StatusUnprocessableEntity},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrBadRequest, http.StatusBadRequest},
		{ErrProvisioningExhausted, http.StatusInternalServerError},
		{ErrInternalServer, http.StatusInternalServerError},
	}

	for _, c := range cases {
		assert.Equal(t, c.status, MapErrorToHTTPStatus(NewAPIError(c.code, "x", nil)), string(c.code))
	}

	assert.Equal(t, http.StatusInternalServerError, MapErrorToHTTPStatus(errors.New("unknown")))
}

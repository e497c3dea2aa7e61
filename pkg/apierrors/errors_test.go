package apierrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsCarryCodeAndStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        *Error
		wantCode   string
		wantStatus int
	}{
		{"not found", NotFound("trial", "t-123"), CodeNotFound, http.StatusNotFound},
		{"conflict", Conflict("duplicate code %q", "EDC-01"), CodeConflict, http.StatusConflict},
		{"validation", Validation("missing field %s", "reason"), CodeValidation, http.StatusBadRequest},
		{"invalid state", InvalidState("link is %s", "LOCKED"), CodeInvalidState, http.StatusUnprocessableEntity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantCode, tc.err.Code)
			assert.Equal(t, tc.wantStatus, tc.err.Status)
			assert.NotEmpty(t, tc.err.Error())
		})
	}
}

func TestPredicatesMatchWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("submit confirmation: %w", Conflict("already captured"))

	assert.True(t, IsConflict(wrapped))
	assert.True(t, IsAPIError(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.False(t, IsInvalidState(wrapped))
}

func TestPredicatesRejectPlainErrors(t *testing.T) {
	err := errors.New("connection reset")

	assert.False(t, IsAPIError(err))
	assert.False(t, IsConflict(err))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusOf(NotFound("vendor", "v-1")))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusOf(fmt.Errorf("wrap: %w", InvalidState("locked"))))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("disk full")))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(fmt.Errorf("plain")))
}

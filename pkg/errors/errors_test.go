package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrCodeDatabase, "failed to add participant", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "DATABASE_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		err    *AppError
		code   ErrorCode
		status int
	}{
		{ValidationError("bad input"), ErrCodeValidation, http.StatusBadRequest},
		{UnauthorizedError("no token"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{ForbiddenError("nope"), ErrCodeForbidden, http.StatusForbidden},
		{NotParticipantError(), ErrCodeNotParticipant, http.StatusForbidden},
		{NotMessageSenderError(), ErrCodeNotMessageSender, http.StatusForbidden},
		{ConversationNotFoundError(), ErrCodeConversationNotFound, http.StatusNotFound},
		{MessageNotFoundError(), ErrCodeMessageNotFound, http.StatusNotFound},
		{DatabaseError(errors.New("boom")), ErrCodeDatabase, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, tt.err.Code)
		assert.Equal(t, tt.status, tt.err.StatusCode)
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NotParticipantError()
	assert.Equal(t, appErr, GetAppError(appErr))

	// A wrapped AppError is still extracted
	wrapped := Wrap(ErrCodeDatabase, "outer", NotParticipantError())
	got := GetAppError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeDatabase, got.Code)

	// Plain errors become internal errors
	plain := GetAppError(errors.New("something broke"))
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.Equal(t, http.StatusInternalServerError, plain.StatusCode)
}

func TestIsAppError(t *testing.T) {
	assert.True(t, IsAppError(ValidationError("x")))
	assert.False(t, IsAppError(errors.New("x")))
}

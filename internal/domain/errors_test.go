package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorCodeRoundTrip(t *testing.T) {
	sentinels := []error{
		ErrRoomNotFound,
		ErrRoomExpired,
		ErrRoomLocked,
		ErrRoomFull,
		ErrInvalidRoomConfig,
		ErrForbidden,
		ErrNotInRoom,
		ErrAlreadyInRoom,
		ErrUnauthenticated,
		ErrJoinDenied,
		ErrUserNotFound,
		ErrChatDisabled,
		ErrTargetNotFound,
	}

	for _, sentinel := range sentinels {
		code := ErrorCode(sentinel)
		require.NotEqual(t, CodeInternal, code, "sentinel %v has no code", sentinel)

		back := ErrorFromCode(code, "")
		require.ErrorIs(t, back, sentinel)
	}
}

func TestErrorCodeSeesWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("join: %w", ErrRoomFull)
	require.Equal(t, CodeRoomFull, ErrorCode(wrapped))
}

func TestErrorCodeMasksUnknownErrors(t *testing.T) {
	require.Equal(t, CodeInternal, ErrorCode(errors.New("sql: connection refused")))

	// Validation errors surface as bad_request, not internal.
	require.Equal(t, CodeBadRequest, ErrorCode(fmt.Errorf("%w: empty body", ErrInvalidMessage)))
}

func TestErrorFromUnknownCode(t *testing.T) {
	err := ErrorFromCode("brand_new_code", "something broke")
	require.EqualError(t, err, "something broke")

	err = ErrorFromCode("brand_new_code", "")
	require.EqualError(t, err, "brand_new_code")
}

func TestInternalEnvelopeHidesDetail(t *testing.T) {
	env := NewErrorEnvelope(errors.New("pq: password authentication failed"))

	var p ErrorPayload
	require.NoError(t, env.Decode(&p))
	require.Equal(t, CodeInternal, p.Code)
	require.Equal(t, "internal error", p.Message)
}

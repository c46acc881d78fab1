package domain

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomExpired       = errors.New("room expired")
	ErrRoomLocked        = errors.New("room is locked")
	ErrRoomFull          = errors.New("room is full")
	ErrRoomLinkExists    = errors.New("room link already exists")
	ErrInvalidRoomConfig = errors.New("invalid room config")
	ErrForbidden         = errors.New("operation requires host role")
	ErrNotInRoom         = errors.New("not in a room")
	ErrAlreadyInRoom     = errors.New("already in a room")
	ErrUnauthenticated   = errors.New("identity not registered")
	ErrJoinDenied        = errors.New("join request denied")
	ErrJoinPending       = errors.New("join awaiting host approval")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserEmailExists   = errors.New("user with email already exists")
	ErrChatDisabled      = errors.New("chat is disabled in this room")
	ErrTargetNotFound    = errors.New("target participant not found")
	ErrInvalidMessage    = errors.New("invalid message")
)

// Wire error codes carried in error envelopes.
const (
	CodeRoomNotFound      = "room_not_found"
	CodeRoomExpired       = "room_expired"
	CodeRoomLocked        = "room_locked"
	CodeRoomFull          = "room_full"
	CodeInvalidRoomConfig = "invalid_room_config"
	CodeForbidden         = "forbidden"
	CodeNotInRoom         = "not_in_room"
	CodeAlreadyInRoom     = "already_in_room"
	CodeUnauthenticated   = "unauthenticated"
	CodeJoinDenied        = "join_denied"
	CodeUserNotFound      = "user_not_found"
	CodeChatDisabled      = "chat_disabled"
	CodeTargetNotFound    = "target_not_found"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal"
)

var errorCodes = map[string]error{
	CodeRoomNotFound:      ErrRoomNotFound,
	CodeRoomExpired:       ErrRoomExpired,
	CodeRoomLocked:        ErrRoomLocked,
	CodeRoomFull:          ErrRoomFull,
	CodeInvalidRoomConfig: ErrInvalidRoomConfig,
	CodeForbidden:         ErrForbidden,
	CodeNotInRoom:         ErrNotInRoom,
	CodeAlreadyInRoom:     ErrAlreadyInRoom,
	CodeUnauthenticated:   ErrUnauthenticated,
	CodeJoinDenied:        ErrJoinDenied,
	CodeUserNotFound:      ErrUserNotFound,
	CodeChatDisabled:      ErrChatDisabled,
	CodeTargetNotFound:    ErrTargetNotFound,
}

// ErrorCode maps a room error to its wire code. Unknown errors map to
// CodeInternal so internals never leak to remote clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, ErrRoomExpired):
		return CodeRoomExpired
	case errors.Is(err, ErrRoomLocked):
		return CodeRoomLocked
	case errors.Is(err, ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, ErrInvalidRoomConfig):
		return CodeInvalidRoomConfig
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotInRoom):
		return CodeNotInRoom
	case errors.Is(err, ErrAlreadyInRoom):
		return CodeAlreadyInRoom
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrJoinDenied):
		return CodeJoinDenied
	case errors.Is(err, ErrUserNotFound):
		return CodeUserNotFound
	case errors.Is(err, ErrChatDisabled):
		return CodeChatDisabled
	case errors.Is(err, ErrTargetNotFound):
		return CodeTargetNotFound
	case errors.Is(err, ErrInvalidMessage):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}

// ErrorFromCode maps a wire code back to its sentinel on the client side.
func ErrorFromCode(code string, message string) error {
	if err, ok := errorCodes[code]; ok {
		return err
	}
	if message != "" {
		return errors.New(message)
	}
	return errors.New(code)
}

package domain

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// Envelope frames every message exchanged over the signaling socket.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client to relay events.
const (
	EventJoinUser          = "join_user"
	EventCreateRoom        = "create_room"
	EventJoinRoom          = "join_room"
	EventLeaveRoom         = "leave_room"
	EventCloseRoom         = "close_room"
	EventUpdateSettings    = "update_settings"
	EventApproveJoin       = "approve_join"
	EventSendMessage       = "send_message"
	EventChatHistory       = "chat_history"
	EventWebRTCOffer       = "webrtc_offer"
	EventWebRTCAnswer      = "webrtc_answer"
	EventWebRTCICE         = "webrtc_ice_candidate"
	EventToggleVideo       = "toggle_video"
	EventToggleAudio       = "toggle_audio"
	EventToggleScreenShare = "toggle_screen_share"
	EventToggleRecording   = "toggle_recording"
)

// Relay to client events.
const (
	EventUserRegistered      = "user_registered"
	EventRoomCreated         = "room_created"
	EventRoomJoined          = "room_joined"
	EventRoomLeft            = "room_left"
	EventRoomClosed          = "room_closed"
	EventJoinPending         = "join_pending"
	EventJoinRequested       = "join_requested"
	EventParticipantsUpdated = "participants_updated"
	EventSettingsUpdated     = "room_settings_updated"
	EventNewMessage          = "new_message"
	EventVideoToggled        = "participant_video_toggled"
	EventAudioToggled        = "participant_audio_toggled"
	EventScreenShareToggled  = "participant_screen_share_toggled"
	EventRecordingToggled    = "room_recording_toggled"
	EventError               = "error"
)

func NewEnvelope(event string, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return errors.New("envelope has no payload")
	}
	return json.Unmarshal(e.Payload, v)
}

type JoinUserPayload struct {
	UserID uuid.UUID `json:"user_id,omitempty"`
	Name   string    `json:"name"`
	Email  string    `json:"email,omitempty"`
}

type CreateRoomPayload struct {
	Name            string        `json:"name"`
	Description     string        `json:"description,omitempty"`
	MaxParticipants int           `json:"max_participants"`
	Settings        *RoomSettings `json:"settings,omitempty"`
	LifetimeMinutes int           `json:"lifetime_minutes,omitempty"`
}

type JoinRoomPayload struct {
	RoomID uuid.UUID `json:"room_id"`
}

type ApproveJoinPayload struct {
	UserID  uuid.UUID `json:"user_id"`
	Approve bool      `json:"approve"`
}

type SendMessagePayload struct {
	Body string      `json:"body"`
	Kind MessageKind `json:"kind,omitempty"`
}

// SignalPayload carries SDP descriptions and ICE candidates between two
// participants. Clients address the target; the relay rewrites the payload
// with the sender before forwarding, so targets always know the origin.
type SignalPayload struct {
	TargetUserID uuid.UUID       `json:"target_user_id,omitempty"`
	SenderUserID uuid.UUID       `json:"sender_user_id,omitempty"`
	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

// TogglePayload is shared by toggle_video/toggle_audio requests and their
// participant_*_toggled fan-outs; the relay fills UserID on the way out.
type TogglePayload struct {
	UserID  uuid.UUID `json:"user_id,omitempty"`
	Enabled bool      `json:"enabled"`
}

// ActivePayload is the screen share / recording counterpart of TogglePayload.
type ActivePayload struct {
	UserID uuid.UUID `json:"user_id,omitempty"`
	Active bool      `json:"active"`
}

type UserPayload struct {
	User User `json:"user"`
}

type RoomPayload struct {
	Room RoomInfo `json:"room"`
}

type RoomIDPayload struct {
	RoomID uuid.UUID `json:"room_id"`
}

type RosterPayload struct {
	Revision     uint64            `json:"revision"`
	Participants []ParticipantInfo `json:"participants"`
}

type SettingsPayload struct {
	Settings RoomSettings `json:"settings"`
}

type MessagePayload struct {
	Message ChatMessage `json:"message"`
}

type HistoryPayload struct {
	Messages []ChatMessage `json:"messages"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// NewErrorEnvelope builds the error event for a failed request. Unmapped
// errors are reported as internal without their text.
func NewErrorEnvelope(err error) Envelope {
	code := ErrorCode(err)
	message := err.Error()
	if code == CodeInternal {
		message = "internal error"
	}

	env, _ := NewEnvelope(EventError, ErrorPayload{
		Code:    code,
		Message: message,
	})
	return env
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageSystem MessageKind = "system"
	MessageFile   MessageKind = "file"
)

// ChatMessage is one entry in a room's ordered log. Seq is relay-assigned
// and per-room monotonic: (Timestamp, Seq) is the total order, with Seq
// authoritative when timestamps collide.
type ChatMessage struct {
	ID         uuid.UUID   `json:"id"`
	RoomID     uuid.UUID   `json:"room_id"`
	AuthorID   uuid.UUID   `json:"author_id,omitempty"`
	AuthorName string      `json:"author_name,omitempty"`
	Body       string      `json:"body"`
	Kind       MessageKind `json:"kind"`
	Seq        uint64      `json:"seq"`
	Timestamp  time.Time   `json:"timestamp"`
}

func NewChatMessage(roomID uuid.UUID, author *Participant, body string, kind MessageKind) *ChatMessage {
	if kind == "" {
		kind = MessageText
	}
	msg := &ChatMessage{
		ID:        uuid.New(),
		RoomID:    roomID,
		Body:      body,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
	if author != nil {
		msg.AuthorID = author.UserID
		msg.AuthorName = author.DisplayName
	}
	return msg
}

// NewSystemMessage records join/leave and similar room events in the log.
func NewSystemMessage(roomID uuid.UUID, body string) *ChatMessage {
	return &ChatMessage{
		ID:        uuid.New(),
		RoomID:    roomID,
		Body:      body,
		Kind:      MessageSystem,
		Timestamp: time.Now().UTC(),
	}
}

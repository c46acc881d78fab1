package service

import (
	"sync"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/domain"
)

// maxLogMessages bounds the in-memory history per room; the oldest entries
// slide out first. Clients tolerate partial history on replay.
const maxLogMessages = 1000

// ChatLog keeps the per-room ordered message history for the lifetime of
// the room. Seq is assigned here and is the authority for message order.
type ChatLog struct {
	mu   sync.RWMutex
	logs map[uuid.UUID]*roomLog
}

type roomLog struct {
	seq      uint64
	messages []domain.ChatMessage
}

func NewChatLog() *ChatLog {
	return &ChatLog{logs: make(map[uuid.UUID]*roomLog)}
}

// Append assigns the next sequence number and stores the message.
func (l *ChatLog) Append(msg *domain.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	log, ok := l.logs[msg.RoomID]
	if !ok {
		log = &roomLog{}
		l.logs[msg.RoomID] = log
	}

	log.seq++
	msg.Seq = log.seq
	log.messages = append(log.messages, *msg)

	if len(log.messages) > maxLogMessages {
		log.messages = log.messages[len(log.messages)-maxLogMessages:]
	}
}

// History returns a copy of the room's log in send order.
func (l *ChatLog) History(roomID uuid.UUID) []domain.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	log, ok := l.logs[roomID]
	if !ok {
		return nil
	}

	out := make([]domain.ChatMessage, len(log.messages))
	copy(out, log.messages)
	return out
}

// Drop discards the log when its room is destroyed.
func (l *ChatLog) Drop(roomID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.logs, roomID)
}

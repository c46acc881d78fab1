package client

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/domain"
)

// ChatView is the locally observed message log. The relay-assigned Seq is
// the authoritative order, so every member converges on the same sequence
// no matter how delivery interleaves.
type ChatView struct {
	mu       sync.RWMutex
	messages []domain.ChatMessage
	seen     map[uuid.UUID]struct{}
}

func NewChatView() *ChatView {
	return &ChatView{
		seen: make(map[uuid.UUID]struct{}),
	}
}

// Apply inserts one message in total order. Duplicates are dropped, which
// makes resumed sessions safe to replay history into.
func (v *ChatView) Apply(msg domain.ChatMessage) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.seen[msg.ID]; ok {
		return false
	}
	v.seen[msg.ID] = struct{}{}

	i := sort.Search(len(v.messages), func(i int) bool {
		return v.messages[i].Seq > msg.Seq
	})
	v.messages = append(v.messages, domain.ChatMessage{})
	copy(v.messages[i+1:], v.messages[i:])
	v.messages[i] = msg
	return true
}

// ApplyHistory merges a history snapshot and reports how many messages were
// new.
func (v *ChatView) ApplyHistory(msgs []domain.ChatMessage) int {
	added := 0
	for _, msg := range msgs {
		if v.Apply(msg) {
			added++
		}
	}
	return added
}

// Messages returns the ordered log.
func (v *ChatView) Messages() []domain.ChatMessage {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]domain.ChatMessage, len(v.messages))
	copy(out, v.messages)
	return out
}

func (v *ChatView) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.messages)
}

// Reset drops the log, for leaving one room and joining another.
func (v *ChatView) Reset() {
	v.mu.Lock()
	v.messages = nil
	v.seen = make(map[uuid.UUID]struct{})
	v.mu.Unlock()
}

// MessageGroup is a read-time grouping of consecutive messages from one
// author. Grouping never changes the stored order.
type MessageGroup struct {
	AuthorID   uuid.UUID
	AuthorName string
	Messages   []domain.ChatMessage
}

// GroupMessages collapses consecutive messages by the same author within
// the window. System messages always stand alone.
func GroupMessages(msgs []domain.ChatMessage, window time.Duration) []MessageGroup {
	var groups []MessageGroup

	for _, msg := range msgs {
		if len(groups) > 0 && msg.Kind != domain.MessageSystem {
			last := &groups[len(groups)-1]
			n := len(last.Messages)
			if n > 0 &&
				last.AuthorID == msg.AuthorID &&
				last.Messages[n-1].Kind != domain.MessageSystem &&
				msg.Timestamp.Sub(last.Messages[n-1].Timestamp) <= window {
				last.Messages = append(last.Messages, msg)
				continue
			}
		}
		groups = append(groups, MessageGroup{
			AuthorID:   msg.AuthorID,
			AuthorName: msg.AuthorName,
			Messages:   []domain.ChatMessage{msg},
		})
	}

	return groups
}

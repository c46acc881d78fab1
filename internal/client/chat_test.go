package client

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/stretchr/testify/require"
)

func chatMsg(author uuid.UUID, seq uint64, body string, at time.Time) domain.ChatMessage {
	return domain.ChatMessage{
		ID:         uuid.New(),
		RoomID:     uuid.New(),
		AuthorID:   author,
		AuthorName: "author",
		Body:       body,
		Kind:       domain.MessageText,
		Seq:        seq,
		Timestamp:  at,
	}
}

func TestChatViewOrdersBySeq(t *testing.T) {
	view := NewChatView()
	author := uuid.New()
	now := time.Now()

	// Delivery interleaving must not matter; Seq is the authority.
	require.True(t, view.Apply(chatMsg(author, 3, "third", now)))
	require.True(t, view.Apply(chatMsg(author, 1, "first", now)))
	require.True(t, view.Apply(chatMsg(author, 2, "second", now)))

	msgs := view.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, "first", msgs[0].Body)
	require.Equal(t, "second", msgs[1].Body)
	require.Equal(t, "third", msgs[2].Body)
}

func TestChatViewDropsDuplicates(t *testing.T) {
	view := NewChatView()
	msg := chatMsg(uuid.New(), 1, "hello", time.Now())

	require.True(t, view.Apply(msg))
	require.False(t, view.Apply(msg))
	require.Equal(t, 1, view.Len())
}

func TestChatViewHistoryMerge(t *testing.T) {
	view := NewChatView()
	author := uuid.New()
	now := time.Now()

	live := chatMsg(author, 4, "live", now)
	require.True(t, view.Apply(live))

	history := []domain.ChatMessage{
		chatMsg(author, 1, "one", now.Add(-3*time.Minute)),
		chatMsg(author, 2, "two", now.Add(-2*time.Minute)),
		live,
	}
	require.Equal(t, 2, view.ApplyHistory(history))

	msgs := view.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, []string{"one", "two", "live"}, []string{msgs[0].Body, msgs[1].Body, msgs[2].Body})
}

func TestChatViewReset(t *testing.T) {
	view := NewChatView()
	require.True(t, view.Apply(chatMsg(uuid.New(), 1, "hello", time.Now())))

	view.Reset()
	require.Equal(t, 0, view.Len())
}

func TestGroupMessages(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	base := time.Now()

	msgs := []domain.ChatMessage{
		chatMsg(alice, 1, "hi", base),
		chatMsg(alice, 2, "how are you", base.Add(10*time.Second)),
		chatMsg(bob, 3, "fine", base.Add(20*time.Second)),
		chatMsg(alice, 4, "good", base.Add(30*time.Second)),
		// Same author but outside the window: starts a new group.
		chatMsg(alice, 5, "still here", base.Add(10*time.Minute)),
	}

	groups := GroupMessages(msgs, time.Minute)
	require.Len(t, groups, 4)
	require.Len(t, groups[0].Messages, 2)
	require.Equal(t, alice, groups[0].AuthorID)
	require.Equal(t, bob, groups[1].AuthorID)
	require.Len(t, groups[3].Messages, 1)
}

func TestGroupMessagesSystemStandsAlone(t *testing.T) {
	alice := uuid.New()
	base := time.Now()

	system := domain.ChatMessage{
		ID:        uuid.New(),
		Body:      "bob joined",
		Kind:      domain.MessageSystem,
		Seq:       2,
		Timestamp: base.Add(time.Second),
	}
	msgs := []domain.ChatMessage{
		chatMsg(alice, 1, "hi", base),
		system,
		chatMsg(alice, 3, "welcome", base.Add(2*time.Second)),
	}

	groups := GroupMessages(msgs, time.Minute)
	require.Len(t, groups, 3)
	require.Equal(t, domain.MessageSystem, groups[1].Messages[0].Kind)
}

func TestGroupMessagesDoesNotMutateInput(t *testing.T) {
	alice := uuid.New()
	base := time.Now()
	msgs := []domain.ChatMessage{
		chatMsg(alice, 1, "a", base),
		chatMsg(alice, 2, "b", base.Add(time.Second)),
	}
	before := make([]domain.ChatMessage, len(msgs))
	copy(before, msgs)

	_ = GroupMessages(msgs, time.Minute)
	require.Equal(t, before, msgs)
}

package service

import (
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestChatLogSeqPerRoom(t *testing.T) {
	log := NewChatLog()
	roomA := uuid.New()
	roomB := uuid.New()

	first := domain.NewSystemMessage(roomA, "one")
	log.Append(first)
	second := domain.NewSystemMessage(roomA, "two")
	log.Append(second)
	other := domain.NewSystemMessage(roomB, "elsewhere")
	log.Append(other)

	require.Equal(t, uint64(1), first.Seq)
	require.Equal(t, uint64(2), second.Seq)

	// Rooms do not share a counter.
	require.Equal(t, uint64(1), other.Seq)
}

func TestChatLogHistoryIsACopy(t *testing.T) {
	log := NewChatLog()
	roomID := uuid.New()
	log.Append(domain.NewSystemMessage(roomID, "hello"))

	history := log.History(roomID)
	require.Len(t, history, 1)
	history[0].Body = "mutated"

	require.Equal(t, "hello", log.History(roomID)[0].Body)
	require.Nil(t, log.History(uuid.New()))
}

func TestChatLogTrimsOldest(t *testing.T) {
	log := NewChatLog()
	roomID := uuid.New()

	for i := 0; i < maxLogMessages+10; i++ {
		log.Append(domain.NewSystemMessage(roomID, strconv.Itoa(i)))
	}

	history := log.History(roomID)
	require.Len(t, history, maxLogMessages)

	// The oldest entries slid out; seq still reflects the full stream.
	require.Equal(t, uint64(11), history[0].Seq)
	require.Equal(t, uint64(maxLogMessages+10), history[len(history)-1].Seq)
}

func TestChatLogDrop(t *testing.T) {
	log := NewChatLog()
	roomID := uuid.New()
	log.Append(domain.NewSystemMessage(roomID, "hello"))

	log.Drop(roomID)
	require.Nil(t, log.History(roomID))

	// Seq restarts with the next room of the same id.
	msg := domain.NewSystemMessage(roomID, "again")
	log.Append(msg)
	require.Equal(t, uint64(1), msg.Seq)
}

package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testParticipant(name string) *Participant {
	return NewParticipant(NewGuestUser(name), RoleParticipant, make(chan Envelope, 4))
}

func TestRoomMembershipKeepsJoinOrder(t *testing.T) {
	room := NewRoom("standup", "", uuid.New(), 4, DefaultRoomSettings(), 0)

	alice := testParticipant("alice")
	bob := testParticipant("bob")
	carol := testParticipant("carol")
	room.AddMember(alice)
	room.AddMember(bob)
	room.AddMember(carol)

	require.Equal(t, 1, room.MemberIndex(bob.UserID))
	require.Equal(t, alice, room.OldestMember())

	removed := room.RemoveMember(bob.UserID)
	require.Equal(t, bob, removed)
	require.Equal(t, []*Participant{alice, carol}, room.Members)

	// Indexes shift down but relative order is stable.
	require.Equal(t, 1, room.MemberIndex(carol.UserID))
	require.Nil(t, room.RemoveMember(bob.UserID))
	require.Nil(t, room.Member(bob.UserID))
}

func TestRoomIsFull(t *testing.T) {
	room := NewRoom("standup", "", uuid.New(), 2, DefaultRoomSettings(), 0)
	require.False(t, room.IsFull())

	room.AddMember(testParticipant("alice"))
	require.False(t, room.IsFull())
	room.AddMember(testParticipant("bob"))
	require.True(t, room.IsFull())
}

func TestRoomExpiry(t *testing.T) {
	forever := NewRoom("standup", "", uuid.New(), 2, DefaultRoomSettings(), 0)
	require.True(t, forever.ExpiresAt.IsZero())
	require.False(t, forever.IsExpired())

	brief := NewRoom("standup", "", uuid.New(), 2, DefaultRoomSettings(), time.Nanosecond)
	time.Sleep(time.Millisecond)
	require.True(t, brief.IsExpired())

	var missing *Room
	require.True(t, missing.IsExpired())
}

func TestRoomLinksAreUnique(t *testing.T) {
	a := NewRoom("a", "", uuid.New(), 2, DefaultRoomSettings(), 0)
	b := NewRoom("b", "", uuid.New(), 2, DefaultRoomSettings(), 0)
	require.NotEmpty(t, a.Link)
	require.NotEqual(t, a.Link, b.Link)
}

func TestRoomInfoSnapshot(t *testing.T) {
	host := NewGuestUser("alice")
	room := NewRoom("standup", "daily", host.ID, 4, DefaultRoomSettings(), 0)
	room.AddMember(NewParticipant(host, RoleHost, make(chan Envelope, 4)))
	room.Revision = 3

	info := room.Info()
	require.Equal(t, room.ID, info.ID)
	require.Equal(t, host.ID, info.HostID)
	require.Equal(t, uint64(3), info.Revision)
	require.Len(t, info.Participants, 1)
	require.Equal(t, RoleHost, info.Participants[0].Role)

	// The snapshot is detached from the live room.
	room.AddMember(testParticipant("bob"))
	require.Len(t, info.Participants, 1)
}

func TestParticipantMediaFlags(t *testing.T) {
	p := testParticipant("alice")
	require.True(t, p.Info().VideoEnabled)
	require.True(t, p.Info().AudioEnabled)
	require.False(t, p.Info().ScreenSharing)

	p.SetMediaFlag(MediaVideo, false)
	p.SetMediaFlag(MediaScreenShare, true)
	info := p.Info()
	require.False(t, info.VideoEnabled)
	require.True(t, info.ScreenSharing)
}

func TestParticipantEnqueueDropsWhenFull(t *testing.T) {
	p := NewParticipant(NewGuestUser("alice"), RoleParticipant, make(chan Envelope, 1))

	require.True(t, p.EnqueueEvent(Envelope{Event: EventNewMessage}))
	require.False(t, p.EnqueueEvent(Envelope{Event: EventNewMessage}))

	// A rebind swaps in a fresh queue.
	p.Rebind(make(chan Envelope, 1))
	require.True(t, p.EnqueueEvent(Envelope{Event: EventNewMessage}))
}

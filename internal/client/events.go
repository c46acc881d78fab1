package client

import (
	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Event is delivered on Engine.Events(). UI layers type-switch on the
// concrete types below.
type Event interface {
	isEvent()
}

// RosterEvent carries a relay-confirmed roster revision.
type RosterEvent struct {
	Revision     uint64
	Participants []domain.ParticipantInfo
}

// ChatEvent carries one newly observed message in total order.
type ChatEvent struct {
	Message domain.ChatMessage
}

// SettingsEvent reports a host settings change.
type SettingsEvent struct {
	Settings domain.RoomSettings
}

// MediaFlagEvent reports a participant media toggle.
type MediaFlagEvent struct {
	UserID uuid.UUID
	Kind   domain.MediaKind
	Active bool
}

// LinkEvent reports a peer link state transition.
type LinkEvent struct {
	Remote uuid.UUID
	State  LinkState
}

// RemoteTrackEvent delivers an inbound media track from a peer.
type RemoteTrackEvent struct {
	Remote uuid.UUID
	Track  *webrtc.TrackRemote
}

// ChannelEvent reports the signaling channel state.
type ChannelEvent struct {
	State ChannelState
}

// RoomClosedEvent reports eviction from the room, host close or expiry.
type RoomClosedEvent struct {
	RoomID uuid.UUID
}

// JoinRequestEvent asks the host to approve a waiting participant.
type JoinRequestEvent struct {
	User domain.User
}

// ErrorEvent surfaces an asynchronous relay error that no call is waiting on.
type ErrorEvent struct {
	Err error
}

func (RosterEvent) isEvent()      {}
func (ChatEvent) isEvent()        {}
func (SettingsEvent) isEvent()    {}
func (MediaFlagEvent) isEvent()   {}
func (LinkEvent) isEvent()        {}
func (RemoteTrackEvent) isEvent() {}
func (ChannelEvent) isEvent()     {}
func (RoomClosedEvent) isEvent()  {}
func (JoinRequestEvent) isEvent() {}
func (ErrorEvent) isEvent()       {}

package client

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/domain"
)

const (
	defaultJoinTimeout         = 10 * time.Second
	defaultReconnectGrace      = 15 * time.Second
	defaultLinkConnectTimeout  = 20 * time.Second
	defaultLinkDisconnectGrace = 10 * time.Second
	defaultApprovalTimeout     = 45 * time.Second
	defaultEventBuffer         = 64
)

// Identity is presented to the relay on connect. A zero UserID asks the
// relay to mint one.
type Identity struct {
	UserID uuid.UUID
	Name   string
	Email  string
}

// RoomConfig describes the room a CreateRoom call asks for. A zero
// Lifetime leaves expiry to the relay default.
type RoomConfig struct {
	Name        string
	Description string
	Capacity    int
	Settings    domain.RoomSettings
	Lifetime    time.Duration
}

// Options configures an Engine.
type Options struct {
	// ServerURL is the relay signaling endpoint, e.g. ws://host:8080/ws.
	ServerURL string
	Identity  Identity

	// MediaDevice supplies the camera/microphone stream. Nil runs the
	// engine without outgoing media (chat and mesh signaling still work).
	MediaDevice MediaDevice
	// DisplayDevice supplies the screen capture stream for sharing. Nil
	// makes StartScreenShare fail with ErrNoDisplayDevice.
	DisplayDevice DisplayDevice

	// ICEServers holds STUN/TURN URLs for the peer mesh.
	ICEServers []string

	// JoinTimeout bounds create_room/join_room waiting for the relay
	// reply; a pending host approval switches the wait to ApprovalTimeout.
	JoinTimeout     time.Duration
	ApprovalTimeout time.Duration

	// ReconnectGrace bounds redialing after the signaling socket drops.
	// Peer links keep running while the engine redials; past the grace
	// the room is abandoned and an explicit rejoin is required.
	ReconnectGrace time.Duration

	LinkConnectTimeout  time.Duration
	LinkDisconnectGrace time.Duration

	// EventBuffer sizes the Events() channel. A slow consumer loses
	// events past this depth.
	EventBuffer int

	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = defaultJoinTimeout
	}
	if o.ApprovalTimeout <= 0 {
		o.ApprovalTimeout = defaultApprovalTimeout
	}
	if o.ReconnectGrace <= 0 {
		o.ReconnectGrace = defaultReconnectGrace
	}
	if o.LinkConnectTimeout <= 0 {
		o.LinkConnectTimeout = defaultLinkConnectTimeout
	}
	if o.LinkDisconnectGrace <= 0 {
		o.LinkDisconnectGrace = defaultLinkDisconnectGrace
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = defaultEventBuffer
	}
	if len(o.ICEServers) == 0 {
		o.ICEServers = []string{"stun:stun.l.google.com:19302"}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

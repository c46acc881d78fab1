package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
	RoleViewer      Role = "viewer"
)

type ParticipantStatus string

const (
	ParticipantStatusConnected    ParticipantStatus = "connected"
	ParticipantStatusDisconnected ParticipantStatus = "disconnected"
)

// MediaKind names the media state a toggle operates on.
type MediaKind string

const (
	MediaVideo       MediaKind = "video"
	MediaAudio       MediaKind = "audio"
	MediaScreenShare MediaKind = "screen_share"
	MediaRecording   MediaKind = "recording"
)

const eventBufferSize = 16

// Participant is the live in-room projection of a user. Events is the
// outbound queue of the connection currently serving the user; a reconnect
// within the grace window rebinds it without losing the roster slot.
type Participant struct {
	UserID        uuid.UUID
	DisplayName   string
	Email         string
	Role          Role
	Status        ParticipantStatus
	JoinedAt      time.Time
	LastSeen      time.Time
	VideoEnabled  bool
	AudioEnabled  bool
	ScreenSharing bool
	Mutex         sync.RWMutex
	Events        chan Envelope
}

func NewParticipant(user *User, role Role, events chan Envelope) *Participant {
	if events == nil {
		events = make(chan Envelope, eventBufferSize)
	}
	now := time.Now().UTC()
	return &Participant{
		UserID:       user.ID,
		DisplayName:  user.Name,
		Email:        user.Email,
		Role:         role,
		Status:       ParticipantStatusConnected,
		JoinedAt:     now,
		LastSeen:     now,
		VideoEnabled: true,
		AudioEnabled: true,
		Events:       events,
	}
}

func (p *Participant) Touch() {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	p.LastSeen = time.Now().UTC()
}

func (p *Participant) SetStatus(status ParticipantStatus) {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	p.Status = status
	p.LastSeen = time.Now().UTC()
}

func (p *Participant) SetRole(role Role) {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	p.Role = role
}

func (p *Participant) SetMediaFlag(kind MediaKind, active bool) {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	switch kind {
	case MediaVideo:
		p.VideoEnabled = active
	case MediaAudio:
		p.AudioEnabled = active
	case MediaScreenShare:
		p.ScreenSharing = active
	}
}

// Rebind points the participant at a new outbound queue after a reconnect.
func (p *Participant) Rebind(events chan Envelope) {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	p.Events = events
}

// EnqueueEvent never blocks; a full queue drops the event. Clients recover
// from drops through roster revisions and history replay.
func (p *Participant) EnqueueEvent(event Envelope) bool {
	p.Mutex.RLock()
	events := p.Events
	p.Mutex.RUnlock()

	select {
	case events <- event:
		return true
	default:
		return false
	}
}

type ParticipantInfo struct {
	UserID        uuid.UUID         `json:"user_id"`
	DisplayName   string            `json:"display_name"`
	Role          Role              `json:"role"`
	Status        ParticipantStatus `json:"status"`
	JoinedAt      time.Time         `json:"joined_at"`
	LastSeen      time.Time         `json:"last_seen"`
	VideoEnabled  bool              `json:"video_enabled"`
	AudioEnabled  bool              `json:"audio_enabled"`
	ScreenSharing bool              `json:"screen_sharing"`
}

// Info snapshots the participant for roster payloads.
func (p *Participant) Info() ParticipantInfo {
	p.Mutex.RLock()
	defer p.Mutex.RUnlock()
	return ParticipantInfo{
		UserID:        p.UserID,
		DisplayName:   p.DisplayName,
		Role:          p.Role,
		Status:        p.Status,
		JoinedAt:      p.JoinedAt,
		LastSeen:      p.LastSeen,
		VideoEnabled:  p.VideoEnabled,
		AudioEnabled:  p.AudioEnabled,
		ScreenSharing: p.ScreenSharing,
	}
}

package domain

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const linkLength = 12

// RoomSettings govern what members may do inside the room. Only the host
// may change them; the relay enforces them on every request.
type RoomSettings struct {
	AllowScreenShare bool `json:"allow_screen_share"`
	AllowChat        bool `json:"allow_chat"`
	RequireApproval  bool `json:"require_approval"`
	Locked           bool `json:"locked"`
}

func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		AllowScreenShare: true,
		AllowChat:        true,
	}
}

// Room owns membership and media-advisory state for one meeting.
//
// Members keeps join order. The roster index decides which side of a peer
// pair initiates negotiation, so the order must be stable and identical on
// every client. Revision increases on every membership or status mutation;
// clients ignore roster payloads whose revision they have already applied.
type Room struct {
	Mutex           sync.RWMutex
	ID              uuid.UUID
	Name            string
	Description     string
	HostID          uuid.UUID
	Link            string
	Members         []*Participant
	Capacity        int
	Settings        RoomSettings
	RecordingActive bool
	Revision        uint64
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// NewRoom constructs a room with generated identifiers and lifetime options.
func NewRoom(name, description string, host uuid.UUID, capacity int, settings RoomSettings, lifetime time.Duration) *Room {
	now := time.Now().UTC()
	room := &Room{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		HostID:      host,
		Link:        generateLink(),
		Capacity:    capacity,
		Settings:    settings,
		CreatedAt:   now,
	}

	if lifetime > 0 {
		room.ExpiresAt = now.Add(lifetime)
	}

	return room
}

// IsExpired reports whether the room is no longer valid.
func (r *Room) IsExpired() bool {
	if r == nil {
		return true
	}
	if r.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().After(r.ExpiresAt)
}

// Member returns the participant for userID. Caller must hold the room lock.
func (r *Room) Member(userID uuid.UUID) *Participant {
	for _, p := range r.Members {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// MemberIndex returns the roster index for userID, -1 when absent.
// Caller must hold the room lock.
func (r *Room) MemberIndex(userID uuid.UUID) int {
	for i, p := range r.Members {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

// AddMember appends to the roster. Caller must hold the room lock.
func (r *Room) AddMember(p *Participant) {
	r.Members = append(r.Members, p)
}

// RemoveMember drops userID from the roster preserving join order of the
// rest. Caller must hold the room lock.
func (r *Room) RemoveMember(userID uuid.UUID) *Participant {
	for i, p := range r.Members {
		if p.UserID == userID {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return p
		}
	}
	return nil
}

// IsFull reports whether the roster reached capacity.
// Caller must hold the room lock.
func (r *Room) IsFull() bool {
	return r.Capacity > 0 && len(r.Members) >= r.Capacity
}

// OldestMember is the host-reassignment candidate: the earliest joiner.
// Caller must hold the room lock.
func (r *Room) OldestMember() *Participant {
	if len(r.Members) == 0 {
		return nil
	}
	return r.Members[0]
}

// Roster snapshots the members in join order. Caller must hold the room lock.
func (r *Room) Roster() []ParticipantInfo {
	roster := make([]ParticipantInfo, 0, len(r.Members))
	for _, p := range r.Members {
		roster = append(roster, p.Info())
	}
	return roster
}

type RoomInfo struct {
	ID              uuid.UUID         `json:"id"`
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	HostID          uuid.UUID         `json:"host_id"`
	Link            string            `json:"link"`
	Capacity        int               `json:"capacity"`
	Settings        RoomSettings      `json:"settings"`
	RecordingActive bool              `json:"recording_active"`
	Revision        uint64            `json:"revision"`
	Participants    []ParticipantInfo `json:"participants"`
	CreatedAt       time.Time         `json:"created_at"`
	ExpiresAt       time.Time         `json:"expires_at"`
}

// Info snapshots the room for wire payloads. Must not be called with the
// room lock held.
func (r *Room) Info() RoomInfo {
	r.Mutex.RLock()
	defer r.Mutex.RUnlock()

	return RoomInfo{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		HostID:          r.HostID,
		Link:            r.Link,
		Capacity:        r.Capacity,
		Settings:        r.Settings,
		RecordingActive: r.RecordingActive,
		Revision:        r.Revision,
		Participants:    r.Roster(),
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func generateLink() string {
	link := strings.ReplaceAll(uuid.New().String(), "-", "")
	if len(link) <= linkLength {
		return link
	}
	return link[:linkLength]
}

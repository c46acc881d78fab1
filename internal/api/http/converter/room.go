package converter

import (
	"time"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/domain"
)

type RoomResponse struct {
	ID              uuid.UUID             `json:"id"`
	Name            string                `json:"name"`
	Description     string                `json:"description,omitempty"`
	HostID          uuid.UUID             `json:"host_id"`
	Link            string                `json:"link"`
	Capacity        int                   `json:"capacity"`
	Settings        domain.RoomSettings   `json:"settings"`
	RecordingActive bool                  `json:"recording_active"`
	Revision        uint64                `json:"revision"`
	Participants    []ParticipantResponse `json:"participants"`
	CreatedAt       time.Time             `json:"created_at"`
	ExpiresAt       time.Time             `json:"expires_at"`
	IsExpired       bool                  `json:"is_expired"`
}

type ParticipantResponse struct {
	UserID        uuid.UUID                `json:"user_id"`
	DisplayName   string                   `json:"display_name"`
	Role          domain.Role              `json:"role"`
	Status        domain.ParticipantStatus `json:"status"`
	VideoEnabled  bool                     `json:"video_enabled"`
	AudioEnabled  bool                     `json:"audio_enabled"`
	ScreenSharing bool                     `json:"screen_sharing"`
	JoinedAt      time.Time                `json:"joined_at"`
}

func RoomToApi(r *domain.Room) *RoomResponse {
	info := r.Info()

	participants := make([]ParticipantResponse, 0, len(info.Participants))
	for _, p := range info.Participants {
		participants = append(participants, ParticipantResponse{
			UserID:        p.UserID,
			DisplayName:   p.DisplayName,
			Role:          p.Role,
			Status:        p.Status,
			VideoEnabled:  p.VideoEnabled,
			AudioEnabled:  p.AudioEnabled,
			ScreenSharing: p.ScreenSharing,
			JoinedAt:      p.JoinedAt,
		})
	}

	return &RoomResponse{
		ID:              info.ID,
		Name:            info.Name,
		Description:     info.Description,
		HostID:          info.HostID,
		Link:            info.Link,
		Capacity:        info.Capacity,
		Settings:        info.Settings,
		RecordingActive: info.RecordingActive,
		Revision:        info.Revision,
		Participants:    participants,
		CreatedAt:       info.CreatedAt,
		ExpiresAt:       info.ExpiresAt,
		IsExpired:       r.IsExpired(),
	}
}

package model

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey"`
	Name            string        `gorm:"size:255;not null"`
	Description     string        `gorm:"size:1024"`
	HostID          uuid.UUID     `gorm:"type:uuid;not null"`
	Link            string        `gorm:"size:64;uniqueIndex;not null"`
	Capacity        int           `gorm:"not null"`
	Settings        RoomSettings  `gorm:"embedded;embeddedPrefix:settings_"`
	RecordingActive bool          `gorm:"not null;default:false"`
	CreatedAt       time.Time     `gorm:"not null"`
	ExpiresAt       *time.Time    `gorm:"index"`
	Participants    []Participant `gorm:"constraint:OnDelete:CASCADE"`
}

type RoomSettings struct {
	AllowScreenShare bool `gorm:"not null;default:true"`
	AllowChat        bool `gorm:"not null;default:true"`
	RequireApproval  bool `gorm:"not null;default:false"`
	Locked           bool `gorm:"not null;default:false"`
}

type Participant struct {
	RoomID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	DisplayName   string    `gorm:"size:255;not null"`
	Email         string    `gorm:"size:255"`
	Role          string    `gorm:"size:32;not null"`
	Status        string    `gorm:"size:32;not null"`
	Position      int       `gorm:"not null"`
	VideoEnabled  bool      `gorm:"not null;default:true"`
	AudioEnabled  bool      `gorm:"not null;default:true"`
	ScreenSharing bool      `gorm:"not null;default:false"`
	JoinedAt      time.Time `gorm:"not null"`
	LastSeen      time.Time `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"size:255;not null"`
	Email     *string   `gorm:"size:255;uniqueIndex:idx_users_email,where:email IS NOT NULL"`
	IsGuest   bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

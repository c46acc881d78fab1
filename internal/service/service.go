package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/domain"
)

type CreateRoomParams struct {
	Name        string
	Description string
	Capacity    int
	Settings    domain.RoomSettings
	Lifetime    time.Duration
}

type RoomInteractor interface {
	CreateRoom(ctx context.Context, host *domain.User, events chan domain.Envelope, params CreateRoomParams) (*domain.Room, error)
	JoinRoom(ctx context.Context, roomID uuid.UUID, user *domain.User, events chan domain.Envelope) (*domain.Room, error)
	LeaveRoom(ctx context.Context, userID uuid.UUID) error
	CloseRoom(ctx context.Context, userID uuid.UUID) error
	UpdateSettings(ctx context.Context, userID uuid.UUID, settings domain.RoomSettings) error
	ApproveJoin(ctx context.Context, hostID, userID uuid.UUID, approve bool) error
	ForwardSignal(ctx context.Context, senderID uuid.UUID, event string, signal domain.SignalPayload) error
	ToggleMedia(ctx context.Context, userID uuid.UUID, kind domain.MediaKind, active bool) error
	SendChat(ctx context.Context, userID uuid.UUID, body string, kind domain.MessageKind) (*domain.ChatMessage, error)
	History(ctx context.Context, userID uuid.UUID) ([]domain.ChatMessage, error)
	HandleDisconnect(userID uuid.UUID)
	GetRoom(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	GetRoomByLink(ctx context.Context, link string) (*domain.Room, error)
	ListRooms(ctx context.Context) ([]*domain.Room, error)
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]domain.ParticipantInfo, error)
}

type UserInteractor interface {
	RegisterUser(ctx context.Context, id uuid.UUID, name, email string) (*domain.User, error)
	CreateUser(ctx context.Context, name string, email string) (*domain.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
}

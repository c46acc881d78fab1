package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/huddlekit/huddle/internal/repository/model"
	"gorm.io/gorm"
)

type PostgresRoomRepository struct {
	db *gorm.DB
}

func NewPostgresRoomRepository(db *gorm.DB) *PostgresRoomRepository {
	return &PostgresRoomRepository{db: db}
}

func (r *PostgresRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	roomModel := toModelRoom(room)

	if err := r.db.WithContext(ctx).Create(roomModel).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrRoomLinkExists
		}
		return err
	}
	return nil
}

func (r *PostgresRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var room model.Room
	err := r.db.WithContext(ctx).Preload("Participants").First(&room, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}

	return toDomainRoom(&room), nil
}

func (r *PostgresRoomRepository) GetByLink(ctx context.Context, link string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var room model.Room
	err := r.db.WithContext(ctx).Preload("Participants").First(&room, "link = ?", link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}

	return toDomainRoom(&room), nil
}

func (r *PostgresRoomRepository) Update(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	roomModel := toModelRoom(room)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"name":                      roomModel.Name,
			"description":               roomModel.Description,
			"host_id":                   roomModel.HostID,
			"link":                      roomModel.Link,
			"capacity":                  roomModel.Capacity,
			"settings_allow_screen_share": roomModel.Settings.AllowScreenShare,
			"settings_allow_chat":       roomModel.Settings.AllowChat,
			"settings_require_approval": roomModel.Settings.RequireApproval,
			"settings_locked":           roomModel.Settings.Locked,
			"recording_active":          roomModel.RecordingActive,
		}

		if roomModel.ExpiresAt == nil {
			updates["expires_at"] = gorm.Expr("NULL")
		} else {
			updates["expires_at"] = roomModel.ExpiresAt
		}

		res := tx.Model(&model.Room{}).Where("id = ?", roomModel.ID).Updates(updates)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return domain.ErrRoomLinkExists
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrRoomNotFound
		}

		if err := tx.Where("room_id = ?", roomModel.ID).Delete(&model.Participant{}).Error; err != nil {
			return err
		}

		if len(roomModel.Participants) > 0 {
			if err := tx.Create(&roomModel.Participants).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *PostgresRoomRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Delete(&model.Room{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (r *PostgresRoomRepository) List(ctx context.Context) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rooms []model.Room
	if err := r.db.WithContext(ctx).Preload("Participants").Find(&rooms).Error; err != nil {
		return nil, err
	}

	result := make([]*domain.Room, 0, len(rooms))
	for i := range rooms {
		result = append(result, toDomainRoom(&rooms[i]))
	}

	return result, nil
}

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	userModel := toModelUser(user)

	if err := r.db.WithContext(ctx).Create(userModel).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrUserEmailExists
		}
		return err
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user model.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}

	return toDomainUser(&user), nil
}

func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	userModel := toModelUser(user)

	updateData := map[string]any{
		"name":       userModel.Name,
		"is_guest":   userModel.IsGuest,
		"updated_at": userModel.UpdatedAt,
	}

	if userModel.Email == nil {
		updateData["email"] = gorm.Expr("NULL")
	} else {
		updateData["email"] = userModel.Email
	}

	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userModel.ID).Updates(updateData)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return domain.ErrUserEmailExists
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

func toModelRoom(room *domain.Room) *model.Room {
	var expiresAt *time.Time
	if !room.ExpiresAt.IsZero() {
		t := room.ExpiresAt.UTC()
		expiresAt = &t
	}

	room.Mutex.RLock()
	participants := make([]model.Participant, 0, len(room.Members))
	for i, p := range room.Members {
		if p == nil {
			continue
		}
		info := p.Info()
		participants = append(participants, model.Participant{
			RoomID:        room.ID,
			UserID:        info.UserID,
			DisplayName:   info.DisplayName,
			Email:         p.Email,
			Role:          string(info.Role),
			Status:        string(info.Status),
			Position:      i,
			VideoEnabled:  info.VideoEnabled,
			AudioEnabled:  info.AudioEnabled,
			ScreenSharing: info.ScreenSharing,
			JoinedAt:      info.JoinedAt.UTC(),
			LastSeen:      info.LastSeen.UTC(),
		})
	}
	room.Mutex.RUnlock()

	return &model.Room{
		ID:          room.ID,
		Name:        room.Name,
		Description: room.Description,
		HostID:      room.HostID,
		Link:        room.Link,
		Capacity:    room.Capacity,
		Settings: model.RoomSettings{
			AllowScreenShare: room.Settings.AllowScreenShare,
			AllowChat:        room.Settings.AllowChat,
			RequireApproval:  room.Settings.RequireApproval,
			Locked:           room.Settings.Locked,
		},
		RecordingActive: room.RecordingActive,
		CreatedAt:       room.CreatedAt.UTC(),
		ExpiresAt:       expiresAt,
		Participants:    participants,
	}
}

func toDomainRoom(room *model.Room) *domain.Room {
	sort.Slice(room.Participants, func(i, j int) bool {
		return room.Participants[i].Position < room.Participants[j].Position
	})

	members := make([]*domain.Participant, 0, len(room.Participants))
	for i := range room.Participants {
		p := room.Participants[i]
		status := domain.ParticipantStatus(p.Status)
		if status == "" {
			status = domain.ParticipantStatusDisconnected
		}
		role := domain.Role(p.Role)
		if role == "" {
			role = domain.RoleParticipant
		}
		members = append(members, &domain.Participant{
			UserID:        p.UserID,
			DisplayName:   p.DisplayName,
			Email:         p.Email,
			Role:          role,
			Status:        status,
			JoinedAt:      p.JoinedAt.UTC(),
			LastSeen:      p.LastSeen.UTC(),
			VideoEnabled:  p.VideoEnabled,
			AudioEnabled:  p.AudioEnabled,
			ScreenSharing: p.ScreenSharing,
			Events:        make(chan domain.Envelope, 16),
		})
	}

	var expiresAt time.Time
	if room.ExpiresAt != nil {
		expiresAt = room.ExpiresAt.UTC()
	}

	return &domain.Room{
		ID:          room.ID,
		Name:        room.Name,
		Description: room.Description,
		HostID:      room.HostID,
		Link:        room.Link,
		Members:     members,
		Capacity:    room.Capacity,
		Settings: domain.RoomSettings{
			AllowScreenShare: room.Settings.AllowScreenShare,
			AllowChat:        room.Settings.AllowChat,
			RequireApproval:  room.Settings.RequireApproval,
			Locked:           room.Settings.Locked,
		},
		RecordingActive: room.RecordingActive,
		CreatedAt:       room.CreatedAt.UTC(),
		ExpiresAt:       expiresAt,
	}
}

func toModelUser(user *domain.User) *model.User {
	var email *string
	if user.Email != "" {
		e := user.Email
		email = &e
	}
	return &model.User{
		ID:        user.ID,
		Name:      user.Name,
		Email:     email,
		IsGuest:   user.IsGuest,
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	}
}

func toDomainUser(user *model.User) *domain.User {
	email := ""
	if user.Email != nil {
		email = *user.Email
	}

	return &domain.User{
		ID:        user.ID,
		Name:      user.Name,
		Email:     email,
		IsGuest:   user.IsGuest,
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	}
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/huddlekit/huddle/internal/repository"
	"github.com/huddlekit/huddle/lib/logger/sl"
)

type UserService struct {
	users repository.UserRepository
	log   *slog.Logger
}

func NewUserService(users repository.UserRepository, log *slog.Logger) *UserService {
	if log == nil {
		log = slog.Default()
	}
	return &UserService{users: users, log: log}
}

// RegisterUser resolves the identity behind a signaling connection. A nil id
// mints a fresh user; a known id reattaches to the stored profile so a
// reconnecting client keeps its identity.
func (s *UserService) RegisterUser(ctx context.Context, id uuid.UUID, name string, email string) (*domain.User, error) {
	const op = "service.user.register"
	log := s.log.With(slog.String("op", op))

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("name is required")
	}

	if id == uuid.Nil {
		var user *domain.User
		if email == "" {
			user = domain.NewGuestUser(name)
		} else {
			user = domain.NewUser(name, email)
		}
		if err := s.users.Create(ctx, user); err != nil {
			log.Error("failed to create user", sl.Err(err))
			return nil, err
		}
		log.Info("user registered", "user_id", user.ID.String(), "guest", user.IsGuest)
		return user, nil
	}

	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		user = &domain.User{
			ID:        id,
			Name:      name,
			Email:     email,
			IsGuest:   email == "",
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
		if err := s.users.Create(ctx, user); err != nil {
			log.Error("failed to create user", sl.Err(err))
			return nil, err
		}
		log.Info("user registered with provided id", "user_id", user.ID.String())
		return user, nil
	}
	if err != nil {
		return nil, err
	}

	user.Name = name
	if email != "" {
		user.Email = email
		user.IsGuest = false
	}
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		log.Error("failed to update user", sl.Err(err))
		return nil, err
	}

	log.Info("user reattached", "user_id", user.ID.String())
	return user, nil
}

func (s *UserService) CreateUser(ctx context.Context, name string, email string) (*domain.User, error) {
	const op = "service.user.create"
	log := s.log.With(slog.String("op", op))

	if strings.TrimSpace(name) == "" {
		log.Error("no name provided")
		return nil, errors.New("name is required")
	}
	user := domain.NewUser(name, email)
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) UpdateUser(ctx context.Context, user *domain.User) error {
	if user == nil {
		return errors.New("user is required")
	}
	user.UpdatedAt = time.Now().UTC()
	return s.users.Update(ctx, user)
}

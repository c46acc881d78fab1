package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/stretchr/testify/require"
)

func newRoom(t *testing.T) *domain.Room {
	t.Helper()
	return domain.NewRoom("standup", "", uuid.New(), 4, domain.DefaultRoomSettings(), 0)
}

func TestRoomRepositoryCRUD(t *testing.T) {
	repo := NewInMemoryRoomRepository()
	ctx := context.Background()
	room := newRoom(t)

	require.NoError(t, repo.Create(ctx, room))

	got, err := repo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, room.ID, got.ID)

	byLink, err := repo.GetByLink(ctx, room.Link)
	require.NoError(t, err)
	require.Equal(t, room.ID, byLink.ID)

	room.Name = "retro"
	require.NoError(t, repo.Update(ctx, room))
	got, err = repo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, "retro", got.Name)

	require.NoError(t, repo.Delete(ctx, room.ID))
	_, err = repo.GetByID(ctx, room.ID)
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = repo.GetByLink(ctx, room.Link)
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoomRepositoryDuplicateLink(t *testing.T) {
	repo := NewInMemoryRoomRepository()
	ctx := context.Background()

	room := newRoom(t)
	require.NoError(t, repo.Create(ctx, room))

	clash := newRoom(t)
	clash.Link = room.Link
	require.ErrorIs(t, repo.Create(ctx, clash), domain.ErrRoomLinkExists)
}

func TestRoomRepositoryUpdateMissing(t *testing.T) {
	repo := NewInMemoryRoomRepository()
	require.ErrorIs(t, repo.Update(context.Background(), newRoom(t)), domain.ErrRoomNotFound)
	require.ErrorIs(t, repo.Delete(context.Background(), uuid.New()), domain.ErrRoomNotFound)
}

func TestRoomRepositoryList(t *testing.T) {
	repo := NewInMemoryRoomRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newRoom(t)))
	require.NoError(t, repo.Create(ctx, newRoom(t)))

	rooms, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
}

func TestRoomRepositoryHonorsContext(t *testing.T) {
	repo := NewInMemoryRoomRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, repo.Create(ctx, newRoom(t)), context.Canceled)
	_, err := repo.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, context.Canceled)
}

func TestUserRepositoryCRUD(t *testing.T) {
	repo := NewInMemoryUserRepository()
	ctx := context.Background()

	user := domain.NewUser("alice", "alice@example.com")
	require.NoError(t, repo.Create(ctx, user))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Name)

	user.Name = "alicia"
	require.NoError(t, repo.Update(ctx, user))
	got, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "alicia", got.Name)

	_, err = repo.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUserRepositoryDuplicateEmail(t *testing.T) {
	repo := NewInMemoryUserRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, domain.NewUser("alice", "shared@example.com")))
	err := repo.Create(ctx, domain.NewUser("impostor", "shared@example.com"))
	require.ErrorIs(t, err, domain.ErrUserEmailExists)

	// Guests have no email and never clash.
	require.NoError(t, repo.Create(ctx, domain.NewGuestUser("guest one")))
	require.NoError(t, repo.Create(ctx, domain.NewGuestUser("guest two")))
}

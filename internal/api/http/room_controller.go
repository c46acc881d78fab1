package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/api/http/converter"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/huddlekit/huddle/internal/service"
)

// RoomController serves the read/bootstrap REST surface. Room membership
// moves through the signaling socket only.
type RoomController struct {
	rooms service.RoomInteractor
	users service.UserInteractor
}

func NewRoomController(rooms service.RoomInteractor, users service.UserInteractor) *RoomController {
	return &RoomController{rooms: rooms, users: users}
}

func (c *RoomController) CreateRoom(ctx *gin.Context) {
	type CreateRoomRequest struct {
		Name            string               `json:"name" binding:"required"`
		Description     string               `json:"description"`
		Owner           string               `json:"owner" binding:"required"`
		MaxParticipants int                  `json:"max_participants" binding:"required"`
		Settings        *domain.RoomSettings `json:"settings"`
		LifetimeMinutes int                  `json:"lifetime_minutes"`
	}
	var req CreateRoomRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	ownerID, err := uuid.Parse(req.Owner)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner uuid", "details": err.Error()})
		return
	}

	owner, err := c.users.GetUser(ctx.Request.Context(), ownerID)
	if err != nil {
		ctx.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	settings := domain.DefaultRoomSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}

	room, err := c.rooms.CreateRoom(ctx.Request.Context(), owner, nil, service.CreateRoomParams{
		Name:        req.Name,
		Description: req.Description,
		Capacity:    req.MaxParticipants,
		Settings:    settings,
		Lifetime:    time.Duration(req.LifetimeMinutes) * time.Minute,
	})
	if err != nil {
		ctx.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"room": converter.RoomToApi(room)})
}

func (c *RoomController) GetRoom(ctx *gin.Context) {
	roomID, err := uuid.Parse(ctx.Param("roomID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	room, err := c.rooms.GetRoom(ctx.Request.Context(), roomID)
	if err != nil {
		ctx.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(room)})
}

func (c *RoomController) GetRoomByLink(ctx *gin.Context) {
	room, err := c.rooms.GetRoomByLink(ctx.Request.Context(), ctx.Param("link"))
	if err != nil {
		ctx.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(room)})
}

func (c *RoomController) ListRooms(ctx *gin.Context) {
	rooms, err := c.rooms.ListRooms(ctx.Request.Context())
	if err != nil {
		ctx.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	out := make([]*converter.RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, converter.RoomToApi(room))
	}
	ctx.JSON(http.StatusOK, gin.H{"rooms": out})
}

func (c *RoomController) ListParticipants(ctx *gin.Context) {
	roomID, err := uuid.Parse(ctx.Param("roomID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	participants, err := c.rooms.ListParticipants(ctx.Request.Context(), roomID)
	if err != nil {
		ctx.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"participants": participants})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrTargetNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRoomExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrRoomLocked), errors.Is(err, domain.ErrRoomFull),
		errors.Is(err, domain.ErrAlreadyInRoom), errors.Is(err, domain.ErrUserEmailExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRoomConfig), errors.Is(err, domain.ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

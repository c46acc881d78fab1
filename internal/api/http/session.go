package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/huddlekit/huddle/internal/service"
	"github.com/huddlekit/huddle/lib/logger/sl"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 32
)

// SessionHandler upgrades signaling connections and runs one session per
// socket.
type SessionHandler struct {
	rooms    service.RoomInteractor
	users    service.UserInteractor
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewSessionHandler(rooms service.RoomInteractor, users service.UserInteractor, log *slog.Logger) *SessionHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SessionHandler{
		rooms: rooms,
		users: users,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *SessionHandler) Handle(ctx *gin.Context) {
	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		ctx.String(http.StatusInternalServerError, "failed to upgrade connection")
		return
	}

	sess := &session{
		conn:  conn,
		send:  make(chan domain.Envelope, sendQueueSize),
		rooms: h.rooms,
		users: h.users,
		log:   h.log,
		done:  make(chan struct{}),
	}

	go sess.writePump()
	sess.readLoop()
}

// session owns one signaling socket. The send channel is the participant's
// event queue for the lifetime of the connection: the room service enqueues
// into it and writePump is the only writer on the wire.
type session struct {
	conn  *websocket.Conn
	send  chan domain.Envelope
	rooms service.RoomInteractor
	users service.UserInteractor
	log   *slog.Logger
	user  *domain.User
	done  chan struct{}
}

func (s *session) readLoop() {
	defer func() {
		close(s.done)
		s.conn.Close()
		if s.user != nil {
			s.rooms.HandleDisconnect(s.user.ID)
		}
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env domain.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("socket closed", sl.Err(err))
			}
			return
		}
		s.dispatch(env)
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case env := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// dispatch handles one inbound envelope. Envelopes are processed in arrival
// order on the read loop, which is what keeps per-sender ordering intact all
// the way to the fan-out queues.
func (s *session) dispatch(env domain.Envelope) {
	ctx := context.Background()

	if env.Event == domain.EventJoinUser {
		s.handleJoinUser(ctx, env)
		return
	}
	if s.user == nil {
		s.reply(domain.NewErrorEnvelope(domain.ErrUnauthenticated))
		return
	}

	var err error
	switch env.Event {
	case domain.EventCreateRoom:
		err = s.handleCreateRoom(ctx, env)
	case domain.EventJoinRoom:
		err = s.handleJoinRoom(ctx, env)
	case domain.EventLeaveRoom:
		err = s.rooms.LeaveRoom(ctx, s.user.ID)
	case domain.EventCloseRoom:
		err = s.rooms.CloseRoom(ctx, s.user.ID)
	case domain.EventUpdateSettings:
		var p domain.SettingsPayload
		if err = decode(env, &p); err == nil {
			err = s.rooms.UpdateSettings(ctx, s.user.ID, p.Settings)
		}
	case domain.EventApproveJoin:
		var p domain.ApproveJoinPayload
		if err = decode(env, &p); err == nil {
			err = s.rooms.ApproveJoin(ctx, s.user.ID, p.UserID, p.Approve)
		}
	case domain.EventSendMessage:
		var p domain.SendMessagePayload
		if err = decode(env, &p); err == nil {
			_, err = s.rooms.SendChat(ctx, s.user.ID, p.Body, p.Kind)
		}
	case domain.EventChatHistory:
		err = s.handleChatHistory(ctx)
	case domain.EventWebRTCOffer, domain.EventWebRTCAnswer, domain.EventWebRTCICE:
		var p domain.SignalPayload
		if err = decode(env, &p); err == nil {
			err = s.rooms.ForwardSignal(ctx, s.user.ID, env.Event, p)
		}
	case domain.EventToggleVideo:
		var p domain.TogglePayload
		if err = decode(env, &p); err == nil {
			err = s.rooms.ToggleMedia(ctx, s.user.ID, domain.MediaVideo, p.Enabled)
		}
	case domain.EventToggleAudio:
		var p domain.TogglePayload
		if err = decode(env, &p); err == nil {
			err = s.rooms.ToggleMedia(ctx, s.user.ID, domain.MediaAudio, p.Enabled)
		}
	case domain.EventToggleScreenShare:
		var p domain.ActivePayload
		if err = decode(env, &p); err == nil {
			err = s.rooms.ToggleMedia(ctx, s.user.ID, domain.MediaScreenShare, p.Active)
		}
	case domain.EventToggleRecording:
		var p domain.ActivePayload
		if err = decode(env, &p); err == nil {
			err = s.rooms.ToggleMedia(ctx, s.user.ID, domain.MediaRecording, p.Active)
		}
	default:
		err = fmt.Errorf("%w: unknown event %q", domain.ErrInvalidMessage, env.Event)
	}

	if err != nil {
		if errors.Is(err, domain.ErrJoinPending) {
			s.reply(domain.Envelope{Event: domain.EventJoinPending})
			return
		}
		s.reply(domain.NewErrorEnvelope(err))
	}
}

func (s *session) handleJoinUser(ctx context.Context, env domain.Envelope) {
	var p domain.JoinUserPayload
	if err := decode(env, &p); err != nil {
		s.reply(domain.NewErrorEnvelope(err))
		return
	}

	user, err := s.users.RegisterUser(ctx, p.UserID, p.Name, p.Email)
	if err != nil {
		s.reply(domain.NewErrorEnvelope(err))
		return
	}
	s.user = user

	reply, err := domain.NewEnvelope(domain.EventUserRegistered, domain.UserPayload{User: *user})
	if err != nil {
		s.reply(domain.NewErrorEnvelope(err))
		return
	}
	s.reply(reply)
}

func (s *session) handleCreateRoom(ctx context.Context, env domain.Envelope) error {
	var p domain.CreateRoomPayload
	if err := decode(env, &p); err != nil {
		return err
	}

	settings := domain.DefaultRoomSettings()
	if p.Settings != nil {
		settings = *p.Settings
	}

	_, err := s.rooms.CreateRoom(ctx, s.user, s.send, service.CreateRoomParams{
		Name:        p.Name,
		Description: p.Description,
		Capacity:    p.MaxParticipants,
		Settings:    settings,
		Lifetime:    time.Duration(p.LifetimeMinutes) * time.Minute,
	})
	return err
}

func (s *session) handleJoinRoom(ctx context.Context, env domain.Envelope) error {
	var p domain.JoinRoomPayload
	if err := decode(env, &p); err != nil {
		return err
	}
	_, err := s.rooms.JoinRoom(ctx, p.RoomID, s.user, s.send)
	return err
}

func (s *session) handleChatHistory(ctx context.Context) error {
	messages, err := s.rooms.History(ctx, s.user.ID)
	if err != nil {
		return err
	}
	reply, err := domain.NewEnvelope(domain.EventChatHistory, domain.HistoryPayload{Messages: messages})
	if err != nil {
		return err
	}
	s.reply(reply)
	return nil
}

func (s *session) reply(env domain.Envelope) {
	select {
	case s.send <- env:
	default:
		s.log.Debug("dropping reply", "type", env.Event)
	}
}

func decode(env domain.Envelope, v any) error {
	if err := env.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}
	return nil
}

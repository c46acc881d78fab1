package http

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/huddlekit/huddle/internal/repository"
	"github.com/huddlekit/huddle/internal/service"
	"github.com/stretchr/testify/require"
)

func startWireServer(t *testing.T, grace time.Duration) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	userRepo := repository.NewInMemoryUserRepository()
	rooms := service.NewRoomService(repository.NewInMemoryRoomRepository(), userRepo, log, grace, 0)
	users := service.NewUserService(userRepo, log)

	srv := httptest.NewServer(SetupRouter(nil, nil, NewSessionHandler(rooms, users, log), nil))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type wireClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWire(t *testing.T, url string) *wireClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wireClient{t: t, conn: conn}
}

func (c *wireClient) send(event string, payload any) {
	c.t.Helper()
	env, err := domain.NewEnvelope(event, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(env))
}

// next reads until an envelope with the wanted event arrives, discarding
// everything else in between.
func (c *wireClient) next(event string) domain.Envelope {
	c.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		var env domain.Envelope
		require.NoError(c.t, c.conn.ReadJSON(&env))
		if env.Event == event {
			return env
		}
	}
}

func (c *wireClient) register(name string) domain.User {
	c.t.Helper()
	c.send(domain.EventJoinUser, domain.JoinUserPayload{Name: name})
	var p domain.UserPayload
	require.NoError(c.t, c.next(domain.EventUserRegistered).Decode(&p))
	return p.User
}

func (c *wireClient) createRoom(name string, settings *domain.RoomSettings) domain.RoomInfo {
	c.t.Helper()
	c.send(domain.EventCreateRoom, domain.CreateRoomPayload{
		Name:            name,
		MaxParticipants: 8,
		Settings:        settings,
	})
	var p domain.RoomPayload
	require.NoError(c.t, c.next(domain.EventRoomCreated).Decode(&p))
	return p.Room
}

func (c *wireClient) joinRoom(roomID uuid.UUID) domain.RoomInfo {
	c.t.Helper()
	c.send(domain.EventJoinRoom, domain.JoinRoomPayload{RoomID: roomID})
	var p domain.RoomPayload
	require.NoError(c.t, c.next(domain.EventRoomJoined).Decode(&p))
	return p.Room
}

func TestSessionRequiresRegistration(t *testing.T) {
	url := startWireServer(t, time.Second)
	c := dialWire(t, url)

	c.send(domain.EventCreateRoom, domain.CreateRoomPayload{Name: "room", MaxParticipants: 4})

	var p domain.ErrorPayload
	require.NoError(t, c.next(domain.EventError).Decode(&p))
	require.Equal(t, domain.CodeUnauthenticated, p.Code)
}

func TestSessionRegisterAndCreateRoom(t *testing.T) {
	url := startWireServer(t, time.Second)
	c := dialWire(t, url)

	user := c.register("alice")
	require.NotEqual(t, uuid.Nil, user.ID)

	room := c.createRoom("standup", nil)
	require.Equal(t, user.ID, room.HostID)
	require.Len(t, room.Participants, 1)
}

func TestSessionRegisteredIDSurvivesReconnect(t *testing.T) {
	url := startWireServer(t, time.Second)

	first := dialWire(t, url)
	user := first.register("alice")
	first.conn.Close()

	second := dialWire(t, url)
	second.send(domain.EventJoinUser, domain.JoinUserPayload{UserID: user.ID, Name: "alice"})
	var p domain.UserPayload
	require.NoError(t, second.next(domain.EventUserRegistered).Decode(&p))
	require.Equal(t, user.ID, p.User.ID)
}

func TestSessionChatFanOutCarriesSeq(t *testing.T) {
	url := startWireServer(t, time.Second)

	alice := dialWire(t, url)
	alice.register("alice")
	room := alice.createRoom("standup", nil)

	bob := dialWire(t, url)
	bob.register("bob")
	bob.joinRoom(room.ID)

	bob.send(domain.EventSendMessage, domain.SendMessagePayload{Body: "hello"})

	readText := func(c *wireClient) domain.ChatMessage {
		for {
			var p domain.MessagePayload
			require.NoError(t, c.next(domain.EventNewMessage).Decode(&p))
			if p.Message.Kind != domain.MessageSystem {
				return p.Message
			}
		}
	}

	got := readText(alice)
	require.Equal(t, "hello", got.Body)
	require.Equal(t, "bob", got.AuthorName)
	require.NotZero(t, got.Seq)

	// The sender receives its own message through the same fan-out.
	require.Equal(t, got.Seq, readText(bob).Seq)
}

func TestSessionChatHistoryReply(t *testing.T) {
	url := startWireServer(t, time.Second)

	alice := dialWire(t, url)
	alice.register("alice")
	room := alice.createRoom("standup", nil)
	alice.send(domain.EventSendMessage, domain.SendMessagePayload{Body: "early"})
	alice.next(domain.EventNewMessage)

	bob := dialWire(t, url)
	bob.register("bob")
	bob.joinRoom(room.ID)

	bob.send(domain.EventChatHistory, nil)
	var p domain.HistoryPayload
	require.NoError(t, bob.next(domain.EventChatHistory).Decode(&p))
	require.NotEmpty(t, p.Messages)
	require.Equal(t, "early", p.Messages[0].Body)
}

func TestSessionSignalForwarding(t *testing.T) {
	url := startWireServer(t, time.Second)

	alice := dialWire(t, url)
	aliceUser := alice.register("alice")
	room := alice.createRoom("standup", nil)

	bob := dialWire(t, url)
	bobUser := bob.register("bob")
	bob.joinRoom(room.ID)

	alice.send(domain.EventWebRTCOffer, domain.SignalPayload{
		TargetUserID: bobUser.ID,
		Offer:        []byte(`{"type":"offer","sdp":"v=0"}`),
	})

	var p domain.SignalPayload
	require.NoError(t, bob.next(domain.EventWebRTCOffer).Decode(&p))
	require.Equal(t, aliceUser.ID, p.SenderUserID)
	require.NotEmpty(t, p.Offer)
}

func TestSessionJoinPendingReply(t *testing.T) {
	url := startWireServer(t, time.Second)

	alice := dialWire(t, url)
	alice.register("alice")
	settings := domain.DefaultRoomSettings()
	settings.RequireApproval = true
	room := alice.createRoom("standup", &settings)

	bob := dialWire(t, url)
	bobUser := bob.register("bob")
	bob.send(domain.EventJoinRoom, domain.JoinRoomPayload{RoomID: room.ID})

	bob.next(domain.EventJoinPending)

	var req domain.UserPayload
	require.NoError(t, alice.next(domain.EventJoinRequested).Decode(&req))
	require.Equal(t, bobUser.ID, req.User.ID)

	alice.send(domain.EventApproveJoin, domain.ApproveJoinPayload{UserID: bobUser.ID, Approve: true})
	bob.next(domain.EventRoomJoined)
}

func TestSessionUnknownEventRejected(t *testing.T) {
	url := startWireServer(t, time.Second)
	c := dialWire(t, url)
	c.register("alice")

	c.send("time_travel", nil)

	var p domain.ErrorPayload
	require.NoError(t, c.next(domain.EventError).Decode(&p))
	require.Equal(t, domain.CodeBadRequest, p.Code)
}

func TestSessionDisconnectStartsGraceThenEvicts(t *testing.T) {
	url := startWireServer(t, 100*time.Millisecond)

	alice := dialWire(t, url)
	alice.register("alice")
	room := alice.createRoom("standup", nil)

	bob := dialWire(t, url)
	bob.register("bob")
	bob.joinRoom(room.ID)

	bob.conn.Close()

	// First the roster marks bob disconnected, then the grace window
	// expires and drops him entirely.
	sawDisconnected := false
	for {
		var p domain.RosterPayload
		require.NoError(t, alice.next(domain.EventParticipantsUpdated).Decode(&p))
		if len(p.Participants) == 2 && p.Participants[1].Status == domain.ParticipantStatusDisconnected {
			sawDisconnected = true
			continue
		}
		if len(p.Participants) == 1 {
			require.True(t, sawDisconnected)
			return
		}
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/huddlekit/huddle/internal/repository"
	"github.com/huddlekit/huddle/lib/logger/sl"
)

const (
	maxChatMessageLength  = 4000
	defaultReconnectGrace = 15 * time.Second
)

// pendingJoin parks a join request until the host approves it.
type pendingJoin struct {
	user        *domain.User
	events      chan domain.Envelope
	requestedAt time.Time
}

// RoomService is the relay-side room state machine. Live rooms are the
// authority; the repository is the registry they are mirrored into.
type RoomService struct {
	rooms           repository.RoomRepository
	users           repository.UserRepository
	log             *slog.Logger
	chat            *ChatLog
	grace           time.Duration
	defaultLifetime time.Duration

	mu          sync.RWMutex
	activeRooms map[uuid.UUID]*domain.Room
	memberships map[uuid.UUID]uuid.UUID
	pending     map[uuid.UUID]map[uuid.UUID]*pendingJoin
	graceTimers map[uuid.UUID]*time.Timer
}

// NewRoomService builds the relay state machine. defaultLifetime applies to
// rooms created without an explicit lifetime; zero keeps them alive forever.
func NewRoomService(rooms repository.RoomRepository, users repository.UserRepository, log *slog.Logger, reconnectGrace, defaultLifetime time.Duration) *RoomService {
	if log == nil {
		log = slog.Default()
	}
	if reconnectGrace <= 0 {
		reconnectGrace = defaultReconnectGrace
	}
	return &RoomService{
		rooms:           rooms,
		users:           users,
		log:             log,
		chat:            NewChatLog(),
		grace:           reconnectGrace,
		defaultLifetime: defaultLifetime,
		activeRooms:     make(map[uuid.UUID]*domain.Room),
		memberships:     make(map[uuid.UUID]uuid.UUID),
		pending:         make(map[uuid.UUID]map[uuid.UUID]*pendingJoin),
		graceTimers:     make(map[uuid.UUID]*time.Timer),
	}
}

func (s *RoomService) CreateRoom(ctx context.Context, host *domain.User, events chan domain.Envelope, params CreateRoomParams) (*domain.Room, error) {
	const op = "service.room.create"
	log := s.log.With(slog.String("op", op))

	if host == nil {
		return nil, errors.New("host is required")
	}
	if strings.TrimSpace(params.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidRoomConfig)
	}
	if params.Capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be at least 1", domain.ErrInvalidRoomConfig)
	}

	s.mu.RLock()
	_, inRoom := s.memberships[host.ID]
	s.mu.RUnlock()
	if inRoom {
		return nil, domain.ErrAlreadyInRoom
	}

	if params.Lifetime <= 0 {
		params.Lifetime = s.defaultLifetime
	}

	for {
		room := domain.NewRoom(params.Name, params.Description, host.ID, params.Capacity, params.Settings, params.Lifetime)

		participant := domain.NewParticipant(host, domain.RoleHost, events)
		room.Mutex.Lock()
		room.AddMember(participant)
		room.Revision++
		room.Mutex.Unlock()

		if err := s.rooms.Create(ctx, room); err != nil {
			if errors.Is(err, domain.ErrRoomLinkExists) {
				continue
			}
			log.Error("failed to store room", sl.Err(err))
			return nil, err
		}

		s.mu.Lock()
		s.activeRooms[room.ID] = room
		s.memberships[host.ID] = room.ID
		s.mu.Unlock()

		log.Info("room created",
			"room_id", room.ID.String(),
			"host_id", host.ID.String(),
			"capacity", params.Capacity,
		)

		s.push(participant, domain.EventRoomCreated, domain.RoomPayload{Room: room.Info()})
		return room, nil
	}
}

func (s *RoomService) GetRoom(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	if room := s.getActiveRoom(id); room != nil {
		if room.IsExpired() {
			s.expireRoom(ctx, room)
			return nil, domain.ErrRoomExpired
		}
		return room, nil
	}

	roomFromDB, err := s.rooms.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	room := s.activateRoom(roomFromDB)
	if room.IsExpired() {
		s.expireRoom(ctx, room)
		return nil, domain.ErrRoomExpired
	}

	return room, nil
}

func (s *RoomService) GetRoomByLink(ctx context.Context, link string) (*domain.Room, error) {
	s.mu.RLock()
	var active *domain.Room
	for _, room := range s.activeRooms {
		if room.Link == link {
			active = room
			break
		}
	}
	s.mu.RUnlock()

	if active != nil {
		if active.IsExpired() {
			s.expireRoom(ctx, active)
			return nil, domain.ErrRoomExpired
		}
		return active, nil
	}

	roomFromDB, err := s.rooms.GetByLink(ctx, link)
	if err != nil {
		return nil, err
	}

	room := s.activateRoom(roomFromDB)
	if room.IsExpired() {
		s.expireRoom(ctx, room)
		return nil, domain.ErrRoomExpired
	}

	return room, nil
}

func (s *RoomService) JoinRoom(ctx context.Context, roomID uuid.UUID, user *domain.User, events chan domain.Envelope) (*domain.Room, error) {
	const op = "service.room.join"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room_id", roomID.String()),
	)

	if user == nil {
		return nil, errors.New("user is required")
	}

	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		log.Info("room lookup failed", sl.Err(err))
		return nil, err
	}

	s.mu.RLock()
	current, inRoom := s.memberships[user.ID]
	s.mu.RUnlock()

	if inRoom {
		if current != roomID {
			return nil, domain.ErrAlreadyInRoom
		}
		// Reconnect resumes the same roster slot within the grace window.
		return s.resumeMembership(ctx, room, user, events)
	}

	room.Mutex.RLock()
	settings := room.Settings
	hostID := room.HostID
	full := room.IsFull()
	empty := len(room.Members) == 0
	room.Mutex.RUnlock()

	if settings.Locked {
		return nil, domain.ErrRoomLocked
	}
	if full {
		return nil, domain.ErrRoomFull
	}

	if settings.RequireApproval && !empty && user.ID != hostID {
		return nil, s.parkJoin(room, user, events)
	}

	if err := s.admit(ctx, room, user, events); err != nil {
		return nil, err
	}

	log.Info("participant joined",
		"user_id", user.ID.String(),
		"display_name", user.Name,
	)
	return room, nil
}

// admit appends the user to the roster and fans out the join. The new
// member receives room_joined first, then the same roster revision every
// other member gets, which it discards as already applied.
func (s *RoomService) admit(ctx context.Context, room *domain.Room, user *domain.User, events chan domain.Envelope) error {
	participant := domain.NewParticipant(user, domain.RoleParticipant, events)

	room.Mutex.Lock()
	if room.Settings.Locked {
		room.Mutex.Unlock()
		return domain.ErrRoomLocked
	}
	if room.IsFull() {
		room.Mutex.Unlock()
		return domain.ErrRoomFull
	}
	if len(room.Members) == 0 {
		// First joiner of a pre-created room becomes the host.
		participant.Role = domain.RoleHost
		room.HostID = user.ID
	}
	room.AddMember(participant)
	room.Revision++
	room.Mutex.Unlock()

	s.mu.Lock()
	s.memberships[user.ID] = room.ID
	if reqs, ok := s.pending[room.ID]; ok {
		delete(reqs, user.ID)
	}
	s.mu.Unlock()

	s.persistRoom(ctx, room)

	s.push(participant, domain.EventRoomJoined, domain.RoomPayload{Room: room.Info()})
	s.broadcastRoster(room)
	s.systemMessage(room, participant.DisplayName+" joined")
	return nil
}

func (s *RoomService) resumeMembership(ctx context.Context, room *domain.Room, user *domain.User, events chan domain.Envelope) (*domain.Room, error) {
	const op = "service.room.resume"
	log := s.log.With(slog.String("op", op))

	room.Mutex.Lock()
	participant := room.Member(user.ID)
	if participant == nil {
		room.Mutex.Unlock()
		// Stale membership entry with no roster slot behind it.
		s.mu.Lock()
		delete(s.memberships, user.ID)
		s.mu.Unlock()
		return nil, domain.ErrNotInRoom
	}
	participant.Rebind(events)
	wasDisconnected := participant.Status == domain.ParticipantStatusDisconnected
	participant.SetStatus(domain.ParticipantStatusConnected)
	if wasDisconnected {
		room.Revision++
	}
	room.Mutex.Unlock()

	s.cancelGraceTimer(user.ID)
	s.persistRoom(ctx, room)

	s.push(participant, domain.EventRoomJoined, domain.RoomPayload{Room: room.Info()})
	if wasDisconnected {
		s.broadcastRoster(room)
	}

	log.Info("participant resumed",
		"room_id", room.ID.String(),
		"user_id", user.ID.String(),
	)
	return room, nil
}

// parkJoin queues the request for host approval and notifies the host.
func (s *RoomService) parkJoin(room *domain.Room, user *domain.User, events chan domain.Envelope) error {
	s.mu.Lock()
	reqs, ok := s.pending[room.ID]
	if !ok {
		reqs = make(map[uuid.UUID]*pendingJoin)
		s.pending[room.ID] = reqs
	}
	reqs[user.ID] = &pendingJoin{
		user:        user,
		events:      events,
		requestedAt: time.Now().UTC(),
	}
	s.mu.Unlock()

	room.Mutex.RLock()
	host := room.Member(room.HostID)
	room.Mutex.RUnlock()

	if host != nil {
		s.push(host, domain.EventJoinRequested, domain.UserPayload{User: *user})
	}

	s.log.Info("join parked for approval",
		"room_id", room.ID.String(),
		"user_id", user.ID.String(),
	)
	return domain.ErrJoinPending
}

func (s *RoomService) ApproveJoin(ctx context.Context, hostID, userID uuid.UUID, approve bool) error {
	const op = "service.room.approveJoin"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID.String()),
	)

	room, err := s.roomOf(ctx, hostID)
	if err != nil {
		return err
	}

	room.Mutex.RLock()
	isHost := room.HostID == hostID
	room.Mutex.RUnlock()
	if !isHost {
		return domain.ErrForbidden
	}

	s.mu.Lock()
	var req *pendingJoin
	if reqs, ok := s.pending[room.ID]; ok {
		req = reqs[userID]
		delete(reqs, userID)
	}
	s.mu.Unlock()

	if req == nil {
		return domain.ErrTargetNotFound
	}

	if !approve {
		log.Info("join denied")
		s.pushTo(req.events, domain.NewErrorEnvelope(domain.ErrJoinDenied))
		return nil
	}

	if err := s.admit(ctx, room, req.user, req.events); err != nil {
		// The slot may have filled while the request waited.
		s.pushTo(req.events, domain.NewErrorEnvelope(err))
		return err
	}

	log.Info("join approved")
	return nil
}

func (s *RoomService) LeaveRoom(ctx context.Context, userID uuid.UUID) error {
	const op = "service.room.leave"
	log := s.log.With(slog.String("op", op))

	room, err := s.roomOf(ctx, userID)
	if err != nil {
		return err
	}

	participant, err := s.removeMember(ctx, room, userID, " left")
	if err != nil {
		return err
	}

	s.push(participant, domain.EventRoomLeft, nil)
	log.Info("participant left",
		"room_id", room.ID.String(),
		"user_id", userID.String(),
	)
	return nil
}

func (s *RoomService) CloseRoom(ctx context.Context, userID uuid.UUID) error {
	const op = "service.room.close"
	log := s.log.With(slog.String("op", op))

	room, err := s.roomOf(ctx, userID)
	if err != nil {
		return err
	}

	room.Mutex.RLock()
	isHost := room.HostID == userID
	room.Mutex.RUnlock()
	if !isHost {
		return domain.ErrForbidden
	}

	env, err := domain.NewEnvelope(domain.EventRoomClosed, domain.RoomIDPayload{RoomID: room.ID})
	if err != nil {
		return err
	}
	s.destroyRoom(ctx, room, &env)

	log.Info("room closed",
		"room_id", room.ID.String(),
		"host_id", userID.String(),
	)
	return nil
}

func (s *RoomService) UpdateSettings(ctx context.Context, userID uuid.UUID, settings domain.RoomSettings) error {
	const op = "service.room.updateSettings"
	log := s.log.With(slog.String("op", op))

	room, err := s.roomOf(ctx, userID)
	if err != nil {
		return err
	}

	room.Mutex.Lock()
	if room.HostID != userID {
		room.Mutex.Unlock()
		return domain.ErrForbidden
	}
	room.Settings = settings
	room.Mutex.Unlock()

	s.persistRoom(ctx, room)
	s.broadcast(room, domain.EventSettingsUpdated, domain.SettingsPayload{Settings: settings})

	log.Info("settings updated",
		"room_id", room.ID.String(),
		"locked", settings.Locked,
		"require_approval", settings.RequireApproval,
	)
	return nil
}

// ForwardSignal relays an offer, answer or ICE candidate to its target,
// rewriting the payload so the receiver sees who sent it. Signals never
// fan out: negotiation is strictly point-to-point.
func (s *RoomService) ForwardSignal(ctx context.Context, senderID uuid.UUID, event string, signal domain.SignalPayload) error {
	const op = "service.room.forwardSignal"
	log := s.log.With(slog.String("op", op))

	room, err := s.roomOf(ctx, senderID)
	if err != nil {
		return err
	}

	room.Mutex.RLock()
	sender := room.Member(senderID)
	target := room.Member(signal.TargetUserID)
	room.Mutex.RUnlock()

	if sender == nil {
		return domain.ErrNotInRoom
	}
	if target == nil {
		return domain.ErrTargetNotFound
	}

	signal.SenderUserID = senderID
	signal.TargetUserID = uuid.Nil

	env, err := domain.NewEnvelope(event, signal)
	if err != nil {
		return err
	}
	if !target.EnqueueEvent(env) {
		log.Debug("dropping signal event",
			"type", event,
			"target", target.UserID.String(),
		)
	}
	return nil
}

func (s *RoomService) ToggleMedia(ctx context.Context, userID uuid.UUID, kind domain.MediaKind, active bool) error {
	const op = "service.room.toggleMedia"
	log := s.log.With(slog.String("op", op))

	room, err := s.roomOf(ctx, userID)
	if err != nil {
		return err
	}

	room.Mutex.RLock()
	participant := room.Member(userID)
	allowScreenShare := room.Settings.AllowScreenShare
	room.Mutex.RUnlock()
	if participant == nil {
		return domain.ErrNotInRoom
	}

	var event string
	var payload any

	switch kind {
	case domain.MediaVideo:
		participant.SetMediaFlag(kind, active)
		event = domain.EventVideoToggled
		payload = domain.TogglePayload{UserID: userID, Enabled: active}
	case domain.MediaAudio:
		participant.SetMediaFlag(kind, active)
		event = domain.EventAudioToggled
		payload = domain.TogglePayload{UserID: userID, Enabled: active}
	case domain.MediaScreenShare:
		if active && !allowScreenShare {
			return domain.ErrForbidden
		}
		participant.SetMediaFlag(kind, active)
		event = domain.EventScreenShareToggled
		payload = domain.ActivePayload{UserID: userID, Active: active}
	case domain.MediaRecording:
		room.Mutex.Lock()
		room.RecordingActive = active
		room.Mutex.Unlock()
		event = domain.EventRecordingToggled
		payload = domain.ActivePayload{UserID: userID, Active: active}
	default:
		return fmt.Errorf("%w: unknown media kind %q", domain.ErrInvalidMessage, kind)
	}

	s.persistRoom(ctx, room)
	s.broadcast(room, event, payload)

	log.Debug("media toggled",
		"room_id", room.ID.String(),
		"user_id", userID.String(),
		"kind", string(kind),
		"active", active,
	)
	return nil
}

func (s *RoomService) SendChat(ctx context.Context, userID uuid.UUID, body string, kind domain.MessageKind) (*domain.ChatMessage, error) {
	const op = "service.room.sendChat"
	log := s.log.With(slog.String("op", op))

	room, err := s.roomOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	room.Mutex.RLock()
	participant := room.Member(userID)
	allowChat := room.Settings.AllowChat
	room.Mutex.RUnlock()
	if participant == nil {
		return nil, domain.ErrNotInRoom
	}
	if !allowChat {
		return nil, domain.ErrChatDisabled
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: body is empty", domain.ErrInvalidMessage)
	}
	if utf8.RuneCountInString(body) > maxChatMessageLength {
		return nil, fmt.Errorf("%w: body is too long", domain.ErrInvalidMessage)
	}

	switch kind {
	case "", domain.MessageText, domain.MessageFile:
	default:
		return nil, fmt.Errorf("%w: kind %q is reserved", domain.ErrInvalidMessage, kind)
	}

	msg := domain.NewChatMessage(room.ID, participant, body, kind)
	s.chat.Append(msg)
	s.broadcast(room, domain.EventNewMessage, domain.MessagePayload{Message: *msg})

	log.Debug("chat message",
		"room_id", room.ID.String(),
		"seq", msg.Seq,
	)
	return msg, nil
}

func (s *RoomService) History(ctx context.Context, userID uuid.UUID) ([]domain.ChatMessage, error) {
	room, err := s.roomOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.chat.History(room.ID), nil
}

// HandleDisconnect marks the user's participant disconnected and starts the
// grace window. The roster slot survives until the window expires, so a
// quick reconnect resumes with the same identity and join order.
func (s *RoomService) HandleDisconnect(userID uuid.UUID) {
	const op = "service.room.disconnect"
	log := s.log.With(slog.String("op", op))

	s.mu.Lock()
	roomID, ok := s.memberships[userID]
	for _, reqs := range s.pending {
		delete(reqs, userID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	room := s.getActiveRoom(roomID)
	if room == nil {
		s.mu.Lock()
		delete(s.memberships, userID)
		s.mu.Unlock()
		return
	}

	room.Mutex.Lock()
	participant := room.Member(userID)
	if participant == nil {
		room.Mutex.Unlock()
		s.mu.Lock()
		delete(s.memberships, userID)
		s.mu.Unlock()
		return
	}
	participant.SetStatus(domain.ParticipantStatusDisconnected)
	room.Revision++
	room.Mutex.Unlock()

	s.broadcastRoster(room)

	s.mu.Lock()
	if t := s.graceTimers[userID]; t != nil {
		t.Stop()
	}
	s.graceTimers[userID] = time.AfterFunc(s.grace, func() {
		s.evictAfterGrace(userID, roomID)
	})
	s.mu.Unlock()

	log.Info("participant disconnected, grace started",
		"room_id", roomID.String(),
		"user_id", userID.String(),
		"grace", s.grace.String(),
	)
}

func (s *RoomService) evictAfterGrace(userID, roomID uuid.UUID) {
	const op = "service.room.evict"
	log := s.log.With(slog.String("op", op))

	s.mu.Lock()
	delete(s.graceTimers, userID)
	current, ok := s.memberships[userID]
	s.mu.Unlock()
	if !ok || current != roomID {
		return
	}

	room := s.getActiveRoom(roomID)
	if room == nil {
		return
	}

	room.Mutex.RLock()
	participant := room.Member(userID)
	stillGone := participant != nil && participant.Status == domain.ParticipantStatusDisconnected
	room.Mutex.RUnlock()
	if !stillGone {
		return
	}

	if _, err := s.removeMember(context.Background(), room, userID, " disconnected"); err != nil {
		return
	}

	log.Info("participant evicted after grace",
		"room_id", roomID.String(),
		"user_id", userID.String(),
	)
}

func (s *RoomService) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]domain.ParticipantInfo, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return room.Info().Participants, nil
}

func (s *RoomService) ListRooms(ctx context.Context) ([]*domain.Room, error) {
	return s.rooms.List(ctx)
}

// removeMember drops the user from the roster, reassigns the host role to
// the oldest remaining member when needed, and fans out the change. Empty
// rooms are destroyed.
func (s *RoomService) removeMember(ctx context.Context, room *domain.Room, userID uuid.UUID, note string) (*domain.Participant, error) {
	room.Mutex.Lock()
	participant := room.RemoveMember(userID)
	if participant == nil {
		room.Mutex.Unlock()
		s.mu.Lock()
		delete(s.memberships, userID)
		s.mu.Unlock()
		return nil, domain.ErrNotInRoom
	}

	roomEmpty := len(room.Members) == 0
	if !roomEmpty && room.HostID == userID {
		next := room.OldestMember()
		room.HostID = next.UserID
		next.SetRole(domain.RoleHost)
	}
	room.Revision++
	room.Mutex.Unlock()

	s.mu.Lock()
	delete(s.memberships, userID)
	if t := s.graceTimers[userID]; t != nil {
		t.Stop()
		delete(s.graceTimers, userID)
	}
	s.mu.Unlock()

	if roomEmpty {
		s.destroyRoom(ctx, room, nil)
		return participant, nil
	}

	s.persistRoom(ctx, room)
	s.broadcastRoster(room)
	s.systemMessage(room, participant.DisplayName+note)
	return participant, nil
}

// destroyRoom tears down all live state for the room. When notify is set,
// every remaining member receives it before eviction.
func (s *RoomService) destroyRoom(ctx context.Context, room *domain.Room, notify *domain.Envelope) {
	room.Mutex.Lock()
	members := room.Members
	room.Members = nil
	room.Revision++
	room.Mutex.Unlock()

	s.mu.Lock()
	delete(s.activeRooms, room.ID)
	for _, m := range members {
		delete(s.memberships, m.UserID)
		if t := s.graceTimers[m.UserID]; t != nil {
			t.Stop()
			delete(s.graceTimers, m.UserID)
		}
	}
	waiting := s.pending[room.ID]
	delete(s.pending, room.ID)
	s.mu.Unlock()

	if notify != nil {
		for _, m := range members {
			m.EnqueueEvent(*notify)
		}
	}
	for _, req := range waiting {
		s.pushTo(req.events, domain.NewErrorEnvelope(domain.ErrRoomNotFound))
	}

	s.chat.Drop(room.ID)

	if err := s.rooms.Delete(ctx, room.ID); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		s.log.Warn("failed to delete room record", sl.Err(err))
	}
}

func (s *RoomService) expireRoom(ctx context.Context, room *domain.Room) {
	env, err := domain.NewEnvelope(domain.EventRoomClosed, domain.RoomIDPayload{RoomID: room.ID})
	if err != nil {
		return
	}
	s.destroyRoom(ctx, room, &env)
	s.log.Info("room expired", "room_id", room.ID.String())
}

// roomOf resolves the room the user is currently a member of.
func (s *RoomService) roomOf(ctx context.Context, userID uuid.UUID) (*domain.Room, error) {
	s.mu.RLock()
	roomID, ok := s.memberships[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotInRoom
	}
	return s.GetRoom(ctx, roomID)
}

func (s *RoomService) getActiveRoom(id uuid.UUID) *domain.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeRooms[id]
}

// activateRoom publishes a room loaded from the registry. Restored members
// are not connected to this process, so they enter the grace window and
// either resume or get evicted.
func (s *RoomService) activateRoom(room *domain.Room) *domain.Room {
	if room == nil {
		return nil
	}

	room.Mutex.Lock()
	members := make([]*domain.Participant, len(room.Members))
	copy(members, room.Members)
	for _, p := range members {
		if p.Events == nil {
			p.Rebind(make(chan domain.Envelope, 16))
		}
		p.SetStatus(domain.ParticipantStatusDisconnected)
	}
	room.Mutex.Unlock()

	s.mu.Lock()
	if existing := s.activeRooms[room.ID]; existing != nil {
		s.mu.Unlock()
		return existing
	}
	s.activeRooms[room.ID] = room
	for _, p := range members {
		userID := p.UserID
		s.memberships[userID] = room.ID
		if t := s.graceTimers[userID]; t != nil {
			t.Stop()
		}
		s.graceTimers[userID] = time.AfterFunc(s.grace, func() {
			s.evictAfterGrace(userID, room.ID)
		})
	}
	s.mu.Unlock()

	return room
}

// broadcastRoster fans the current roster revision out to every member.
// Revisions only ever grow, so receivers can discard stale payloads no
// matter how delivery interleaves.
func (s *RoomService) broadcastRoster(room *domain.Room) {
	room.Mutex.RLock()
	payload := domain.RosterPayload{
		Revision:     room.Revision,
		Participants: room.Roster(),
	}
	members := make([]*domain.Participant, len(room.Members))
	copy(members, room.Members)
	room.Mutex.RUnlock()

	env, err := domain.NewEnvelope(domain.EventParticipantsUpdated, payload)
	if err != nil {
		s.log.Error("failed to encode roster", sl.Err(err))
		return
	}

	for _, m := range members {
		if !m.EnqueueEvent(env) {
			s.log.Debug("dropping roster event", "user_id", m.UserID.String())
		}
	}
}

func (s *RoomService) broadcast(room *domain.Room, event string, payload any) {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		s.log.Error("failed to encode event", "type", event, sl.Err(err))
		return
	}

	room.Mutex.RLock()
	members := make([]*domain.Participant, len(room.Members))
	copy(members, room.Members)
	room.Mutex.RUnlock()

	for _, m := range members {
		if !m.EnqueueEvent(env) {
			s.log.Debug("dropping event",
				"type", event,
				"user_id", m.UserID.String(),
			)
		}
	}
}

func (s *RoomService) systemMessage(room *domain.Room, body string) {
	msg := domain.NewSystemMessage(room.ID, body)
	s.chat.Append(msg)
	s.broadcast(room, domain.EventNewMessage, domain.MessagePayload{Message: *msg})
}

func (s *RoomService) push(p *domain.Participant, event string, payload any) {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		s.log.Error("failed to encode event", "type", event, sl.Err(err))
		return
	}
	if !p.EnqueueEvent(env) {
		s.log.Debug("dropping event",
			"type", event,
			"user_id", p.UserID.String(),
		)
	}
}

func (s *RoomService) pushTo(events chan domain.Envelope, env domain.Envelope) {
	select {
	case events <- env:
	default:
	}
}

func (s *RoomService) cancelGraceTimer(userID uuid.UUID) {
	s.mu.Lock()
	if t := s.graceTimers[userID]; t != nil {
		t.Stop()
		delete(s.graceTimers, userID)
	}
	s.mu.Unlock()
}

// persistRoom mirrors the live room into the registry. Live state stays
// authoritative, so persistence failures are logged and not propagated.
func (s *RoomService) persistRoom(ctx context.Context, room *domain.Room) {
	if err := s.rooms.Update(ctx, room); err != nil {
		s.log.Warn("failed to persist room",
			"room_id", room.ID.String(),
			sl.Err(err),
		)
	}
}

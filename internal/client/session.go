package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/huddlekit/huddle/lib/logger/sl"
	"github.com/pion/webrtc/v4"
)

// RoomState is the client-side room lifecycle.
type RoomState string

const (
	StateNone    RoomState = "none"
	StateJoining RoomState = "joining"
	StateActive  RoomState = "active"
	StateLeaving RoomState = "leaving"
)

const (
	cmdBuffer      = 16
	redialInterval = 2 * time.Second
)

const (
	opConnect = "connect"
	opCreate  = "create"
	opJoin    = "join"
	opLeave   = "leave"
	opClose   = "close"
	opHistory = "history"
)

// pendingOp is the single room operation in flight. The loop resolves it
// when the matching relay reply, an error envelope or the timer arrives.
type pendingOp struct {
	kind       string
	resolve    func(error)
	timer      *time.Timer
	timeoutErr error
	onRoom     func(domain.RoomInfo)
	onHistory  func([]domain.ChatMessage)
}

// Engine drives one collaboration session: signaling channel, room state,
// peer mesh, media and chat. All mutable state lives on the run loop;
// public methods post commands into it and wait.
type Engine struct {
	opts Options
	log  *slog.Logger

	cmds      chan func()
	events    chan Event
	closed    chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// run loop state
	channel      *Channel
	user         *domain.User
	state        RoomState
	room         *domain.RoomInfo
	roster       []domain.ParticipantInfo
	revision     uint64
	mesh         *Mesh
	media        mediaSession
	recorder     *Recorder
	chat         *ChatView
	pending      *pendingOp
	resumeRoom   uuid.UUID
	reconnecting bool
	linkTimers   map[uuid.UUID]*time.Timer

	// snapshots for accessors and pion-goroutine reads
	snapMu      sync.RWMutex
	snapChannel *Channel
	snapState   RoomState
	snapUser    *domain.User
	snapRoom    *domain.RoomInfo
	snapRoster  []domain.ParticipantInfo
}

func NewEngine(opts Options) *Engine {
	opts.setDefaults()

	e := &Engine{
		opts:       opts,
		log:        opts.Logger,
		cmds:       make(chan func(), cmdBuffer),
		events:     make(chan Event, opts.EventBuffer),
		closed:     make(chan struct{}),
		stopped:    make(chan struct{}),
		state:      StateNone,
		recorder:   NewRecorder(),
		chat:       NewChatView(),
		linkTimers: make(map[uuid.UUID]*time.Timer),
	}
	e.snapState = StateNone

	go e.run()
	return e
}

func (e *Engine) run() {
	defer close(e.stopped)

	for {
		var incoming <-chan domain.Envelope
		var states <-chan ChannelState
		if e.channel != nil {
			incoming = e.channel.Incoming()
			states = e.channel.States()
		}

		select {
		case fn := <-e.cmds:
			fn()
		case state := <-states:
			e.emit(ChannelEvent{State: state})
		case env, ok := <-incoming:
			if !ok {
				e.handleChannelDown()
				continue
			}
			e.handleEnvelope(env)
		case <-e.closed:
			e.shutdown()
			return
		}
	}
}

// Events delivers roster, chat, media, link and channel notifications. A
// consumer that falls more than the buffer behind loses events.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Connect dials the relay and registers the configured identity.
func (e *Engine) Connect(ctx context.Context) error {
	return e.do(ctx, func(resolve func(error)) {
		if e.channel != nil {
			resolve(nil)
			return
		}
		if e.pending != nil {
			resolve(ErrBusyOperation)
			return
		}

		ch := NewChannel(e.opts.ServerURL, e.log)
		if err := ch.Dial(ctx); err != nil {
			resolve(err)
			return
		}
		// The run loop forwards the channel's state stream as
		// ChannelEvents from here on.
		e.setChannel(ch)

		if err := e.send(domain.EventJoinUser, domain.JoinUserPayload{
			UserID: e.opts.Identity.UserID,
			Name:   e.opts.Identity.Name,
			Email:  e.opts.Identity.Email,
		}); err != nil {
			resolve(err)
			return
		}
		e.park(&pendingOp{kind: opConnect, resolve: resolve, timeoutErr: ErrJoinTimeout}, e.opts.JoinTimeout)
	})
}

// CreateRoom asks the relay for a new room with the caller as host. The
// camera opens before the request goes out, so device failures surface here
// and not mid-join.
func (e *Engine) CreateRoom(ctx context.Context, cfg RoomConfig) (domain.RoomInfo, error) {
	var result domain.RoomInfo
	err := e.do(ctx, func(resolve func(error)) {
		if err := e.readyForRoomOp(); err != nil {
			resolve(err)
			return
		}
		if err := e.openCamera(ctx); err != nil {
			resolve(err)
			return
		}
		settings := cfg.Settings
		if err := e.send(domain.EventCreateRoom, domain.CreateRoomPayload{
			Name:            cfg.Name,
			Description:     cfg.Description,
			MaxParticipants: cfg.Capacity,
			Settings:        &settings,
			LifetimeMinutes: int(cfg.Lifetime / time.Minute),
		}); err != nil {
			resolve(err)
			return
		}
		e.setState(StateJoining)
		e.park(&pendingOp{
			kind:       opCreate,
			resolve:    resolve,
			timeoutErr: ErrJoinTimeout,
			onRoom:     func(info domain.RoomInfo) { result = info },
		}, e.opts.JoinTimeout)
	})
	return result, err
}

// JoinRoom enters an existing room. When the room requires approval the
// call keeps waiting for the host decision within ApprovalTimeout.
func (e *Engine) JoinRoom(ctx context.Context, roomID uuid.UUID) (domain.RoomInfo, error) {
	var result domain.RoomInfo
	err := e.do(ctx, func(resolve func(error)) {
		if err := e.readyForRoomOp(); err != nil {
			resolve(err)
			return
		}
		if err := e.openCamera(ctx); err != nil {
			resolve(err)
			return
		}
		if err := e.send(domain.EventJoinRoom, domain.JoinRoomPayload{RoomID: roomID}); err != nil {
			resolve(err)
			return
		}
		e.setState(StateJoining)
		e.park(&pendingOp{
			kind:       opJoin,
			resolve:    resolve,
			timeoutErr: ErrJoinTimeout,
			onRoom:     func(info domain.RoomInfo) { result = info },
		}, e.opts.JoinTimeout)
	})
	return result, err
}

// LeaveRoom leaves the current room. Peer links come down, the camera stays
// open only while a recording is running.
func (e *Engine) LeaveRoom(ctx context.Context) error {
	return e.do(ctx, func(resolve func(error)) {
		if err := e.requireActive(); err != nil {
			resolve(err)
			return
		}
		if e.pending != nil {
			resolve(ErrBusyOperation)
			return
		}
		if err := e.send(domain.EventLeaveRoom, nil); err != nil {
			resolve(err)
			return
		}
		e.setState(StateLeaving)
		e.park(&pendingOp{kind: opLeave, resolve: resolve, timeoutErr: ErrJoinTimeout}, e.opts.JoinTimeout)
	})
}

// CloseRoom destroys the room for everyone. Host only.
func (e *Engine) CloseRoom(ctx context.Context) error {
	return e.do(ctx, func(resolve func(error)) {
		if err := e.requireHost(); err != nil {
			resolve(err)
			return
		}
		if e.pending != nil {
			resolve(ErrBusyOperation)
			return
		}
		if err := e.send(domain.EventCloseRoom, nil); err != nil {
			resolve(err)
			return
		}
		e.park(&pendingOp{kind: opClose, resolve: resolve, timeoutErr: ErrJoinTimeout}, e.opts.JoinTimeout)
	})
}

// UpdateSettings replaces the room settings. Host only; the relay enforces
// this too.
func (e *Engine) UpdateSettings(ctx context.Context, settings domain.RoomSettings) error {
	return e.do(ctx, func(resolve func(error)) {
		if err := e.requireHost(); err != nil {
			resolve(err)
			return
		}
		resolve(e.send(domain.EventUpdateSettings, domain.SettingsPayload{Settings: settings}))
	})
}

// ApproveJoin answers a pending join request. Host only.
func (e *Engine) ApproveJoin(ctx context.Context, userID uuid.UUID, approve bool) error {
	return e.do(ctx, func(resolve func(error)) {
		if err := e.requireHost(); err != nil {
			resolve(err)
			return
		}
		resolve(e.send(domain.EventApproveJoin, domain.ApproveJoinPayload{UserID: userID, Approve: approve}))
	})
}

// SendMessage posts a chat message. The echoed new_message event feeds the
// local view, so ordering always comes from the relay.
func (e *Engine) SendMessage(ctx context.Context, body string) error {
	return e.do(ctx, func(resolve func(error)) {
		if err := e.requireActive(); err != nil {
			resolve(err)
			return
		}
		if !e.room.Settings.AllowChat {
			resolve(domain.ErrChatDisabled)
			return
		}
		resolve(e.send(domain.EventSendMessage, domain.SendMessagePayload{Body: body, Kind: domain.MessageText}))
	})
}

// History fetches the room chat backlog and merges it into the local view.
func (e *Engine) History(ctx context.Context) ([]domain.ChatMessage, error) {
	var result []domain.ChatMessage
	err := e.do(ctx, func(resolve func(error)) {
		if err := e.requireActive(); err != nil {
			resolve(err)
			return
		}
		if e.pending != nil {
			resolve(ErrBusyOperation)
			return
		}
		if err := e.send(domain.EventChatHistory, nil); err != nil {
			resolve(err)
			return
		}
		e.park(&pendingOp{
			kind:       opHistory,
			resolve:    resolve,
			timeoutErr: ErrJoinTimeout,
			onHistory:  func(msgs []domain.ChatMessage) { result = msgs },
		}, e.opts.JoinTimeout)
	})
	return result, err
}

// ToggleVideo gates the camera track. The track stays attached to every
// link; disabled means samples are swallowed.
func (e *Engine) ToggleVideo(ctx context.Context, enabled bool) error {
	return e.do(ctx, func(resolve func(error)) {
		if err := e.requireActive(); err != nil {
			resolve(err)
			return
		}
		track := e.media.cameraVideo()
		if track == nil {
			resolve(newDeviceError("toggle video", ErrDeviceUnavailable))
			return
		}
		track.SetEnabled(enabled)
		resolve(e.send(domain.EventToggleVideo, domain.TogglePayload{Enabled: enabled}))
	})
}

// ToggleAudio gates the microphone track.
func (e *Engine) ToggleAudio(ctx context.Context, enabled bool) error {
	return e.do(ctx, func(resolve func(error)) {
		if err := e.requireActive(); err != nil {
			resolve(err)
			return
		}
		track := e.media.audioTrack()
		if track == nil {
			resolve(newDeviceError("toggle audio", ErrDeviceUnavailable))
			return
		}
		track.SetEnabled(enabled)
		resolve(e.send(domain.EventToggleAudio, domain.TogglePayload{Enabled: enabled}))
	})
}

// StartScreenShare puts the display stream into the video slot of every
// link via ReplaceTrack; no renegotiation happens. When the capture ends on
// its own (OS stop button), the camera is restored automatically.
func (e *Engine) StartScreenShare(ctx context.Context) error {
	return e.do(ctx, func(resolve func(error)) {
		if err := e.requireActive(); err != nil {
			resolve(err)
			return
		}
		if e.media.sharing() {
			resolve(nil)
			return
		}
		if !e.room.Settings.AllowScreenShare {
			resolve(domain.ErrForbidden)
			return
		}
		if e.opts.DisplayDevice == nil {
			resolve(ErrNoDisplayDevice)
			return
		}

		stream, err := e.opts.DisplayDevice.OpenStream(ctx)
		if err != nil {
			resolve(err)
			return
		}
		e.media.screen = stream
		if t := stream.VideoTrack(); t != nil {
			// The recorder follows the video slot: while the share is
			// outgoing, camera video stays out of the recording.
			t.SetTap(e.recorder.Write)
			if cam := e.media.cameraVideo(); cam != nil {
				cam.SetTap(nil)
			}
		}
		if e.mesh != nil && stream.VideoTrack() != nil {
			_ = e.mesh.ReplaceVideo(stream.VideoTrack().RTP())
		}
		e.watchScreen(stream)

		resolve(e.send(domain.EventToggleScreenShare, domain.ActivePayload{Active: true}))
	})
}

// StopScreenShare restores the camera into the video slot.
func (e *Engine) StopScreenShare(ctx context.Context) error {
	return e.do(ctx, func(resolve func(error)) {
		if err := e.requireActive(); err != nil {
			resolve(err)
			return
		}
		e.stopShare(true)
		resolve(nil)
	})
}

// StartRecording buffers the local outgoing media and announces the
// recording to the room.
func (e *Engine) StartRecording(ctx context.Context) error {
	return e.do(ctx, func(resolve func(error)) {
		if err := e.requireActive(); err != nil {
			resolve(err)
			return
		}
		if e.recorder.Active() {
			resolve(nil)
			return
		}
		e.recorder.Start()
		resolve(e.send(domain.EventToggleRecording, domain.ActivePayload{Active: true}))
	})
}

// StopRecording stops the local buffer and announces it.
func (e *Engine) StopRecording(ctx context.Context) error {
	return e.do(ctx, func(resolve func(error)) {
		if err := e.requireActive(); err != nil {
			resolve(err)
			return
		}
		if !e.recorder.Active() {
			resolve(nil)
			return
		}
		e.recorder.Stop()
		resolve(e.send(domain.EventToggleRecording, domain.ActivePayload{Active: false}))
	})
}

// Recorder exposes the local recording buffer.
func (e *Engine) Recorder() *Recorder {
	return e.recorder
}

// Messages returns the locally observed ordered chat log.
func (e *Engine) Messages() []domain.ChatMessage {
	return e.chat.Messages()
}

func (e *Engine) State() RoomState {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snapState
}

func (e *Engine) Room() *domain.RoomInfo {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	if e.snapRoom == nil {
		return nil
	}
	room := *e.snapRoom
	return &room
}

func (e *Engine) Roster() []domain.ParticipantInfo {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	out := make([]domain.ParticipantInfo, len(e.snapRoster))
	copy(out, e.snapRoster)
	return out
}

func (e *Engine) User() *domain.User {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	if e.snapUser == nil {
		return nil
	}
	user := *e.snapUser
	return &user
}

// Close shuts the engine down and waits for the loop to finish.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
	})
	<-e.stopped
	return nil
}

// do posts fn onto the run loop and waits for its resolution. fn must call
// resolve exactly once, either inline or via a parked pendingOp.
func (e *Engine) do(ctx context.Context, fn func(resolve func(error))) error {
	errc := make(chan error, 1)
	resolve := func(err error) {
		select {
		case errc <- err:
		default:
		}
	}

	select {
	case e.cmds <- func() { fn(resolve) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.closed:
		return ErrEngineClosed
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.closed:
		return ErrEngineClosed
	}
}

// post queues fn for the run loop from another goroutine. Never call it
// from the loop itself.
func (e *Engine) post(fn func()) bool {
	select {
	case e.cmds <- fn:
		return true
	case <-e.closed:
		return false
	}
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.log.Debug("dropping event", "type", eventName(ev))
	}
}

func (e *Engine) park(op *pendingOp, timeout time.Duration) {
	op.timer = time.AfterFunc(timeout, func() {
		e.post(func() { e.pendingDeadline(op) })
	})
	e.pending = op
}

func (e *Engine) pendingDeadline(op *pendingOp) {
	if e.pending != op {
		return
	}
	kind := op.kind
	timeoutErr := op.timeoutErr
	e.resolvePending(timeoutErr)

	switch kind {
	case opCreate, opJoin:
		e.failedJoin()
	case opConnect:
		if e.channel != nil {
			e.channel.Close()
			e.setChannel(nil)
		}
	}
}

func (e *Engine) resolvePending(err error) {
	if e.pending == nil {
		return
	}
	op := e.pending
	e.pending = nil
	if op.timer != nil {
		op.timer.Stop()
	}
	op.resolve(err)
}

func (e *Engine) readyForRoomOp() error {
	if e.channel == nil || e.user == nil {
		return ErrNotConnected
	}
	if e.pending != nil {
		return ErrBusyOperation
	}
	if e.state != StateNone {
		return ErrAlreadyInRoom
	}
	return nil
}

func (e *Engine) requireActive() error {
	if e.channel == nil || e.user == nil {
		return ErrNotConnected
	}
	if e.state != StateActive || e.room == nil {
		return ErrNotInRoom
	}
	return nil
}

func (e *Engine) requireHost() error {
	if err := e.requireActive(); err != nil {
		return err
	}
	if e.room.HostID != e.user.ID {
		return domain.ErrForbidden
	}
	return nil
}

func (e *Engine) send(event string, payload any) error {
	if e.channel == nil {
		return ErrNotConnected
	}
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return e.channel.Send(env)
}

// handleEnvelope processes one relay event on the loop.
func (e *Engine) handleEnvelope(env domain.Envelope) {
	switch env.Event {
	case domain.EventUserRegistered:
		var p domain.UserPayload
		if err := env.Decode(&p); err != nil {
			e.log.Error("bad user_registered payload", sl.Err(err))
			return
		}
		e.handleRegistered(p.User)

	case domain.EventRoomCreated, domain.EventRoomJoined:
		var p domain.RoomPayload
		if err := env.Decode(&p); err != nil {
			e.log.Error("bad room payload", sl.Err(err))
			return
		}
		e.enterRoom(p.Room)

	case domain.EventRoomLeft:
		if e.pending != nil && e.pending.kind == opLeave {
			e.resolvePending(nil)
		}
		e.exitRoom()

	case domain.EventRoomClosed:
		var p domain.RoomIDPayload
		_ = env.Decode(&p)
		if e.pending != nil && e.pending.kind == opClose {
			e.resolvePending(nil)
		}
		if e.state != StateNone {
			e.exitRoom()
		}
		e.emit(RoomClosedEvent{RoomID: p.RoomID})

	case domain.EventJoinPending:
		if e.pending != nil && e.pending.kind == opJoin {
			if e.pending.timer != nil {
				e.pending.timer.Stop()
			}
			op := e.pending
			op.timeoutErr = ErrApprovalTimeout
			op.timer = time.AfterFunc(e.opts.ApprovalTimeout, func() {
				e.post(func() { e.pendingDeadline(op) })
			})
		}

	case domain.EventJoinRequested:
		var p domain.UserPayload
		if err := env.Decode(&p); err != nil {
			return
		}
		e.emit(JoinRequestEvent{User: p.User})

	case domain.EventParticipantsUpdated:
		var p domain.RosterPayload
		if err := env.Decode(&p); err != nil {
			e.log.Error("bad roster payload", sl.Err(err))
			return
		}
		e.applyRoster(p.Revision, p.Participants)

	case domain.EventSettingsUpdated:
		var p domain.SettingsPayload
		if err := env.Decode(&p); err != nil {
			return
		}
		if e.room != nil {
			e.room.Settings = p.Settings
			e.updateSnapshot()
		}
		e.emit(SettingsEvent{Settings: p.Settings})

	case domain.EventNewMessage:
		var p domain.MessagePayload
		if err := env.Decode(&p); err != nil {
			return
		}
		if e.chat.Apply(p.Message) {
			e.emit(ChatEvent{Message: p.Message})
		}

	case domain.EventChatHistory:
		var p domain.HistoryPayload
		if err := env.Decode(&p); err != nil {
			return
		}
		e.chat.ApplyHistory(p.Messages)
		if e.pending != nil && e.pending.kind == opHistory {
			if e.pending.onHistory != nil {
				e.pending.onHistory(p.Messages)
			}
			e.resolvePending(nil)
		}

	case domain.EventVideoToggled:
		var p domain.TogglePayload
		if err := env.Decode(&p); err != nil {
			return
		}
		e.applyMediaFlag(p.UserID, domain.MediaVideo, p.Enabled)

	case domain.EventAudioToggled:
		var p domain.TogglePayload
		if err := env.Decode(&p); err != nil {
			return
		}
		e.applyMediaFlag(p.UserID, domain.MediaAudio, p.Enabled)

	case domain.EventScreenShareToggled:
		var p domain.ActivePayload
		if err := env.Decode(&p); err != nil {
			return
		}
		e.applyMediaFlag(p.UserID, domain.MediaScreenShare, p.Active)

	case domain.EventRecordingToggled:
		var p domain.ActivePayload
		if err := env.Decode(&p); err != nil {
			return
		}
		if e.room != nil {
			e.room.RecordingActive = p.Active
			e.updateSnapshot()
		}
		e.emit(MediaFlagEvent{UserID: p.UserID, Kind: domain.MediaRecording, Active: p.Active})

	case domain.EventWebRTCOffer:
		var p domain.SignalPayload
		if err := env.Decode(&p); err != nil {
			return
		}
		if e.mesh == nil {
			return
		}
		if err := e.mesh.HandleOffer(p.SenderUserID, p.Offer, e.media.videoTrack(), e.media.audioTrack()); err != nil {
			e.log.Error("offer failed", sl.Err(err))
		}
		e.armLinkTimers()

	case domain.EventWebRTCAnswer:
		var p domain.SignalPayload
		if err := env.Decode(&p); err != nil {
			return
		}
		if e.mesh == nil {
			return
		}
		if err := e.mesh.HandleAnswer(p.SenderUserID, p.Answer); err != nil {
			e.log.Error("answer failed", sl.Err(err))
		}

	case domain.EventWebRTCICE:
		var p domain.SignalPayload
		if err := env.Decode(&p); err != nil {
			return
		}
		if e.mesh == nil {
			return
		}
		if err := e.mesh.HandleCandidate(p.SenderUserID, p.Candidate); err != nil {
			e.log.Error("candidate failed", sl.Err(err))
		}

	case domain.EventError:
		var p domain.ErrorPayload
		if err := env.Decode(&p); err != nil {
			return
		}
		e.handleRelayError(domain.ErrorFromCode(p.Code, p.Message))

	default:
		e.log.Debug("unhandled event", "type", env.Event)
	}
}

func (e *Engine) handleRegistered(user domain.User) {
	u := user
	e.user = &u
	e.updateSnapshot()

	if e.resumeRoom != uuid.Nil {
		if err := e.send(domain.EventJoinRoom, domain.JoinRoomPayload{RoomID: e.resumeRoom}); err != nil {
			e.abandonSession()
		}
		return
	}
	if e.pending != nil && e.pending.kind == opConnect {
		e.resolvePending(nil)
	}
}

func (e *Engine) handleRelayError(err error) {
	if e.resumeRoom != uuid.Nil {
		// resume was refused; the room is gone for us
		e.log.Warn("resume rejected", sl.Err(err))
		e.abandonSession()
		e.emit(ErrorEvent{Err: err})
		return
	}

	if e.pending != nil {
		kind := e.pending.kind
		e.resolvePending(err)
		if kind == opCreate || kind == opJoin {
			e.failedJoin()
		}
		if kind == opLeave || kind == opClose {
			e.setState(StateActive)
		}
		return
	}
	e.emit(ErrorEvent{Err: err})
}

// enterRoom applies a room_created/room_joined snapshot. An unsolicited
// room entry (timed-out join that the relay admitted anyway) is undone with
// an immediate leave.
func (e *Engine) enterRoom(info domain.RoomInfo) {
	resumed := e.resumeRoom != uuid.Nil && info.ID == e.resumeRoom
	e.resumeRoom = uuid.Nil
	e.reconnecting = false

	expecting := e.pending != nil && (e.pending.kind == opCreate || e.pending.kind == opJoin)
	if !expecting && !resumed {
		_ = e.send(domain.EventLeaveRoom, nil)
		return
	}

	room := info
	e.room = &room
	e.setState(StateActive)

	if e.mesh == nil {
		e.mesh = newMesh(e.user.ID, e.newConn, e.sendSignal, e.postTrack, e.postLinkState, e.log)
	}
	e.applyRoster(info.Revision, info.Participants)

	// Replay the room's chat log so the local view includes everything
	// sent before this entry. The reply merges by seq, so a resume only
	// fills the gap.
	_ = e.send(domain.EventChatHistory, nil)

	if expecting {
		if e.pending.onRoom != nil {
			e.pending.onRoom(info)
		}
		e.resolvePending(nil)
	}

	e.log.Info("room entered",
		"room_id", info.ID.String(),
		"revision", info.Revision,
		"participants", len(info.Participants),
	)
}

// applyRoster applies a roster revision: stale revisions are dropped, the
// mesh reconciles links, listeners get the event.
func (e *Engine) applyRoster(revision uint64, participants []domain.ParticipantInfo) {
	if revision <= e.revision {
		return
	}
	e.revision = revision
	e.roster = participants
	if e.room != nil {
		e.room.Revision = revision
		e.room.Participants = participants
	}
	e.updateSnapshot()

	if e.mesh != nil {
		e.mesh.SyncRoster(revision, participants, e.media.videoTrack(), e.media.audioTrack())
		e.armLinkTimers()
	}

	e.emit(RosterEvent{Revision: revision, Participants: participants})
}

func (e *Engine) applyMediaFlag(userID uuid.UUID, kind domain.MediaKind, active bool) {
	for i := range e.roster {
		if e.roster[i].UserID != userID {
			continue
		}
		switch kind {
		case domain.MediaVideo:
			e.roster[i].VideoEnabled = active
		case domain.MediaAudio:
			e.roster[i].AudioEnabled = active
		case domain.MediaScreenShare:
			e.roster[i].ScreenSharing = active
		}
		break
	}
	e.updateSnapshot()
	e.emit(MediaFlagEvent{UserID: userID, Kind: kind, Active: active})
}

// exitRoom drops all room-scoped state. The camera survives only while a
// recording runs; the recorder itself is never reset here.
func (e *Engine) exitRoom() {
	if e.mesh != nil {
		e.mesh.Reset()
		e.mesh = nil
	}
	for remote, t := range e.linkTimers {
		t.Stop()
		delete(e.linkTimers, remote)
	}
	e.stopShare(false)
	if !e.recorder.Active() && e.media.camera != nil {
		e.media.camera.Close()
		e.media.camera = nil
	}
	e.room = nil
	e.roster = nil
	e.revision = 0
	e.chat.Reset()
	e.resumeRoom = uuid.Nil
	e.setState(StateNone)
}

func (e *Engine) failedJoin() {
	e.setState(StateNone)
	if !e.recorder.Active() && e.media.camera != nil {
		e.media.camera.Close()
		e.media.camera = nil
	}
}

// handleChannelDown runs when the socket dies. An active room starts the
// bounded redial; peer links stay up the whole time.
func (e *Engine) handleChannelDown() {
	if e.channel == nil {
		return
	}
	e.channel.Close()
	e.drainChannelStates(e.channel)
	e.setChannel(nil)

	if e.pending != nil {
		kind := e.pending.kind
		e.resolvePending(ErrNotConnected)
		if kind == opCreate || kind == opJoin {
			e.failedJoin()
		}
	}

	switch e.state {
	case StateLeaving:
		e.exitRoom()
	case StateActive:
		if e.user == nil {
			e.exitRoom()
			return
		}
		e.reconnecting = true
		deadline := time.Now().Add(e.opts.ReconnectGrace)
		e.log.Warn("signaling lost, redialing", "grace", e.opts.ReconnectGrace.String())
		go e.redial(deadline)
	}
}

// drainChannelStates forwards whatever the dying channel reported before the
// engine detaches from it. The disconnect notification lands before incoming
// closes, so it is still in the stream here.
func (e *Engine) drainChannelStates(ch *Channel) {
	for {
		select {
		case state := <-ch.States():
			e.emit(ChannelEvent{State: state})
		default:
			return
		}
	}
}

func (e *Engine) redial(deadline time.Time) {
	for {
		select {
		case <-e.closed:
			return
		default:
		}
		if !time.Now().Before(deadline) {
			e.post(func() { e.abandonSession() })
			return
		}

		dialCtx, cancel := context.WithDeadline(context.Background(), deadline)
		ch := NewChannel(e.opts.ServerURL, e.log)
		err := ch.Dial(dialCtx)
		cancel()
		if err == nil {
			if !e.post(func() { e.resumeSession(ch) }) {
				ch.Close()
			}
			return
		}

		select {
		case <-e.closed:
			return
		case <-time.After(redialInterval):
		}
	}
}

// resumeSession re-registers the same identity and rejoins the room; the
// relay rebinds the surviving roster slot to the new socket.
func (e *Engine) resumeSession(ch *Channel) {
	if !e.reconnecting || e.channel != nil {
		ch.Close()
		return
	}
	e.setChannel(ch)

	if e.room != nil {
		e.resumeRoom = e.room.ID
	}
	if err := e.send(domain.EventJoinUser, domain.JoinUserPayload{
		UserID: e.user.ID,
		Name:   e.user.Name,
		Email:  e.user.Email,
	}); err != nil {
		e.abandonSession()
	}
}

func (e *Engine) abandonSession() {
	if !e.reconnecting {
		return
	}
	e.reconnecting = false

	var roomID uuid.UUID
	if e.room != nil {
		roomID = e.room.ID
	}
	e.exitRoom()
	if roomID != uuid.Nil {
		e.emit(RoomClosedEvent{RoomID: roomID})
	}
	e.log.Warn("session abandoned, rejoin required")
}

func (e *Engine) openCamera(ctx context.Context) error {
	if e.media.camera != nil || e.opts.MediaDevice == nil {
		return nil
	}
	stream, err := e.opts.MediaDevice.OpenStream(ctx)
	if err != nil {
		return err
	}
	e.media.camera = stream
	if t := stream.VideoTrack(); t != nil {
		t.SetTap(e.recorder.Write)
	}
	if t := stream.AudioTrack(); t != nil {
		t.SetTap(e.recorder.Write)
	}
	return nil
}

// stopShare closes the display stream and puts the camera back into the
// video slot of every link. The restored track is the same object that was
// there before the share started.
func (e *Engine) stopShare(announce bool) {
	if e.media.screen == nil {
		return
	}
	screen := e.media.screen
	e.media.screen = nil
	screen.Close()

	if camera := e.media.cameraVideo(); camera != nil {
		camera.SetTap(e.recorder.Write)
		if e.mesh != nil {
			_ = e.mesh.ReplaceVideo(camera.RTP())
		}
	}
	if announce && e.state == StateActive {
		_ = e.send(domain.EventToggleScreenShare, domain.ActivePayload{Active: false})
	}
}

func (e *Engine) watchScreen(stream *CaptureStream) {
	go func() {
		select {
		case <-stream.Done():
			e.post(func() {
				if e.media.screen == stream {
					e.stopShare(true)
				}
			})
		case <-e.closed:
		}
	}()
}

func (e *Engine) armLinkTimers() {
	if e.mesh == nil {
		return
	}
	for remote, state := range e.mesh.LinkStates() {
		if state == LinkConnecting {
			if _, ok := e.linkTimers[remote]; !ok {
				e.armLinkTimer(remote, e.opts.LinkConnectTimeout, LinkConnecting)
			}
		}
	}
}

func (e *Engine) armLinkTimer(remote uuid.UUID, timeout time.Duration, expect LinkState) {
	if t := e.linkTimers[remote]; t != nil {
		t.Stop()
	}
	e.linkTimers[remote] = time.AfterFunc(timeout, func() {
		e.post(func() { e.linkDeadline(remote, expect) })
	})
}

func (e *Engine) cancelLinkTimer(remote uuid.UUID) {
	if t := e.linkTimers[remote]; t != nil {
		t.Stop()
		delete(e.linkTimers, remote)
	}
}

// linkDeadline fires when a link sat in the expected state for the whole
// window: still connecting past the connect timeout, or still disconnected
// past the grace.
func (e *Engine) linkDeadline(remote uuid.UUID, expect LinkState) {
	delete(e.linkTimers, remote)
	if e.mesh == nil {
		return
	}
	link, ok := e.mesh.Link(remote)
	if !ok {
		return
	}
	if link.State() == expect {
		e.mesh.Teardown(remote)
		e.emit(LinkEvent{Remote: remote, State: LinkFailed})
		e.log.Warn("link deadline expired",
			"remote", remote.String(),
			"state", string(expect),
		)
	}
}

// handleLinkState runs on the loop with a pion state change.
func (e *Engine) handleLinkState(remote uuid.UUID, state webrtc.PeerConnectionState) {
	if e.mesh == nil {
		return
	}
	mapped := e.mesh.SetLinkState(remote, state)
	if mapped == "" {
		return
	}

	switch mapped {
	case LinkConnected:
		e.cancelLinkTimer(remote)
	case LinkDisconnected:
		e.armLinkTimer(remote, e.opts.LinkDisconnectGrace, LinkDisconnected)
	case LinkFailed, LinkClosed:
		e.cancelLinkTimer(remote)
	}
	e.emit(LinkEvent{Remote: remote, State: mapped})
}

func (e *Engine) shutdown() {
	if e.pending != nil {
		e.resolvePending(ErrEngineClosed)
	}
	e.exitRoom()
	e.media.closeAll()
	e.recorder.Stop()
	if e.channel != nil {
		e.channel.Close()
		e.setChannel(nil)
	}
}

// Mesh hooks. sendSignal and postTrack run on pion goroutines.

func (e *Engine) newConn() (peerConn, error) {
	return newPionConn(e.opts.ICEServers)
}

func (e *Engine) sendSignal(event string, payload domain.SignalPayload) error {
	ch := e.channelRef()
	if ch == nil {
		return ErrNotConnected
	}
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return ch.Send(env)
}

func (e *Engine) postTrack(remote uuid.UUID, track *webrtc.TrackRemote) {
	e.emit(RemoteTrackEvent{Remote: remote, Track: track})
}

func (e *Engine) postLinkState(remote uuid.UUID, state webrtc.PeerConnectionState) {
	e.post(func() { e.handleLinkState(remote, state) })
}

func (e *Engine) setChannel(ch *Channel) {
	e.channel = ch
	e.snapMu.Lock()
	e.snapChannel = ch
	e.snapMu.Unlock()
}

func (e *Engine) channelRef() *Channel {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snapChannel
}

func (e *Engine) setState(state RoomState) {
	e.state = state
	e.updateSnapshot()
}

func (e *Engine) updateSnapshot() {
	e.snapMu.Lock()
	e.snapState = e.state
	e.snapUser = e.user
	if e.room != nil {
		room := *e.room
		e.snapRoom = &room
	} else {
		e.snapRoom = nil
	}
	e.snapRoster = make([]domain.ParticipantInfo, len(e.roster))
	copy(e.snapRoster, e.roster)
	e.snapMu.Unlock()
}

func eventName(ev Event) string {
	switch ev.(type) {
	case RosterEvent:
		return "roster"
	case ChatEvent:
		return "chat"
	case SettingsEvent:
		return "settings"
	case MediaFlagEvent:
		return "media_flag"
	case LinkEvent:
		return "link"
	case RemoteTrackEvent:
		return "remote_track"
	case ChannelEvent:
		return "channel"
	case RoomClosedEvent:
		return "room_closed"
	case JoinRequestEvent:
		return "join_request"
	case ErrorEvent:
		return "error"
	default:
		return "unknown"
	}
}

package client

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	track    webrtc.TrackLocal
	replaced int
}

func (s *fakeSender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.track = track
	s.replaced++
	return nil
}

// fakeConn records the negotiation calls a PeerLink makes, so the tests can
// assert ordering without a network.
type fakeConn struct {
	localDesc  *webrtc.SessionDescription
	remoteDesc *webrtc.SessionDescription
	applied    []webrtc.ICECandidateInit
	senders    []*fakeSender
	closed     bool

	onICE   func(*webrtc.ICECandidate)
	onState func(webrtc.PeerConnectionState)
}

func (c *fakeConn) AddTrack(track webrtc.TrackLocal) (trackSender, error) {
	sender := &fakeSender{track: track}
	c.senders = append(c.senders, sender)
	return sender, nil
}

func (c *fakeConn) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (c *fakeConn) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (c *fakeConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	c.localDesc = &desc
	return nil
}

func (c *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	c.remoteDesc = &desc
	return nil
}

func (c *fakeConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	c.applied = append(c.applied, candidate)
	return nil
}

func (c *fakeConn) RemoteDescription() *webrtc.SessionDescription {
	return c.remoteDesc
}

func (c *fakeConn) OnICECandidate(f func(*webrtc.ICECandidate))               { c.onICE = f }
func (c *fakeConn) OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))    {}
func (c *fakeConn) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) { c.onState = f }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type sentSignal struct {
	event   string
	payload domain.SignalPayload
}

type meshHarness struct {
	mesh  *Mesh
	conns map[uuid.UUID]*fakeConn
	sent  []sentSignal
}

func newMeshHarness(t *testing.T, self uuid.UUID) *meshHarness {
	t.Helper()

	h := &meshHarness{conns: make(map[uuid.UUID]*fakeConn)}

	var pending []*fakeConn
	newConn := func() (peerConn, error) {
		conn := &fakeConn{}
		pending = append(pending, conn)
		return conn, nil
	}
	send := func(event string, payload domain.SignalPayload) error {
		h.sent = append(h.sent, sentSignal{event: event, payload: payload})
		// The connection handed out last belongs to the signal's target.
		if len(pending) > 0 {
			h.conns[payload.TargetUserID] = pending[len(pending)-1]
			pending = pending[:0]
		}
		return nil
	}

	h.mesh = newMesh(self, newConn, send,
		func(uuid.UUID, *webrtc.TrackRemote) {},
		func(uuid.UUID, webrtc.PeerConnectionState) {},
		nil,
	)
	return h
}

func roster(ids ...uuid.UUID) []domain.ParticipantInfo {
	out := make([]domain.ParticipantInfo, len(ids))
	for i, id := range ids {
		out[i] = domain.ParticipantInfo{UserID: id}
	}
	return out
}

func (h *meshHarness) signals(event string) []sentSignal {
	var out []sentSignal
	for _, s := range h.sent {
		if s.event == event {
			out = append(out, s)
		}
	}
	return out
}

func mustTrack(t *testing.T, kind domain.MediaKind) *LocalTrack {
	t.Helper()
	mime := webrtc.MimeTypeVP8
	if kind == domain.MediaAudio {
		mime = webrtc.MimeTypeOpus
	}
	track, err := NewLocalTrack(kind, webrtc.RTPCodecCapability{MimeType: mime}, string(kind), "test")
	require.NoError(t, err)
	return track
}

func TestMeshInitiatesTowardLaterMembers(t *testing.T) {
	self := uuid.New()
	b, c := uuid.New(), uuid.New()
	h := newMeshHarness(t, self)

	h.mesh.SyncRoster(1, roster(self, b, c), mustTrack(t, domain.MediaVideo), mustTrack(t, domain.MediaAudio))

	offers := h.signals(domain.EventWebRTCOffer)
	require.Len(t, offers, 2)
	targets := map[uuid.UUID]bool{offers[0].payload.TargetUserID: true, offers[1].payload.TargetUserID: true}
	require.True(t, targets[b])
	require.True(t, targets[c])
	require.Equal(t, 2, h.mesh.LinkCount())

	link, ok := h.mesh.Link(b)
	require.True(t, ok)
	require.True(t, link.Initiator())
	require.Len(t, h.conns[b].senders, 2)
}

func TestMeshNewcomerNeverInitiates(t *testing.T) {
	self := uuid.New()
	a, b := uuid.New(), uuid.New()
	h := newMeshHarness(t, self)

	// Self joined last: the earlier members offer, we answer.
	h.mesh.SyncRoster(3, roster(a, b, self), nil, nil)

	require.Empty(t, h.signals(domain.EventWebRTCOffer))
	require.Equal(t, 0, h.mesh.LinkCount())
}

func TestMeshStaleRosterIgnored(t *testing.T) {
	self := uuid.New()
	b := uuid.New()
	h := newMeshHarness(t, self)

	h.mesh.SyncRoster(5, roster(self, b), nil, nil)
	require.Equal(t, 1, h.mesh.LinkCount())

	// An older revision without b must not tear the link down.
	h.mesh.SyncRoster(4, roster(self), nil, nil)
	require.Equal(t, 1, h.mesh.LinkCount())
}

func TestMeshMemberLeaveClosesLink(t *testing.T) {
	self := uuid.New()
	b := uuid.New()
	h := newMeshHarness(t, self)

	h.mesh.SyncRoster(1, roster(self, b), nil, nil)
	conn := h.conns[b]
	require.NotNil(t, conn)

	h.mesh.SyncRoster(2, roster(self), nil, nil)
	require.Equal(t, 0, h.mesh.LinkCount())
	require.True(t, conn.closed)
}

func TestMeshAnswersOffer(t *testing.T) {
	self := uuid.New()
	a := uuid.New()
	h := newMeshHarness(t, self)
	h.mesh.SyncRoster(2, roster(a, self), nil, nil)

	offer, err := marshalSDP(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 remote"})
	require.NoError(t, err)

	require.NoError(t, h.mesh.HandleOffer(a, offer, nil, nil))

	answers := h.signals(domain.EventWebRTCAnswer)
	require.Len(t, answers, 1)
	require.Equal(t, a, answers[0].payload.TargetUserID)

	link, ok := h.mesh.Link(a)
	require.True(t, ok)
	require.False(t, link.Initiator())
	require.Equal(t, "v=0 remote", h.conns[a].remoteDesc.SDP)
}

func TestMeshDropsGlareOffer(t *testing.T) {
	self := uuid.New()
	b := uuid.New()
	h := newMeshHarness(t, self)
	h.mesh.SyncRoster(1, roster(self, b), nil, nil)
	sentBefore := len(h.sent)

	// b precedes us in nothing: we are the initiator, its offer is glare.
	offer, err := marshalSDP(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 glare"})
	require.NoError(t, err)
	require.NoError(t, h.mesh.HandleOffer(b, offer, nil, nil))

	require.Len(t, h.sent, sentBefore)
	link, _ := h.mesh.Link(b)
	require.True(t, link.Initiator())
}

func TestMeshIgnoresDuplicateOfferWhenConnected(t *testing.T) {
	self := uuid.New()
	a := uuid.New()
	h := newMeshHarness(t, self)
	h.mesh.SyncRoster(2, roster(a, self), nil, nil)

	offer, err := marshalSDP(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 remote"})
	require.NoError(t, err)
	require.NoError(t, h.mesh.HandleOffer(a, offer, nil, nil))

	first, _ := h.mesh.Link(a)
	h.mesh.SetLinkState(a, webrtc.PeerConnectionStateConnected)
	sentBefore := len(h.sent)

	require.NoError(t, h.mesh.HandleOffer(a, offer, nil, nil))

	again, ok := h.mesh.Link(a)
	require.True(t, ok)
	require.Same(t, first, again)
	require.Len(t, h.sent, sentBefore)
}

func TestMeshReofferRebuildsUnconnectedLink(t *testing.T) {
	self := uuid.New()
	a := uuid.New()
	h := newMeshHarness(t, self)
	h.mesh.SyncRoster(2, roster(a, self), nil, nil)

	offer, err := marshalSDP(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 remote"})
	require.NoError(t, err)
	require.NoError(t, h.mesh.HandleOffer(a, offer, nil, nil))

	first, _ := h.mesh.Link(a)
	firstConn := h.conns[a]

	require.NoError(t, h.mesh.HandleOffer(a, offer, nil, nil))
	second, ok := h.mesh.Link(a)
	require.True(t, ok)
	require.NotSame(t, first, second)
	require.True(t, firstConn.closed)
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	self := uuid.New()
	b := uuid.New()
	h := newMeshHarness(t, self)
	h.mesh.SyncRoster(1, roster(self, b), nil, nil)
	conn := h.conns[b]

	first := mustCandidate(t, "candidate:1")
	second := mustCandidate(t, "candidate:2")
	require.NoError(t, h.mesh.HandleCandidate(b, first))
	require.NoError(t, h.mesh.HandleCandidate(b, second))

	// No remote description yet: nothing may reach the connection.
	require.Empty(t, conn.applied)

	answer, err := marshalSDP(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"})
	require.NoError(t, err)
	require.NoError(t, h.mesh.HandleAnswer(b, answer))

	require.Len(t, conn.applied, 2)
	require.Equal(t, "candidate:1", conn.applied[0].Candidate)
	require.Equal(t, "candidate:2", conn.applied[1].Candidate)

	// After the description is set, candidates apply immediately.
	require.NoError(t, h.mesh.HandleCandidate(b, mustCandidate(t, "candidate:3")))
	require.Len(t, conn.applied, 3)
}

func TestCandidatesBeforeLinkExistsSurviveCreation(t *testing.T) {
	self := uuid.New()
	a := uuid.New()
	h := newMeshHarness(t, self)
	h.mesh.SyncRoster(2, roster(a, self), nil, nil)

	// The offerer's candidates can outrun its offer.
	require.NoError(t, h.mesh.HandleCandidate(a, mustCandidate(t, "candidate:early")))

	offer, err := marshalSDP(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 remote"})
	require.NoError(t, err)
	require.NoError(t, h.mesh.HandleOffer(a, offer, nil, nil))

	require.Len(t, h.conns[a].applied, 1)
	require.Equal(t, "candidate:early", h.conns[a].applied[0].Candidate)
}

func TestReplaceVideoKeepsSenderCount(t *testing.T) {
	self := uuid.New()
	b := uuid.New()
	h := newMeshHarness(t, self)

	camera := mustTrack(t, domain.MediaVideo)
	audio := mustTrack(t, domain.MediaAudio)
	h.mesh.SyncRoster(1, roster(self, b), camera, audio)
	conn := h.conns[b]
	require.Len(t, conn.senders, 2)

	screen := mustTrack(t, domain.MediaVideo)
	require.NoError(t, h.mesh.ReplaceVideo(screen.RTP()))

	require.Len(t, conn.senders, 2)
	require.Equal(t, 1, conn.senders[0].replaced)
	require.Same(t, screen.RTP(), conn.senders[0].track)
	require.Equal(t, 0, conn.senders[1].replaced)

	require.NoError(t, h.mesh.ReplaceVideo(camera.RTP()))
	require.Same(t, camera.RTP(), conn.senders[0].track)
}

func TestFailedLinkDiscarded(t *testing.T) {
	self := uuid.New()
	b := uuid.New()
	h := newMeshHarness(t, self)
	h.mesh.SyncRoster(1, roster(self, b), nil, nil)
	conn := h.conns[b]

	mapped := h.mesh.SetLinkState(b, webrtc.PeerConnectionStateFailed)
	require.Equal(t, LinkFailed, mapped)
	require.Equal(t, 0, h.mesh.LinkCount())
	require.True(t, conn.closed)

	// Later roster revision rebuilds the pair from scratch.
	h.mesh.SyncRoster(2, roster(self, b), nil, nil)
	require.Equal(t, 1, h.mesh.LinkCount())
}

func TestMeshReset(t *testing.T) {
	self := uuid.New()
	b, c := uuid.New(), uuid.New()
	h := newMeshHarness(t, self)
	h.mesh.SyncRoster(1, roster(self, b, c), nil, nil)

	h.mesh.Reset()
	require.Equal(t, 0, h.mesh.LinkCount())
	for _, conn := range h.conns {
		require.True(t, conn.closed)
	}
}

func mustCandidate(t *testing.T, candidate string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(webrtc.ICECandidateInit{Candidate: candidate})
	require.NoError(t, err)
	return raw
}

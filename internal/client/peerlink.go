package client

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

type LinkState string

const (
	LinkConnecting   LinkState = "connecting"
	LinkConnected    LinkState = "connected"
	LinkDisconnected LinkState = "disconnected"
	LinkFailed       LinkState = "failed"
	LinkClosed       LinkState = "closed"
)

// trackSender replaces the outgoing track on a negotiated sender slot.
// *webrtc.RTPSender satisfies it.
type trackSender interface {
	ReplaceTrack(track webrtc.TrackLocal) error
}

// peerConn is the slice of *webrtc.PeerConnection the link drives, split out
// so tests can negotiate against a fake.
type peerConn interface {
	AddTrack(track webrtc.TrackLocal) (trackSender, error)
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	RemoteDescription() *webrtc.SessionDescription
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	Close() error
}

// pionConn adapts *webrtc.PeerConnection to peerConn.
type pionConn struct {
	pc *webrtc.PeerConnection
}

func newPionConn(iceServers []string) (peerConn, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	})
	if err != nil {
		return nil, err
	}
	return &pionConn{pc: pc}, nil
}

func (c *pionConn) AddTrack(track webrtc.TrackLocal) (trackSender, error) {
	return c.pc.AddTrack(track)
}

func (c *pionConn) CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(options)
}

func (c *pionConn) CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(options)
}

func (c *pionConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(desc)
}

func (c *pionConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *pionConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

func (c *pionConn) RemoteDescription() *webrtc.SessionDescription {
	return c.pc.RemoteDescription()
}

func (c *pionConn) OnICECandidate(f func(*webrtc.ICECandidate)) {
	c.pc.OnICECandidate(f)
}

func (c *pionConn) OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.pc.OnTrack(f)
}

func (c *pionConn) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	c.pc.OnConnectionStateChange(f)
}

func (c *pionConn) Close() error {
	return c.pc.Close()
}

// PeerLink is the negotiation state against one remote. All methods run on
// the mesh owner's goroutine; pion callbacks hand their data back through
// the mesh instead of touching the link.
type PeerLink struct {
	remote    uuid.UUID
	conn      peerConn
	initiator bool
	state     LinkState
	createdAt time.Time

	videoSender trackSender
	audioSender trackSender

	// pendingICE buffers remote candidates that arrived before the remote
	// description; they are applied in arrival order once it lands.
	pendingICE []webrtc.ICECandidateInit
}

func newPeerLink(remote uuid.UUID, conn peerConn, initiator bool) *PeerLink {
	return &PeerLink{
		remote:    remote,
		conn:      conn,
		initiator: initiator,
		state:     LinkConnecting,
		createdAt: time.Now(),
	}
}

func (l *PeerLink) Remote() uuid.UUID {
	return l.remote
}

func (l *PeerLink) State() LinkState {
	return l.state
}

func (l *PeerLink) Initiator() bool {
	return l.initiator
}

// attachTracks adds the current local tracks. Later track switches go
// through replaceVideo; the sender set never changes after this.
func (l *PeerLink) attachTracks(video, audio *LocalTrack) error {
	if video != nil {
		sender, err := l.conn.AddTrack(video.RTP())
		if err != nil {
			return newNegotiationError(l.remote, "add video track", err)
		}
		l.videoSender = sender
	}
	if audio != nil {
		sender, err := l.conn.AddTrack(audio.RTP())
		if err != nil {
			return newNegotiationError(l.remote, "add audio track", err)
		}
		l.audioSender = sender
	}
	return nil
}

// createOffer produces and installs the local offer.
func (l *PeerLink) createOffer() (webrtc.SessionDescription, error) {
	offer, err := l.conn.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, newNegotiationError(l.remote, "create offer", err)
	}
	if err := l.conn.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, newNegotiationError(l.remote, "set local description", err)
	}
	return offer, nil
}

// acceptOffer installs the remote offer, flushes buffered candidates and
// produces the local answer.
func (l *PeerLink) acceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := l.conn.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, newNegotiationError(l.remote, "set remote offer", err)
	}
	if err := l.flushCandidates(); err != nil {
		return webrtc.SessionDescription{}, err
	}

	answer, err := l.conn.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, newNegotiationError(l.remote, "create answer", err)
	}
	if err := l.conn.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, newNegotiationError(l.remote, "set local description", err)
	}
	return answer, nil
}

// acceptAnswer installs the remote answer and flushes buffered candidates.
func (l *PeerLink) acceptAnswer(answer webrtc.SessionDescription) error {
	if err := l.conn.SetRemoteDescription(answer); err != nil {
		return newNegotiationError(l.remote, "set remote answer", err)
	}
	return l.flushCandidates()
}

// addCandidate applies a remote candidate, or buffers it while the remote
// description is still missing.
func (l *PeerLink) addCandidate(candidate webrtc.ICECandidateInit) error {
	if l.conn.RemoteDescription() == nil {
		l.pendingICE = append(l.pendingICE, candidate)
		return nil
	}
	if err := l.conn.AddICECandidate(candidate); err != nil {
		return newNegotiationError(l.remote, "add ice candidate", err)
	}
	return nil
}

func (l *PeerLink) flushCandidates() error {
	for _, candidate := range l.pendingICE {
		if err := l.conn.AddICECandidate(candidate); err != nil {
			l.pendingICE = nil
			return newNegotiationError(l.remote, "flush ice candidate", err)
		}
	}
	l.pendingICE = nil
	return nil
}

// replaceVideo swaps the outgoing video without renegotiation.
func (l *PeerLink) replaceVideo(track webrtc.TrackLocal) error {
	if l.videoSender == nil {
		return nil
	}
	if err := l.videoSender.ReplaceTrack(track); err != nil {
		return newNegotiationError(l.remote, "replace video track", err)
	}
	return nil
}

func (l *PeerLink) close() {
	if l.state == LinkClosed {
		return
	}
	l.state = LinkClosed
	_ = l.conn.Close()
}

func marshalSDP(desc webrtc.SessionDescription) (json.RawMessage, error) {
	return json.Marshal(desc)
}

func unmarshalSDP(raw json.RawMessage) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	err := json.Unmarshal(raw, &desc)
	return desc, err
}

func marshalCandidate(candidate *webrtc.ICECandidate) (json.RawMessage, error) {
	return json.Marshal(candidate.ToJSON())
}

func unmarshalCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var candidate webrtc.ICECandidateInit
	err := json.Unmarshal(raw, &candidate)
	return candidate, err
}

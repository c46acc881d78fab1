package client

import (
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/huddlekit/huddle/lib/logger/sl"
	"github.com/pion/webrtc/v4"
)

// Mesh keeps exactly one PeerLink per other room member. It is owned by the
// engine loop; the send/onTrack/onState hooks are invoked from pion
// goroutines and must be safe to call from anywhere.
type Mesh struct {
	self    uuid.UUID
	newConn func() (peerConn, error)
	send    func(event string, payload domain.SignalPayload) error
	onTrack func(remote uuid.UUID, track *webrtc.TrackRemote)
	onState func(remote uuid.UUID, state webrtc.PeerConnectionState)
	log     *slog.Logger

	revision   uint64
	order      map[uuid.UUID]int
	links      map[uuid.UUID]*PeerLink
	pendingICE map[uuid.UUID][]webrtc.ICECandidateInit
}

func newMesh(
	self uuid.UUID,
	newConn func() (peerConn, error),
	send func(event string, payload domain.SignalPayload) error,
	onTrack func(remote uuid.UUID, track *webrtc.TrackRemote),
	onState func(remote uuid.UUID, state webrtc.PeerConnectionState),
	log *slog.Logger,
) *Mesh {
	if log == nil {
		log = slog.Default()
	}
	return &Mesh{
		self:       self,
		newConn:    newConn,
		send:       send,
		onTrack:    onTrack,
		onState:    onState,
		log:        log,
		links:      make(map[uuid.UUID]*PeerLink),
		pendingICE: make(map[uuid.UUID][]webrtc.ICECandidateInit),
	}
}

// SyncRoster reconciles links against a roster revision. Members that left
// lose their link; toward new members the side with the smaller roster index
// initiates, so the pair never offers to each other at the same time. Stale
// revisions are ignored.
func (m *Mesh) SyncRoster(revision uint64, roster []domain.ParticipantInfo, video, audio *LocalTrack) {
	if revision <= m.revision {
		return
	}
	m.revision = revision

	m.order = make(map[uuid.UUID]int, len(roster))
	for i, p := range roster {
		m.order[p.UserID] = i
	}

	for remote, link := range m.links {
		if _, ok := m.order[remote]; !ok {
			link.close()
			delete(m.links, remote)
			delete(m.pendingICE, remote)
			m.log.Debug("link closed, member left", "remote", remote.String())
		}
	}

	selfIdx, ok := m.order[m.self]
	if !ok {
		return
	}

	for _, p := range roster {
		remote := p.UserID
		if remote == m.self {
			continue
		}
		if _, exists := m.links[remote]; exists {
			continue
		}
		if selfIdx < m.order[remote] {
			if err := m.initiate(remote, video, audio); err != nil {
				m.log.Error("failed to initiate link", "remote", remote.String(), sl.Err(err))
			}
		}
	}
}

func (m *Mesh) initiate(remote uuid.UUID, video, audio *LocalTrack) error {
	link, err := m.createLink(remote, true, video, audio)
	if err != nil {
		return err
	}

	offer, err := link.createOffer()
	if err != nil {
		m.Teardown(remote)
		return err
	}
	raw, err := marshalSDP(offer)
	if err != nil {
		m.Teardown(remote)
		return newNegotiationError(remote, "encode offer", err)
	}
	if err := m.send(domain.EventWebRTCOffer, domain.SignalPayload{TargetUserID: remote, Offer: raw}); err != nil {
		m.Teardown(remote)
		return newNegotiationError(remote, "send offer", err)
	}
	return nil
}

func (m *Mesh) createLink(remote uuid.UUID, initiator bool, video, audio *LocalTrack) (*PeerLink, error) {
	conn, err := m.newConn()
	if err != nil {
		return nil, newNegotiationError(remote, "create peer connection", err)
	}
	link := newPeerLink(remote, conn, initiator)

	conn.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		raw, err := marshalCandidate(candidate)
		if err != nil {
			return
		}
		_ = m.send(domain.EventWebRTCICE, domain.SignalPayload{TargetUserID: remote, Candidate: raw})
	})
	conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.onTrack(remote, track)
	})
	conn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.onState(remote, state)
	})

	if err := link.attachTracks(video, audio); err != nil {
		link.close()
		return nil, err
	}

	// Candidates that raced ahead of the link move into its buffer.
	if buffered := m.pendingICE[remote]; len(buffered) > 0 {
		link.pendingICE = append(link.pendingICE, buffered...)
		delete(m.pendingICE, remote)
	}

	m.links[remote] = link
	return link, nil
}

// HandleOffer answers a remote offer. An offer from a remote we precede in
// roster order is glare and gets dropped; our own offer stands. A redelivered
// offer for a connected link is ignored; a re-offer for a link that never
// made it replaces the previous link from scratch.
func (m *Mesh) HandleOffer(remote uuid.UUID, raw json.RawMessage, video, audio *LocalTrack) error {
	selfIdx, selfOk := m.order[m.self]
	remoteIdx, remoteOk := m.order[remote]
	if selfOk && remoteOk && selfIdx < remoteIdx {
		m.log.Debug("dropping offer from later member", "remote", remote.String())
		return nil
	}

	offer, err := unmarshalSDP(raw)
	if err != nil {
		return newNegotiationError(remote, "decode offer", err)
	}

	if link, ok := m.links[remote]; ok {
		if link.state == LinkConnected {
			m.log.Debug("ignoring duplicate offer on connected link", "remote", remote.String())
			return nil
		}
		link.close()
		delete(m.links, remote)
	}

	link, err := m.createLink(remote, false, video, audio)
	if err != nil {
		return err
	}

	answer, err := link.acceptOffer(offer)
	if err != nil {
		m.Teardown(remote)
		return err
	}
	rawAnswer, err := marshalSDP(answer)
	if err != nil {
		m.Teardown(remote)
		return newNegotiationError(remote, "encode answer", err)
	}
	if err := m.send(domain.EventWebRTCAnswer, domain.SignalPayload{TargetUserID: remote, Answer: rawAnswer}); err != nil {
		m.Teardown(remote)
		return newNegotiationError(remote, "send answer", err)
	}
	return nil
}

func (m *Mesh) HandleAnswer(remote uuid.UUID, raw json.RawMessage) error {
	link, ok := m.links[remote]
	if !ok || !link.initiator {
		m.log.Debug("dropping unexpected answer", "remote", remote.String())
		return nil
	}

	answer, err := unmarshalSDP(raw)
	if err != nil {
		return newNegotiationError(remote, "decode answer", err)
	}
	if err := link.acceptAnswer(answer); err != nil {
		m.Teardown(remote)
		return err
	}
	return nil
}

func (m *Mesh) HandleCandidate(remote uuid.UUID, raw json.RawMessage) error {
	candidate, err := unmarshalCandidate(raw)
	if err != nil {
		return newNegotiationError(remote, "decode candidate", err)
	}

	link, ok := m.links[remote]
	if !ok {
		m.pendingICE[remote] = append(m.pendingICE[remote], candidate)
		return nil
	}
	if err := link.addCandidate(candidate); err != nil {
		m.Teardown(remote)
		return err
	}
	return nil
}

// SetLinkState records a pion connection state change and returns the
// mapped link state, or "" when the remote has no link. Failed links are
// discarded so the next roster event rebuilds them from scratch.
func (m *Mesh) SetLinkState(remote uuid.UUID, state webrtc.PeerConnectionState) LinkState {
	link, ok := m.links[remote]
	if !ok {
		return ""
	}

	var mapped LinkState
	switch state {
	case webrtc.PeerConnectionStateNew, webrtc.PeerConnectionStateConnecting:
		mapped = LinkConnecting
	case webrtc.PeerConnectionStateConnected:
		mapped = LinkConnected
	case webrtc.PeerConnectionStateDisconnected:
		mapped = LinkDisconnected
	case webrtc.PeerConnectionStateFailed:
		mapped = LinkFailed
	case webrtc.PeerConnectionStateClosed:
		mapped = LinkClosed
	default:
		return ""
	}

	link.state = mapped
	if mapped == LinkFailed {
		m.Teardown(remote)
	}
	return mapped
}

// ReplaceVideo swaps the video slot track on every link without
// renegotiation. A link that refuses the swap is torn down.
func (m *Mesh) ReplaceVideo(track webrtc.TrackLocal) error {
	var firstErr error
	for remote, link := range m.links {
		if err := link.replaceVideo(track); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			m.log.Error("failed to replace video track", "remote", remote.String(), sl.Err(err))
			m.Teardown(remote)
		}
	}
	return firstErr
}

func (m *Mesh) Teardown(remote uuid.UUID) {
	if link, ok := m.links[remote]; ok {
		link.close()
		delete(m.links, remote)
	}
	delete(m.pendingICE, remote)
}

// Reset closes every link, for leaving the room.
func (m *Mesh) Reset() {
	for remote, link := range m.links {
		link.close()
		delete(m.links, remote)
	}
	m.pendingICE = make(map[uuid.UUID][]webrtc.ICECandidateInit)
	m.order = nil
	m.revision = 0
}

func (m *Mesh) Link(remote uuid.UUID) (*PeerLink, bool) {
	link, ok := m.links[remote]
	return link, ok
}

func (m *Mesh) LinkCount() int {
	return len(m.links)
}

// LinkStates snapshots the state of every live link.
func (m *Mesh) LinkStates() map[uuid.UUID]LinkState {
	out := make(map[uuid.UUID]LinkState, len(m.links))
	for remote, link := range m.links {
		out[remote] = link.state
	}
	return out
}

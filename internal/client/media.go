package client

import (
	"context"
	"sync"

	"github.com/huddlekit/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// MediaDevice supplies the camera/microphone capture stream. Implementations
// wrap failures in DeviceError with ErrPermissionDenied or
// ErrDeviceUnavailable underneath.
type MediaDevice interface {
	OpenStream(ctx context.Context) (*CaptureStream, error)
}

// DisplayDevice supplies the screen capture stream for sharing.
type DisplayDevice interface {
	OpenStream(ctx context.Context) (*CaptureStream, error)
}

// LocalTrack is an outgoing media track with a mute gate. Disabled tracks
// swallow samples instead of detaching, so the sender count on every peer
// link stays constant across toggles.
type LocalTrack struct {
	kind  domain.MediaKind
	track *webrtc.TrackLocalStaticSample

	mu      sync.RWMutex
	enabled bool
	tap     func(kind domain.MediaKind, sample media.Sample)
}

func NewLocalTrack(kind domain.MediaKind, codec webrtc.RTPCodecCapability, id, streamID string) (*LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, err
	}
	return &LocalTrack{kind: kind, track: track, enabled: true}, nil
}

// WriteSample forwards one captured sample to the RTP track.
func (t *LocalTrack) WriteSample(sample media.Sample) error {
	t.mu.RLock()
	enabled := t.enabled
	tap := t.tap
	t.mu.RUnlock()

	if !enabled {
		return nil
	}
	if tap != nil {
		tap(t.kind, sample)
	}
	return t.track.WriteSample(sample)
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *LocalTrack) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// SetTap installs an observer for outgoing samples; the recorder uses this.
func (t *LocalTrack) SetTap(tap func(domain.MediaKind, media.Sample)) {
	t.mu.Lock()
	t.tap = tap
	t.mu.Unlock()
}

func (t *LocalTrack) Kind() domain.MediaKind {
	return t.kind
}

// RTP exposes the underlying track for AddTrack/ReplaceTrack.
func (t *LocalTrack) RTP() webrtc.TrackLocal {
	return t.track
}

// CaptureStream is one live capture source. The owning device pumps samples
// into the tracks until Close releases it; Done fires when the source ends
// on its own, which is how OS-level "stop sharing" reaches the engine.
type CaptureStream struct {
	video *LocalTrack
	audio *LocalTrack
	stop  func()

	once sync.Once
	done chan struct{}
}

func NewCaptureStream(video, audio *LocalTrack, stop func()) *CaptureStream {
	return &CaptureStream{
		video: video,
		audio: audio,
		stop:  stop,
		done:  make(chan struct{}),
	}
}

func (s *CaptureStream) VideoTrack() *LocalTrack {
	return s.video
}

func (s *CaptureStream) AudioTrack() *LocalTrack {
	return s.audio
}

// Done fires when the capture source ends, either via Close or on its own.
func (s *CaptureStream) Done() <-chan struct{} {
	return s.done
}

// Close releases the device. Safe to call more than once.
func (s *CaptureStream) Close() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		close(s.done)
	})
}

// mediaSession tracks which capture streams are live and which track holds
// the video slot. It is owned by the engine loop; LocalTrack carries its own
// lock for the capture goroutines.
type mediaSession struct {
	camera *CaptureStream
	screen *CaptureStream
}

// videoTrack is whatever currently feeds the video slot: the screen while
// sharing, the camera otherwise.
func (m *mediaSession) videoTrack() *LocalTrack {
	if m.screen != nil {
		return m.screen.VideoTrack()
	}
	if m.camera != nil {
		return m.camera.VideoTrack()
	}
	return nil
}

func (m *mediaSession) cameraVideo() *LocalTrack {
	if m.camera == nil {
		return nil
	}
	return m.camera.VideoTrack()
}

func (m *mediaSession) audioTrack() *LocalTrack {
	if m.camera == nil {
		return nil
	}
	return m.camera.AudioTrack()
}

func (m *mediaSession) sharing() bool {
	return m.screen != nil
}

func (m *mediaSession) closeAll() {
	if m.screen != nil {
		m.screen.Close()
		m.screen = nil
	}
	if m.camera != nil {
		m.camera.Close()
		m.camera = nil
	}
}

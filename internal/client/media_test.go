package client

import (
	"context"
	"testing"
	"time"

	"github.com/huddlekit/huddle/internal/domain"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/require"
)

func TestLocalTrackToggleGatesSamples(t *testing.T) {
	track := mustTrack(t, domain.MediaVideo)

	var taps int
	track.SetTap(func(domain.MediaKind, media.Sample) { taps++ })

	require.True(t, track.Enabled())
	// Unbound tracks discard writes but still pass the tap; the error from
	// the pion layer is irrelevant here.
	_ = track.WriteSample(media.Sample{Data: []byte("on")})
	require.Equal(t, 1, taps)

	track.SetEnabled(false)
	require.False(t, track.Enabled())
	_ = track.WriteSample(media.Sample{Data: []byte("off")})
	require.Equal(t, 1, taps)

	track.SetEnabled(true)
	_ = track.WriteSample(media.Sample{Data: []byte("on again")})
	require.Equal(t, 2, taps)
}

func TestCaptureStreamCloseIsIdempotent(t *testing.T) {
	stops := 0
	stream := NewCaptureStream(nil, nil, func() { stops++ })

	select {
	case <-stream.Done():
		t.Fatal("done fired before close")
	default:
	}

	stream.Close()
	stream.Close()
	require.Equal(t, 1, stops)

	select {
	case <-stream.Done():
	default:
		t.Fatal("done not fired after close")
	}
}

func TestMediaSessionVideoSlotPrefersScreen(t *testing.T) {
	camera := mustTrack(t, domain.MediaVideo)
	audio := mustTrack(t, domain.MediaAudio)
	screen := mustTrack(t, domain.MediaVideo)

	session := mediaSession{}
	require.Nil(t, session.videoTrack())
	require.Nil(t, session.audioTrack())

	session.camera = NewCaptureStream(camera, audio, nil)
	require.Same(t, camera, session.videoTrack())
	require.Same(t, camera, session.cameraVideo())
	require.Same(t, audio, session.audioTrack())
	require.False(t, session.sharing())

	session.screen = NewCaptureStream(screen, nil, nil)
	require.True(t, session.sharing())
	require.Same(t, screen, session.videoTrack())
	// The camera keeps the audio slot and stays retrievable for restore.
	require.Same(t, camera, session.cameraVideo())
	require.Same(t, audio, session.audioTrack())

	session.screen = nil
	require.Same(t, camera, session.videoTrack())
}

func TestSyntheticDevicePumpsSamples(t *testing.T) {
	device := &SyntheticDevice{FrameInterval: 5 * time.Millisecond, WithAudio: true}

	stream, err := device.OpenStream(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	require.NotNil(t, stream.VideoTrack())
	require.NotNil(t, stream.AudioTrack())

	var taps int
	done := make(chan struct{})
	stream.VideoTrack().SetTap(func(domain.MediaKind, media.Sample) {
		taps++
		if taps == 3 {
			close(done)
		}
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("synthetic device produced no samples")
	}
}

func TestSyntheticDeviceHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	device := &SyntheticDevice{}
	_, err := device.OpenStream(ctx)
	require.Error(t, err)

	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
}

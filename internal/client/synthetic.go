package client

import (
	"context"
	"time"

	"github.com/huddlekit/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// SyntheticDevice generates blank frames at a fixed rate. It stands in for
// capture hardware in the CLI and in tests; the payload is opaque to the
// pipeline, only the sample plumbing matters.
type SyntheticDevice struct {
	Label         string
	FrameInterval time.Duration
	WithAudio     bool
}

func (d *SyntheticDevice) OpenStream(ctx context.Context) (*CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, newDeviceError("open synthetic stream", err)
	}

	interval := d.FrameInterval
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	label := d.Label
	if label == "" {
		label = "synthetic"
	}

	video, err := NewLocalTrack(domain.MediaVideo,
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		label+"-video", label)
	if err != nil {
		return nil, newDeviceError("open synthetic video", err)
	}

	var audio *LocalTrack
	if d.WithAudio {
		audio, err = NewLocalTrack(domain.MediaAudio,
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			label+"-audio", label)
		if err != nil {
			return nil, newDeviceError("open synthetic audio", err)
		}
	}

	stopped := make(chan struct{})
	stream := NewCaptureStream(video, audio, func() { close(stopped) })

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		frame := make([]byte, 1024)
		for {
			select {
			case <-stopped:
				return
			case <-ticker.C:
				_ = video.WriteSample(media.Sample{Data: frame, Duration: interval})
				if audio != nil {
					_ = audio.WriteSample(media.Sample{Data: frame[:160], Duration: interval})
				}
			}
		}
	}()

	return stream, nil
}

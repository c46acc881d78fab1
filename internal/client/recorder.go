package client

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/huddlekit/huddle/internal/domain"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/vmihailenco/msgpack/v5"
)

// Chunk is one recorded outgoing sample, msgpack-framed so a stream of
// chunks can be decoded back one by one.
type Chunk struct {
	Kind      string        `msgpack:"kind"`
	Seq       uint64        `msgpack:"seq"`
	Timestamp time.Time     `msgpack:"timestamp"`
	Duration  time.Duration `msgpack:"duration"`
	Data      []byte        `msgpack:"data"`
}

// Recorder buffers the local outgoing media while active. It taps
// LocalTrack writes, so muted tracks record nothing, same as the wire.
type Recorder struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	enc    *msgpack.Encoder
	seq    uint64
	chunks int
	active bool
}

func NewRecorder() *Recorder {
	r := &Recorder{}
	r.enc = msgpack.NewEncoder(&r.buf)
	return r
}

func (r *Recorder) Start() {
	r.mu.Lock()
	r.active = true
	r.mu.Unlock()
}

func (r *Recorder) Stop() {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()
}

func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Write appends one sample when recording. It matches the LocalTrack tap
// signature.
func (r *Recorder) Write(kind domain.MediaKind, sample media.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return
	}

	r.seq++
	chunk := Chunk{
		Kind:      string(kind),
		Seq:       r.seq,
		Timestamp: time.Now().UTC(),
		Duration:  sample.Duration,
		Data:      sample.Data,
	}
	if err := r.enc.Encode(&chunk); err != nil {
		return
	}
	r.chunks++
}

// Chunks reports how many samples were captured.
func (r *Recorder) Chunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks
}

// Bytes returns the encoded recording so far.
func (r *Recorder) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, r.buf.Len())
	copy(out, r.buf.Bytes())
	return out
}

// DecodeChunks reads back every chunk from an encoded recording.
func DecodeChunks(data []byte) ([]Chunk, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))

	var chunks []Chunk
	for {
		var chunk Chunk
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// ABOUTME: PCM audio encoder
// ABOUTME: Packs frames into interleaved little-endian int16 bytes using a fixed buffer
package encode

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
)

// ErrClosed is returned by Encode after Close
var ErrClosed = errors.New("encoder closed")

// PCM16 converts chunks into int16 little-endian bytes
type PCM16 struct {
	channels  int
	maxFrames int
	samples   []int16
	out       []byte
}

// NewPCM16 allocates a conversion buffer of maxFrames*channels samples
func NewPCM16(format audio.Format, maxFrames int) (*PCM16, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if format.Encoding != audio.EncodingInt16 {
		return nil, fmt.Errorf("unsupported encoding for PCM16 encoder: %s", format.Encoding)
	}
	if maxFrames <= 0 {
		return nil, fmt.Errorf("frame budget must be positive, got %d", maxFrames)
	}

	n := maxFrames * format.Channels
	return &PCM16{
		channels:  format.Channels,
		maxFrames: maxFrames,
		samples:   make([]int16, n),
		out:       make([]byte, n*2),
	}, nil
}

// Capacity returns the conversion buffer size in samples
func (e *PCM16) Capacity() int {
	return len(e.samples)
}

// MaxFrames returns the frame budget the buffer was sized for
func (e *PCM16) MaxFrames() int {
	return e.maxFrames
}

// Encode clamps each sample to int16 and packs the chunk in frame order
func (e *PCM16) Encode(chunk audio.Chunk) ([]byte, error) {
	if e.samples == nil {
		return nil, ErrClosed
	}
	if err := chunk.Validate(e.channels, e.maxFrames); err != nil {
		return nil, err
	}

	n := 0
	for _, frame := range chunk {
		for _, s := range frame {
			e.samples[n] = audio.ClampInt16(s)
			n++
		}
	}

	out := e.out[:n*2]
	for i, s := range e.samples[:n] {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out, nil
}

// Close releases the conversion buffer
func (e *PCM16) Close() error {
	e.samples = nil
	e.out = nil
	return nil
}

// Int16LE packs already-interleaved samples without a reusable buffer
func Int16LE(samples []int32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(audio.ClampInt16(s)))
	}
	return out
}

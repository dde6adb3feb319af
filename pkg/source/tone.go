// ABOUTME: Sine tone producer
// ABOUTME: Generates a test tone at a fixed format, optionally for a bounded number of frames
package source

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/Resonate-Protocol/ringfeed/pkg/feed"
)

const (
	DefaultFrequency = 440.0 // A4
	DefaultAmplitude = 0.5
)

// ToneConfig holds tone generator configuration
type ToneConfig struct {
	// Format of the generated frames; only int16 is produced
	Format audio.Format

	// Frequency in Hz (default: 440)
	Frequency float64

	// Amplitude as a fraction of full scale (default: 0.5)
	Amplitude float64

	// Frames limits the tone length; 0 plays forever
	Frames int64
}

// Tone generates a sine wave duplicated to every channel
type Tone struct {
	mu        sync.Mutex
	format    audio.Format
	frequency float64
	amplitude float64
	limit     int64
	index     int64
}

// NewTone creates a tone producer
func NewTone(config ToneConfig) (*Tone, error) {
	if err := config.Format.Validate(); err != nil {
		return nil, err
	}
	if config.Format.Encoding != audio.EncodingInt16 {
		return nil, fmt.Errorf("tone only produces int16, got %s", config.Format.Encoding)
	}
	if config.Frequency <= 0 {
		config.Frequency = DefaultFrequency
	}
	if config.Amplitude <= 0 || config.Amplitude > 1 {
		config.Amplitude = DefaultAmplitude
	}

	return &Tone{
		format:    config.Format,
		frequency: config.Frequency,
		amplitude: config.Amplitude,
		limit:     config.Frames,
	}, nil
}

// Format returns the format of generated frames
func (t *Tone) Format() audio.Format {
	return t.format
}

// Pull generates up to frames frames; a bounded tone ends with feed.ErrDone
func (t *Tone) Pull(ctx context.Context, frames int) (audio.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n := int64(frames)
	if t.limit > 0 {
		if t.index >= t.limit {
			return nil, feed.ErrDone
		}
		n = min(n, t.limit-t.index)
	}

	channels := t.format.Channels
	samples := make([]int32, int(n)*channels)
	scale := t.amplitude * audio.MaxInt16
	for i := range int(n) {
		at := float64(t.index+int64(i)) / float64(t.format.SampleRate)
		value := int32(math.Sin(2*math.Pi*t.frequency*at) * scale)
		for ch := range channels {
			samples[i*channels+ch] = value
		}
	}
	t.index += n

	return audio.Interleave(samples, channels), nil
}

// Position returns how many frames have been generated
func (t *Tone) Position() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index
}

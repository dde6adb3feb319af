// ABOUTME: Linear interpolation resampler for frame chunks
// ABOUTME: Carries the last input frame across chunks so a stream resamples without seams
package resample

import (
	"fmt"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
)

// Resampler converts a stream of frames from one sample rate to another
type Resampler struct {
	from     int
	to       int
	channels int
	step     float64 // input frames per output frame
	pos      float64 // read position, relative to prev when set
	prev     audio.Frame
}

// New creates a resampler
func New(from, to, channels int) (*Resampler, error) {
	if from <= 0 || to <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid resampler parameters: %dHz -> %dHz, %d channels", from, to, channels)
	}
	return &Resampler{
		from:     from,
		to:       to,
		channels: channels,
		step:     float64(from) / float64(to),
	}, nil
}

// Step returns how many input frames one output frame advances
func (r *Resampler) Step() float64 {
	return r.step
}

// Process resamples in; the output may be one frame longer or shorter than the
// rate ratio suggests since the last input frame is held for the next call
func (r *Resampler) Process(in audio.Chunk) audio.Chunk {
	if len(in) == 0 {
		return nil
	}

	seq := in
	if r.prev != nil {
		seq = make(audio.Chunk, 0, len(in)+1)
		seq = append(seq, r.prev)
		seq = append(seq, in...)
	}

	out := make(audio.Chunk, 0, int(float64(len(seq))/r.step)+1)
	for {
		i := int(r.pos)
		if i+1 >= len(seq) {
			break
		}
		frac := r.pos - float64(i)
		a, b := seq[i], seq[i+1]

		frame := make(audio.Frame, r.channels)
		for ch := range frame {
			frame[ch] = int32(float64(a[ch])*(1-frac) + float64(b[ch])*frac)
		}
		out = append(out, frame)
		r.pos += r.step
	}

	r.pos -= float64(len(seq) - 1)
	r.prev = append(audio.Frame(nil), seq[len(seq)-1]...)
	return out
}

// Reset forgets the carried frame and position
func (r *Resampler) Reset() {
	r.pos = 0
	r.prev = nil
}

// ABOUTME: MP3 stream decoder
// ABOUTME: Decodes MP3 files to stereo int16 frames using go-mp3
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Stream decodes an MP3 file frame by frame
type MP3Stream struct {
	src     io.ReadCloser
	decoder *mp3.Decoder
	format  audio.Format
	buf     []byte
}

// NewMP3Stream wraps src; go-mp3 always outputs stereo 16-bit
func NewMP3Stream(src io.ReadCloser) (*MP3Stream, error) {
	decoder, err := mp3.NewDecoder(src)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	return &MP3Stream{
		src:     src,
		decoder: decoder,
		format: audio.Format{
			Channels:   2,
			SampleRate: decoder.SampleRate(),
			Encoding:   audio.EncodingInt16,
		},
	}, nil
}

// Format returns the decoded stream format
func (s *MP3Stream) Format() audio.Format { return s.format }

// ReadChunk decodes up to maxFrames frames
func (s *MP3Stream) ReadChunk(maxFrames int) (audio.Chunk, error) {
	need := maxFrames * 4
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	n, err := io.ReadFull(s.decoder, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("mp3 decode error: %w", err)
	}

	frames := n / 4
	if frames == 0 {
		return nil, io.EOF
	}

	samples := make([]int32, frames*2)
	for i := range samples {
		samples[i] = int32(int16(uint16(buf[i*2]) | uint16(buf[i*2+1])<<8))
	}
	return audio.Interleave(samples, 2), nil
}

// Close closes the underlying file
func (s *MP3Stream) Close() error {
	return s.src.Close()
}

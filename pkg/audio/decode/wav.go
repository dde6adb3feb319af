// ABOUTME: WAV stream decoder
// ABOUTME: Decodes RIFF/WAVE PCM files using go-audio/wav
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ReadSeekCloser is what the WAV decoder needs from its source
type ReadSeekCloser interface {
	io.ReadSeeker
	io.Closer
}

// WAVStream decodes a WAV file in chunks
type WAVStream struct {
	src      ReadSeekCloser
	decoder  *wav.Decoder
	format   audio.Format
	bitDepth int
	buf      *goaudio.IntBuffer
}

// NewWAVStream reads the RIFF header from src
func NewWAVStream(src ReadSeekCloser) (*WAVStream, error) {
	decoder := wav.NewDecoder(src)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("failed to decode WAV: invalid file")
	}

	bitDepth := int(decoder.BitDepth)
	var encoding audio.Encoding
	switch bitDepth {
	case 16:
		encoding = audio.EncodingInt16
	case 24, 32:
		encoding = audio.EncodingInt24
	default:
		return nil, fmt.Errorf("unsupported WAV bit depth: %d (supported: 16, 24, 32)", bitDepth)
	}

	format := audio.Format{
		Channels:   int(decoder.NumChans),
		SampleRate: int(decoder.SampleRate),
		Encoding:   encoding,
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}

	return &WAVStream{
		src:      src,
		decoder:  decoder,
		format:   format,
		bitDepth: bitDepth,
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		},
	}, nil
}

// Format returns the decoded stream format
func (s *WAVStream) Format() audio.Format { return s.format }

// ReadChunk decodes up to maxFrames frames
func (s *WAVStream) ReadChunk(maxFrames int) (audio.Chunk, error) {
	need := maxFrames * s.format.Channels
	if cap(s.buf.Data) < need {
		s.buf.Data = make([]int, need)
	}
	s.buf.Data = s.buf.Data[:need]

	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("wav decode error: %w", err)
	}
	n -= n % s.format.Channels
	if n == 0 {
		return nil, io.EOF
	}

	samples := make([]int32, n)
	for i, v := range s.buf.Data[:n] {
		if s.bitDepth == 32 {
			samples[i] = int32(v >> 8)
		} else {
			samples[i] = int32(v)
		}
	}
	return audio.Interleave(samples, s.format.Channels), nil
}

// Close closes the underlying file
func (s *WAVStream) Close() error {
	return s.src.Close()
}

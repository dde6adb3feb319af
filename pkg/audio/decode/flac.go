// ABOUTME: FLAC stream decoder
// ABOUTME: Decodes FLAC files frame by frame using mewkiz/flac
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
)

// FLACStream decodes a FLAC file, carrying partially consumed frames across calls
type FLACStream struct {
	src      io.ReadCloser
	stream   *flac.Stream
	format   audio.Format
	bitDepth int

	pending *frame.Frame
	pos     int
}

// NewFLACStream parses the stream header from src
func NewFLACStream(src io.ReadCloser) (*FLACStream, error) {
	stream, err := flac.New(src)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	bitDepth := int(info.BitsPerSample)
	encoding := audio.EncodingInt16
	if bitDepth > 16 {
		encoding = audio.EncodingInt24
	}

	return &FLACStream{
		src:      src,
		stream:   stream,
		bitDepth: bitDepth,
		format: audio.Format{
			Channels:   int(info.NChannels),
			SampleRate: int(info.SampleRate),
			Encoding:   encoding,
		},
	}, nil
}

// Format returns the decoded stream format
func (s *FLACStream) Format() audio.Format { return s.format }

// BitDepth returns the bits per sample stored in the file
func (s *FLACStream) BitDepth() int { return s.bitDepth }

// ReadChunk decodes up to maxFrames frames
func (s *FLACStream) ReadChunk(maxFrames int) (audio.Chunk, error) {
	channels := s.format.Channels
	samples := make([]int32, 0, maxFrames*channels)

	for len(samples) < maxFrames*channels {
		if s.pending == nil || s.pos >= int(s.pending.BlockSize) {
			fr, err := s.stream.ParseNext()
			if errors.Is(err, io.EOF) {
				s.pending = nil
				break
			}
			if err != nil {
				return nil, fmt.Errorf("flac decode error: %w", err)
			}
			s.pending = fr
			s.pos = 0
		}

		for ; s.pos < int(s.pending.BlockSize) && len(samples) < maxFrames*channels; s.pos++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, s.scale(s.pending.Subframes[ch].Samples[s.pos]))
			}
		}
	}

	if len(samples) == 0 {
		return nil, io.EOF
	}
	return audio.Interleave(samples, channels), nil
}

// scale maps a raw sample onto the 16-bit or 24-bit range reported by Format
func (s *FLACStream) scale(sample int32) int32 {
	target := 16
	if s.format.Encoding == audio.EncodingInt24 {
		target = 24
	}
	shift := s.bitDepth - target
	if shift > 0 {
		return sample >> shift
	}
	return sample << -shift
}

// Close closes the underlying file
func (s *FLACStream) Close() error {
	return s.src.Close()
}

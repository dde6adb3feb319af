// ABOUTME: File playlist producer
// ABOUTME: Decodes files in order and marks a format boundary between files
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio/decode"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio/resample"
	"github.com/Resonate-Protocol/ringfeed/pkg/feed"
	"go.uber.org/zap"
)

// PlaylistConfig holds playlist configuration
type PlaylistConfig struct {
	// Paths are played in order
	Paths []string

	// OnFormat receives each following file's format before the boundary is signalled;
	// wire it to Session.SetFormat
	OnFormat func(audio.Format) error

	// ForceInt16 narrows higher bit depth files to int16
	ForceInt16 bool

	// SampleRate resamples every file to this rate; 0 plays files at their own rate
	SampleRate int

	// Open opens a path as a stream (default: decode.Open)
	Open func(path string) (decode.Stream, error)

	Logger *zap.Logger
}

// Playlist plays a list of files as one stream with a boundary at each file change
type Playlist struct {
	mu      sync.Mutex
	config  PlaylistConfig
	logger  *zap.Logger
	next    int
	current decode.Stream
	path    string
	format  audio.Format
	narrow  int // bit depth to narrow from, 0 when samples pass through
	rs      *resample.Resampler
	carry   audio.Chunk // resampled frames beyond the last pull
}

// NewPlaylist opens the first playable file so its format is known up front
func NewPlaylist(config PlaylistConfig) (*Playlist, error) {
	if len(config.Paths) == 0 {
		return nil, errors.New("playlist is empty")
	}
	if config.Open == nil {
		config.Open = decode.Open
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	p := &Playlist{
		config: config,
		logger: config.Logger.Named("playlist"),
	}
	if !p.advance() {
		return nil, fmt.Errorf("no playable files in playlist of %d", len(config.Paths))
	}
	return p, nil
}

// Format returns the format of the file being played
func (p *Playlist) Format() audio.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.format
}

// Current returns the path of the file being played
func (p *Playlist) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

// advance opens the next playable file, skipping files that fail to open
func (p *Playlist) advance() bool {
	for p.next < len(p.config.Paths) {
		path := p.config.Paths[p.next]
		p.next++

		stream, err := p.config.Open(path)
		if err != nil {
			p.logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
			continue
		}

		format, narrow, err := p.outputFormat(stream.Format())
		if err == nil {
			err = p.prepareResampler(stream.Format(), &format)
		}
		if err != nil {
			p.logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
			stream.Close()
			continue
		}

		p.current = stream
		p.path = path
		p.format = format
		p.narrow = narrow
		p.logger.Info("opened file",
			zap.String("path", path),
			zap.Stringer("format", format))
		return true
	}
	return false
}

func (p *Playlist) prepareResampler(src audio.Format, out *audio.Format) error {
	p.rs = nil
	p.carry = nil
	if p.config.SampleRate <= 0 || src.SampleRate == p.config.SampleRate {
		return nil
	}
	rs, err := resample.New(src.SampleRate, p.config.SampleRate, src.Channels)
	if err != nil {
		return err
	}
	p.rs = rs
	out.SampleRate = p.config.SampleRate
	return nil
}

func (p *Playlist) outputFormat(format audio.Format) (audio.Format, int, error) {
	if !p.config.ForceInt16 || format.Encoding == audio.EncodingInt16 {
		return format, 0, nil
	}
	if format.Encoding != audio.EncodingInt24 {
		return format, 0, fmt.Errorf("cannot narrow %s to int16", format.Encoding)
	}
	format.Encoding = audio.EncodingInt16
	return format, 24, nil
}

// Pull reads from the current file; io.EOF marks a file change and feed.ErrDone the end
func (p *Playlist) Pull(ctx context.Context, frames int) (audio.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return nil, feed.ErrDone
	}

	if len(p.carry) > 0 {
		return p.takeCarry(frames), nil
	}

	chunk, err := p.read(frames)
	if err == nil {
		return chunk, nil
	}
	if !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode %s: %w", p.path, err)
	}

	p.logger.Debug("file finished", zap.String("path", p.path))
	p.current.Close()
	p.current = nil

	if !p.advance() {
		return nil, feed.ErrDone
	}
	if p.config.OnFormat != nil {
		if err := p.config.OnFormat(p.format); err != nil {
			return nil, fmt.Errorf("failed to apply format of %s: %w", p.path, err)
		}
	}
	return nil, io.EOF
}

// read decodes, narrows and resamples up to frames frames
func (p *Playlist) read(frames int) (audio.Chunk, error) {
	want := frames
	if p.rs != nil {
		want = max(1, int(float64(frames)*p.rs.Step()))
	}

	for {
		chunk, err := p.current.ReadChunk(want)
		if err != nil {
			return nil, err
		}
		if p.narrow > 0 {
			for _, frame := range chunk {
				for i, s := range frame {
					frame[i] = audio.ScaleToInt16(s, p.narrow)
				}
			}
		}
		if p.rs == nil {
			return chunk, nil
		}
		// a short input chunk can resample to nothing
		if p.carry = p.rs.Process(chunk); len(p.carry) > 0 {
			return p.takeCarry(frames), nil
		}
	}
}

func (p *Playlist) takeCarry(frames int) audio.Chunk {
	n := min(frames, len(p.carry))
	chunk := p.carry[:n:n]
	p.carry = p.carry[n:]
	return chunk
}

// Close releases the current file
func (p *Playlist) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return nil
	}
	err := p.current.Close()
	p.current = nil
	return err
}

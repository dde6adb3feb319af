// ABOUTME: Decoder and Stream interface definitions
// ABOUTME: Common interfaces for packet decoders and file-backed PCM streams
package decode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
)

// Decoder decodes raw packets to interleaved int32 samples
type Decoder interface {
	// Decode converts encoded audio data to PCM samples
	Decode(data []byte) ([]int32, error)

	// Close releases decoder resources
	Close() error
}

// Stream yields decoded PCM frames from a container
type Stream interface {
	// Format describes the frames returned by ReadChunk
	Format() audio.Format

	// ReadChunk returns up to maxFrames frames, or io.EOF once exhausted
	ReadChunk(maxFrames int) (audio.Chunk, error)

	// Close releases the underlying file
	Close() error
}

// Open picks a stream decoder from the file extension
func Open(path string) (Stream, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp3", ".flac", ".wav", ".wave":
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac, .wav)", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}

	var s Stream
	switch ext {
	case ".mp3":
		s, err = NewMP3Stream(f)
	case ".flac":
		s, err = NewFLACStream(f)
	default:
		s, err = NewWAVStream(f)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for chunk-to-bytes encoders
package encode

import "github.com/Resonate-Protocol/ringfeed/pkg/audio"

// Encoder packs a chunk of frames into device-ready bytes
type Encoder interface {
	// Encode converts a chunk to bytes; the result is only valid until the next call
	Encode(chunk audio.Chunk) ([]byte, error)

	// Close releases encoder buffers
	Close() error
}

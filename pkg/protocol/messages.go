// ABOUTME: PCM stream protocol message type definitions
// ABOUTME: JSON control messages plus the binary audio chunk layout
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
)

// Message types
const (
	TypeClientHello   = "client/hello"
	TypeServerHello   = "server/hello"
	TypeStreamStart   = "stream/start"
	TypeStreamEnd     = "stream/end"
	TypeClientGoodbye = "client/goodbye"
)

const (
	// Binary message format: 1 byte type + 8 byte frame position (big-endian)
	BinaryMessageHeaderSize = 1 + 8

	// Message type ID for audio chunks
	AudioChunkMessageType = 4

	// CodecPCM is the only codec carried on the wire
	CodecPCM = "pcm"
)

// ErrShortMessage is returned for binary messages smaller than the header
var ErrShortMessage = errors.New("binary message too short")

// Message is the top-level wrapper for all JSON messages
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Envelope is a received message whose payload is decoded on demand
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: %w", e.Type, err)
	}
	return nil
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// AudioFormat describes the PCM carried by following audio chunks
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// StreamStart announces a stream, or a format change within one
type StreamStart struct {
	Format AudioFormat `json:"format"`
}

// StreamEnd ends the stream; the server closes the connection after it
type StreamEnd struct {
	Reason string `json:"reason,omitempty"`
}

// ClientGoodbye is sent before graceful disconnect
type ClientGoodbye struct {
	Reason string `json:"reason"` // "shutdown", "user_request"
}

// FormatOf describes an audio format on the wire
func FormatOf(f audio.Format) AudioFormat {
	return AudioFormat{
		Codec:      CodecPCM,
		Channels:   f.Channels,
		SampleRate: f.SampleRate,
		BitDepth:   f.Encoding.BytesPerSample() * 8,
	}
}

// Format converts the wire description into an audio format
func (a AudioFormat) Format() (audio.Format, error) {
	if a.Codec != "" && a.Codec != CodecPCM {
		return audio.Format{}, fmt.Errorf("unsupported codec %q", a.Codec)
	}

	var enc audio.Encoding
	switch a.BitDepth {
	case 0, 16:
		enc = audio.EncodingInt16
	case 24:
		enc = audio.EncodingInt24
	case 32:
		enc = audio.EncodingFloat32
	default:
		return audio.Format{}, fmt.Errorf("unsupported bit depth %d", a.BitDepth)
	}

	f := audio.Format{Channels: a.Channels, SampleRate: a.SampleRate, Encoding: enc}
	if err := f.Validate(); err != nil {
		return audio.Format{}, err
	}
	return f, nil
}

// EncodeAudioChunk builds a binary audio message
func EncodeAudioChunk(position int64, pcm []byte) []byte {
	msg := make([]byte, BinaryMessageHeaderSize+len(pcm))
	msg[0] = AudioChunkMessageType
	binary.BigEndian.PutUint64(msg[1:BinaryMessageHeaderSize], uint64(position))
	copy(msg[BinaryMessageHeaderSize:], pcm)
	return msg
}

// DecodeAudioChunk splits a binary audio message into its frame position and PCM payload
func DecodeAudioChunk(data []byte) (int64, []byte, error) {
	if len(data) < BinaryMessageHeaderSize {
		return 0, nil, ErrShortMessage
	}
	if data[0] != AudioChunkMessageType {
		return 0, nil, fmt.Errorf("unknown binary message type: %d", data[0])
	}
	position := int64(binary.BigEndian.Uint64(data[1:BinaryMessageHeaderSize]))
	return position, data[BinaryMessageHeaderSize:], nil
}

// ABOUTME: Audio type definitions
// ABOUTME: Defines PCM formats, frames, chunks and sample conversion helpers
package audio

import (
	"errors"
	"fmt"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23

	// 16-bit audio range constants
	MaxInt16 = 32767
	MinInt16 = -32768
)

// ErrInvalidFormat is returned for formats with no channels or no sample rate
var ErrInvalidFormat = errors.New("invalid audio format")

// ErrInvalidChunk is returned when a chunk does not match its format or budget
var ErrInvalidChunk = errors.New("invalid audio chunk")

// Encoding is the sample representation of a PCM stream
type Encoding int

const (
	EncodingInt16 Encoding = iota
	EncodingInt24
	EncodingFloat32
)

// String returns the encoding name
func (e Encoding) String() string {
	switch e {
	case EncodingInt16:
		return "int16"
	case EncodingInt24:
		return "int24"
	case EncodingFloat32:
		return "float32"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// BytesPerSample returns the packed size of one sample
func (e Encoding) BytesPerSample() int {
	switch e {
	case EncodingInt16:
		return 2
	case EncodingInt24:
		return 3
	case EncodingFloat32:
		return 4
	default:
		return 0
	}
}

// ParseEncoding maps a name such as "int16" to an Encoding
func ParseEncoding(name string) (Encoding, error) {
	switch name {
	case "", "int16", "s16", "s16le":
		return EncodingInt16, nil
	case "int24", "s24", "s24le":
		return EncodingInt24, nil
	case "float32", "f32", "f32le":
		return EncodingFloat32, nil
	}
	return 0, fmt.Errorf("unknown sample encoding %q", name)
}

// Format describes a PCM stream
type Format struct {
	Channels   int
	SampleRate int
	Encoding   Encoding
}

// Validate checks channel count and sample rate
func (f Format) Validate() error {
	if f.Channels < 1 {
		return fmt.Errorf("%w: channels must be >= 1, got %d", ErrInvalidFormat, f.Channels)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be > 0, got %d", ErrInvalidFormat, f.SampleRate)
	}
	return nil
}

// BytesPerFrame returns the packed size of one interleaved frame
func (f Format) BytesPerFrame() int {
	return f.Channels * f.Encoding.BytesPerSample()
}

// FramesFor returns the number of frames covering d, rounded to nearest
func (f Format) FramesFor(d time.Duration) int {
	return int((int64(f.SampleRate)*int64(d) + int64(time.Second)/2) / int64(time.Second))
}

// Duration returns the playing time of n frames
func (f Format) Duration(frames int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(f.SampleRate))
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz %dch %s", f.SampleRate, f.Channels, f.Encoding)
}

// Frame holds one sample per channel
type Frame []int32

// Chunk is a run of frames pulled from a producer in one call
type Chunk []Frame

// Validate checks every frame width against channels and the chunk length against maxFrames
func (c Chunk) Validate(channels, maxFrames int) error {
	if len(c) > maxFrames {
		return fmt.Errorf("%w: %d frames exceeds budget of %d", ErrInvalidChunk, len(c), maxFrames)
	}
	for i, frame := range c {
		if len(frame) != channels {
			return fmt.Errorf("%w: frame %d has %d samples, want %d", ErrInvalidChunk, i, len(frame), channels)
		}
	}
	return nil
}

// Samples returns the total sample count across all frames
func (c Chunk) Samples() int {
	n := 0
	for _, frame := range c {
		n += len(frame)
	}
	return n
}

// Interleave splits an interleaved sample slice into a chunk
func Interleave(samples []int32, channels int) Chunk {
	if channels < 1 {
		return nil
	}
	n := len(samples) / channels
	chunk := make(Chunk, n)
	for i := 0; i < n; i++ {
		chunk[i] = Frame(samples[i*channels : (i+1)*channels : (i+1)*channels])
	}
	return chunk
}

// ClampInt16 saturates a sample to the 16-bit range
func ClampInt16(sample int32) int16 {
	if sample > MaxInt16 {
		return MaxInt16
	}
	if sample < MinInt16 {
		return MinInt16
	}
	return int16(sample)
}

// SampleToInt16 converts a 24-bit sample to int16
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// ScaleToInt16 narrows a sample of the given bit depth into the 16-bit range
func ScaleToInt16(sample int32, bitDepth int) int32 {
	switch {
	case bitDepth == 16:
		return sample
	case bitDepth > 16:
		return sample >> (bitDepth - 16)
	default:
		return sample << (16 - bitDepth)
	}
}

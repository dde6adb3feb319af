// ABOUTME: Unit tests for PCM encoder
// ABOUTME: Tests buffer sizing, clamping and frame ordering
package encode

import (
	"encoding/binary"
	"testing"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stereo16 = audio.Format{Channels: 2, SampleRate: 44100, Encoding: audio.EncodingInt16}

func TestNewPCM16(t *testing.T) {
	tests := []struct {
		name      string
		format    audio.Format
		maxFrames int
		wantErr   bool
	}{
		{"stereo half second", stereo16, 22050, false},
		{"mono", audio.Format{Channels: 1, SampleRate: 8000}, 4000, false},
		{"int24 rejected", audio.Format{Channels: 2, SampleRate: 44100, Encoding: audio.EncodingInt24}, 100, true},
		{"invalid format", audio.Format{Channels: 0, SampleRate: 44100}, 100, true},
		{"zero budget", stereo16, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewPCM16(tt.format, tt.maxFrames)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.maxFrames*tt.format.Channels, enc.Capacity())
		})
	}
}

func TestPCM16CapacityMatchesBudget(t *testing.T) {
	enc, err := NewPCM16(stereo16, stereo16.FramesFor(500_000_000))
	require.NoError(t, err)
	assert.Equal(t, 22050*2, enc.Capacity())
}

func TestPCM16Encode(t *testing.T) {
	enc, err := NewPCM16(stereo16, 4)
	require.NoError(t, err)
	defer enc.Close()

	chunk := audio.Chunk{{0, 1}, {-1, 32767}, {40000, -40000}}
	out, err := enc.Encode(chunk)
	require.NoError(t, err)
	require.Len(t, out, 12)

	expected := []int16{0, 1, -1, 32767, 32767, -32768}
	for i, want := range expected {
		got := int16(binary.LittleEndian.Uint16(out[i*2:]))
		assert.Equal(t, want, got, "sample %d", i)
	}
}

func TestPCM16EncodeEmptyChunk(t *testing.T) {
	enc, err := NewPCM16(stereo16, 4)
	require.NoError(t, err)

	out, err := enc.Encode(audio.Chunk{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPCM16EncodeRejectsBadChunks(t *testing.T) {
	enc, err := NewPCM16(stereo16, 2)
	require.NoError(t, err)

	_, err = enc.Encode(audio.Chunk{{1, 2}, {3, 4}, {5, 6}})
	assert.ErrorIs(t, err, audio.ErrInvalidChunk)

	_, err = enc.Encode(audio.Chunk{{1}})
	assert.ErrorIs(t, err, audio.ErrInvalidChunk)
}

func TestPCM16Close(t *testing.T) {
	enc, err := NewPCM16(stereo16, 2)
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	_, err = enc.Encode(audio.Chunk{{1, 2}})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestInt16LE(t *testing.T) {
	out := Int16LE([]int32{-2, 70000})
	require.Len(t, out, 4)
	assert.Equal(t, int16(-2), int16(binary.LittleEndian.Uint16(out[0:])))
	assert.Equal(t, int16(32767), int16(binary.LittleEndian.Uint16(out[2:])))
}

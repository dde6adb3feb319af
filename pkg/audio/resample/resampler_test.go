// ABOUTME: Tests for the linear resampler
// ABOUTME: Checks output length, interpolation and continuity across chunks
package resample

import (
	"testing"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(start, n int) audio.Chunk {
	chunk := make(audio.Chunk, n)
	for i := range chunk {
		v := int32((start + i) * 100)
		chunk[i] = audio.Frame{v, -v}
	}
	return chunk
}

func TestNewRejectsBadParameters(t *testing.T) {
	_, err := New(0, 48000, 2)
	assert.Error(t, err)
	_, err = New(44100, 48000, 0)
	assert.Error(t, err)
}

func TestUpsampleInterpolates(t *testing.T) {
	r, err := New(1000, 2000, 2)
	require.NoError(t, err)

	out := r.Process(ramp(0, 4))
	// positions 0, 0.5, ... 2.5; frame 3 is held back
	require.Len(t, out, 6)
	assert.Equal(t, audio.Frame{50, -50}, out[1])
	assert.Equal(t, audio.Frame{250, -250}, out[5])
}

func TestContinuousAcrossChunks(t *testing.T) {
	whole, err := New(3000, 2000, 2)
	require.NoError(t, err)
	split, err := New(3000, 2000, 2)
	require.NoError(t, err)

	want := whole.Process(ramp(0, 90))

	var got audio.Chunk
	for start := 0; start < 90; start += 7 {
		n := min(7, 90-start)
		got = append(got, split.Process(ramp(start, n))...)
	}
	assert.Equal(t, want, got)
	assert.InDelta(t, 60, len(got), 1)
}

func TestSameRatePassesThrough(t *testing.T) {
	r, err := New(48000, 48000, 2)
	require.NoError(t, err)

	first := r.Process(ramp(0, 10))
	second := r.Process(ramp(10, 10))
	all := append(first, second...)
	require.Len(t, all, 19)
	for i, frame := range all {
		assert.Equal(t, int32(i*100), frame[0])
	}
}

func TestReset(t *testing.T) {
	r, err := New(1000, 2000, 2)
	require.NoError(t, err)
	r.Process(ramp(0, 3))
	r.Reset()

	out := r.Process(ramp(10, 2))
	require.Len(t, out, 2)
	assert.Equal(t, int32(1000), out[0][0])
	assert.Equal(t, 0.5, r.Step())
}

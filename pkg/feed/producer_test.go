// ABOUTME: Producer adapter and buffer pool tests
// ABOUTME: Covers chunk splitting, boundary markers and slot bookkeeping
package feed

import (
	"context"
	"io"
	"testing"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelProducerSplitsChunks(t *testing.T) {
	ch := make(chan audio.Chunk, 3)
	ch <- constChunk(10, 2, 7)
	ch <- nil
	close(ch)

	p := NewChannelProducer(ch)
	ctx := context.Background()

	var sizes []int
	for range 3 {
		chunk, err := p.Pull(ctx, 4)
		require.NoError(t, err)
		sizes = append(sizes, len(chunk))
	}
	assert.Equal(t, []int{4, 4, 2}, sizes)

	_, err := p.Pull(ctx, 4)
	assert.ErrorIs(t, err, io.EOF)

	_, err = p.Pull(ctx, 4)
	assert.ErrorIs(t, err, ErrDone)
}

func TestChannelProducerChunksDoNotAlias(t *testing.T) {
	ch := make(chan audio.Chunk, 1)
	ch <- constChunk(4, 1, 1)
	p := NewChannelProducer(ch)

	first, err := p.Pull(context.Background(), 2)
	require.NoError(t, err)
	first = append(first, audio.Frame{99})

	second, err := p.Pull(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int32(1), second[0][0])
}

func TestChannelProducerHonorsContext(t *testing.T) {
	p := NewChannelProducer(make(chan audio.Chunk))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Pull(ctx, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProducerFunc(t *testing.T) {
	var asked int
	p := ProducerFunc(func(_ context.Context, frames int) (audio.Chunk, error) {
		asked = frames
		return nil, io.EOF
	})

	_, err := p.Pull(context.Background(), 123)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 123, asked)
}

func TestPool(t *testing.T) {
	p := newPool([]output.BufferSlot{7, 8, 9})
	assert.Equal(t, 3, p.size())

	slot, ok := p.free()
	require.True(t, ok)
	assert.Equal(t, output.BufferSlot(7), slot)

	p.markQueued(7)
	p.markQueued(8)
	slot, ok = p.free()
	require.True(t, ok)
	assert.Equal(t, output.BufferSlot(9), slot)

	p.markQueued(9)
	_, ok = p.free()
	assert.False(t, ok)
	assert.Equal(t, 3, p.queued())

	p.release(8)
	slot, ok = p.free()
	require.True(t, ok)
	assert.Equal(t, output.BufferSlot(8), slot)

	p.releaseAll()
	assert.Zero(t, p.queued())
	slot, _ = p.free()
	assert.Equal(t, output.BufferSlot(7), slot)
}

func TestDeviceError(t *testing.T) {
	err := deviceErr("unqueue", output.InvalidValue)
	assert.Equal(t, "device error: invalid value (unqueue)", err.Error())
	assert.ErrorIs(t, err, output.InvalidValue)

	assert.Nil(t, deviceErr("play", nil))

	plain := &DeviceError{Op: "play", Err: io.ErrClosedPipe}
	_, ok := plain.Code()
	assert.False(t, ok)
}

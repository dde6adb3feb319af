// ABOUTME: Playback device tests
// ABOUTME: Verifies queue, processed-count and transport semantics of the buffer engine
package output

import (
	"testing"
	"time"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Device = (*Sim)(nil)
	_ Device = (*Oto)(nil)
	_ Device = (*Malgo)(nil)
)

// 1kHz mono keeps the arithmetic readable: 1 frame per millisecond, 2 bytes per frame
var testFormat = audio.Format{Channels: 1, SampleRate: 1000, Encoding: audio.EncodingInt16}

type simFixture struct {
	sim   *Sim
	clock *ManualClock
	dev   DeviceHandle
	sess  SessionHandle
	src   SourceHandle
	slots []BufferSlot
}

func newSimFixture(t *testing.T) *simFixture {
	t.Helper()

	clock := NewManualClock(0)
	sim := NewSim(SimConfig{Clock: clock})

	dev, err := sim.Open()
	require.NoError(t, err)
	sess, err := sim.CreateSession(dev)
	require.NoError(t, err)
	require.NoError(t, sim.MakeCurrent(sess))
	slots, err := sim.AllocateBuffers(3)
	require.NoError(t, err)
	src, err := sim.AllocateSource()
	require.NoError(t, err)

	return &simFixture{sim: sim, clock: clock, dev: dev, sess: sess, src: src, slots: slots}
}

// queue submits ms milliseconds of audio into slot and attaches it
func (f *simFixture) queue(t *testing.T, slot BufferSlot, ms int) {
	t.Helper()
	require.NoError(t, f.sim.Submit(slot, testFormat, make([]byte, ms*2)))
	require.NoError(t, f.sim.Attach(f.src, slot))
}

func (f *simFixture) counts(t *testing.T) (queued, processed int) {
	t.Helper()
	queued, err := f.sim.QueuedCount(f.src)
	require.NoError(t, err)
	processed, err = f.sim.ProcessedCount(f.src)
	require.NoError(t, err)
	return queued, processed
}

func (f *simFixture) state(t *testing.T) SourceState {
	t.Helper()
	st, err := f.sim.State(f.src)
	require.NoError(t, err)
	return st
}

func TestEngineRequiresCurrentSession(t *testing.T) {
	sim := NewSim(SimConfig{Clock: NewManualClock(0)})

	_, err := sim.AllocateBuffers(3)
	assert.ErrorIs(t, err, InvalidOperation)

	_, err = sim.AllocateSource()
	assert.ErrorIs(t, err, InvalidOperation)
}

func TestEngineUnknownHandles(t *testing.T) {
	f := newSimFixture(t)

	_, err := f.sim.CreateSession(999)
	assert.ErrorIs(t, err, InvalidName)

	assert.ErrorIs(t, f.sim.MakeCurrent(999), InvalidName)
	assert.ErrorIs(t, f.sim.Attach(999, f.slots[0]), InvalidName)
	assert.ErrorIs(t, f.sim.Attach(f.src, 999), InvalidName)
	assert.ErrorIs(t, f.sim.Submit(999, testFormat, nil), InvalidName)
}

func TestEngineSubmitValidation(t *testing.T) {
	f := newSimFixture(t)

	tests := []struct {
		name   string
		format audio.Format
		data   []byte
		want   Code
	}{
		{"invalid format", audio.Format{Channels: 0, SampleRate: 1000}, nil, InvalidValue},
		{"int24", audio.Format{Channels: 1, SampleRate: 1000, Encoding: audio.EncodingInt24}, nil, InvalidEnum},
		{"partial frame", testFormat, []byte{1, 2, 3}, InvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, f.sim.Submit(f.slots[0], tt.format, tt.data), tt.want)
		})
	}

	assert.NoError(t, f.sim.Submit(f.slots[0], testFormat, nil), "empty buffers are legal")
}

func TestEngineRejectsDoubleAttach(t *testing.T) {
	f := newSimFixture(t)
	f.queue(t, f.slots[0], 10)

	assert.ErrorIs(t, f.sim.Attach(f.src, f.slots[0]), InvalidOperation)
	assert.ErrorIs(t, f.sim.Submit(f.slots[0], testFormat, nil), InvalidOperation, "attached buffers are read-only")
}

func TestEngineRejectsMixedFormats(t *testing.T) {
	f := newSimFixture(t)
	f.queue(t, f.slots[0], 10)

	stereo := audio.Format{Channels: 2, SampleRate: 1000}
	require.NoError(t, f.sim.Submit(f.slots[1], stereo, make([]byte, 40)))
	assert.ErrorIs(t, f.sim.Attach(f.src, f.slots[1]), InvalidOperation)
}

func TestEngineConsumesAgainstClock(t *testing.T) {
	f := newSimFixture(t)
	f.queue(t, f.slots[0], 100)
	f.queue(t, f.slots[1], 100)

	require.NoError(t, f.sim.Play(f.src))
	assert.Equal(t, StatePlaying, f.state(t))

	f.clock.Advance(50 * time.Millisecond)
	queued, processed := f.counts(t)
	assert.Equal(t, 2, queued)
	assert.Equal(t, 0, processed)

	f.clock.Advance(100 * time.Millisecond)
	_, processed = f.counts(t)
	assert.Equal(t, 1, processed)

	f.clock.Advance(100 * time.Millisecond)
	queued, processed = f.counts(t)
	assert.Equal(t, 2, queued)
	assert.Equal(t, 2, processed)
	assert.Equal(t, StateStopped, f.state(t), "exhausted queue stops the source")
	assert.Equal(t, int64(1), f.sim.Stats().Underruns)
}

func TestEngineUnqueueOne(t *testing.T) {
	f := newSimFixture(t)
	f.queue(t, f.slots[0], 10)
	f.queue(t, f.slots[1], 10)

	_, err := f.sim.UnqueueOne(f.src)
	assert.ErrorIs(t, err, InvalidValue, "nothing processed yet")

	require.NoError(t, f.sim.Play(f.src))
	f.clock.Advance(15 * time.Millisecond)

	slot, err := f.sim.UnqueueOne(f.src)
	require.NoError(t, err)
	assert.Equal(t, f.slots[0], slot, "oldest buffer comes back first")

	queued, processed := f.counts(t)
	assert.Equal(t, 1, queued)
	assert.Equal(t, 0, processed)
}

func TestEnginePauseKeepsPosition(t *testing.T) {
	f := newSimFixture(t)
	f.queue(t, f.slots[0], 100)

	require.NoError(t, f.sim.Play(f.src))
	f.clock.Advance(40 * time.Millisecond)
	require.NoError(t, f.sim.Pause(f.src))
	assert.Equal(t, StatePaused, f.state(t))

	f.clock.Advance(time.Second)
	_, processed := f.counts(t)
	assert.Equal(t, 0, processed, "paused sources do not consume")

	require.NoError(t, f.sim.Play(f.src))
	f.clock.Advance(70 * time.Millisecond)
	_, processed = f.counts(t)
	assert.Equal(t, 1, processed)
}

func TestEngineStopMarksQueueProcessed(t *testing.T) {
	f := newSimFixture(t)
	f.queue(t, f.slots[0], 100)
	f.queue(t, f.slots[1], 100)

	require.NoError(t, f.sim.Play(f.src))
	require.NoError(t, f.sim.Stop(f.src))

	queued, processed := f.counts(t)
	assert.Equal(t, 2, queued)
	assert.Equal(t, 2, processed)
	assert.Equal(t, StateStopped, f.state(t))
}

func TestEnginePlayAfterStarvationResumesAtNewBuffer(t *testing.T) {
	f := newSimFixture(t)
	f.queue(t, f.slots[0], 10)

	require.NoError(t, f.sim.Play(f.src))
	f.clock.Advance(time.Second)
	require.Equal(t, StateStopped, f.state(t))

	f.queue(t, f.slots[1], 100)
	require.NoError(t, f.sim.Play(f.src))
	f.clock.Advance(50 * time.Millisecond)

	queued, processed := f.counts(t)
	assert.Equal(t, 2, queued)
	assert.Equal(t, 1, processed, "only the starved buffer is processed")
	assert.Equal(t, StatePlaying, f.state(t))
}

func TestEngineDetachAll(t *testing.T) {
	f := newSimFixture(t)
	f.queue(t, f.slots[0], 10)
	f.queue(t, f.slots[1], 10)
	require.NoError(t, f.sim.Play(f.src))

	require.NoError(t, f.sim.DetachAll(f.src))

	queued, processed := f.counts(t)
	assert.Equal(t, 0, queued)
	assert.Equal(t, 0, processed)
	assert.Equal(t, StateStopped, f.state(t))

	// Detached buffers are writable again
	assert.NoError(t, f.sim.Submit(f.slots[0], testFormat, nil))
}

func TestEngineTeardownOrder(t *testing.T) {
	f := newSimFixture(t)
	f.queue(t, f.slots[0], 10)

	assert.ErrorIs(t, f.sim.DeleteBuffers(f.slots), InvalidOperation, "attached buffers cannot be deleted")
	assert.ErrorIs(t, f.sim.DestroySession(f.sess), InvalidOperation, "current session cannot be destroyed")
	assert.ErrorIs(t, f.sim.Close(f.dev), InvalidOperation, "device with sessions cannot be closed")

	require.NoError(t, f.sim.DeleteSource(f.src))
	require.NoError(t, f.sim.DeleteBuffers(f.slots))
	require.NoError(t, f.sim.MakeCurrent(0))
	require.NoError(t, f.sim.DestroySession(f.sess))
	require.NoError(t, f.sim.Close(f.dev))
}

func TestEngineReadRendersPrimarySource(t *testing.T) {
	engine := newEngine(nil, nil)

	dev, _ := engine.Open()
	sess, _ := engine.CreateSession(dev)
	require.NoError(t, engine.MakeCurrent(sess))
	slots, _ := engine.AllocateBuffers(2)
	src, _ := engine.AllocateSource()

	require.NoError(t, engine.Submit(slots[0], testFormat, []byte{1, 2, 3, 4}))
	require.NoError(t, engine.Attach(src, slots[0]))

	p := make([]byte, 6)
	n, err := engine.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0}, p, "not playing renders silence")

	require.NoError(t, engine.Play(src))
	_, _ = engine.Read(p)
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0}, p)

	st, _ := engine.State(src)
	assert.Equal(t, StateStopped, st)
	processed, _ := engine.ProcessedCount(src)
	assert.Equal(t, 1, processed)

	stats := engine.Stats()
	assert.Equal(t, int64(4), stats.BytesRendered)
	assert.Equal(t, int64(1), stats.Underruns)
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(time.Millisecond)
	first := c.Now()
	second := c.Now()
	assert.Equal(t, time.Millisecond, second.Sub(first))

	c.Advance(time.Second)
	assert.Equal(t, time.Second+time.Millisecond, c.Now().Sub(second))
}

func TestSourceStateString(t *testing.T) {
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "invalid operation", InvalidOperation.Error())
}

// ABOUTME: Session lifecycle tests
// ABOUTME: Covers construction, initialization failures, transport intent and teardown order
package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func silentProducer() Producer {
	return ProducerFunc(func(_ context.Context, frames int) (audio.Chunk, error) {
		return constChunk(frames, 2, 0), nil
	})
}

func TestNewValidation(t *testing.T) {
	dev := newRecordingDevice(0)

	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"missing producer", Config{Device: dev}, ErrNoProducer},
		{"missing device", Config{Producer: silentProducer()}, ErrNoDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := New(Config{Device: dev, Producer: silentProducer(), PoolSize: -1})
	assert.Error(t, err)

	s, err := New(Config{Device: dev, Producer: silentProducer()})
	require.NoError(t, err)
	assert.Equal(t, DefaultPoolSize, s.config.PoolSize)
	assert.Equal(t, DefaultPollInterval, s.config.PollInterval)
	assert.Equal(t, DefaultBufferDuration, s.config.BufferDuration)
	assert.NotEmpty(t, s.ID())
	assert.Empty(t, dev.callLog(), "New must not touch the device")
}

func TestInitialize(t *testing.T) {
	dev := newRecordingDevice(0)
	s, err := New(Config{Device: dev, Producer: silentProducer(), Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Initialize(stereo44k))
	assert.Equal(t, []string{"Open", "CreateSession", "MakeCurrent", "AllocateBuffers", "AllocateSource"}, dev.callLog())
	assert.Equal(t, 3, s.pool.size())
	assert.Equal(t, stereo44k, s.Format())

	assert.ErrorIs(t, s.Initialize(stereo44k), ErrAlreadyInitialized)
}

func TestInitializeRejectsFormats(t *testing.T) {
	tests := []struct {
		name   string
		format audio.Format
		want   error
	}{
		{"int24", audio.Format{Channels: 2, SampleRate: 48000, Encoding: audio.EncodingInt24}, ErrNotImplemented},
		{"float32", audio.Format{Channels: 2, SampleRate: 48000, Encoding: audio.EncodingFloat32}, ErrNotImplemented},
		{"no channels", audio.Format{SampleRate: 48000}, ErrInvalidFormat},
		{"no rate", audio.Format{Channels: 2}, ErrInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newRecordingDevice(0)
			s, err := New(Config{Device: dev, Producer: silentProducer()})
			require.NoError(t, err)

			assert.ErrorIs(t, s.Initialize(tt.format), tt.want)
			assert.Empty(t, dev.callLog())
		})
	}
}

func TestInitializeFailures(t *testing.T) {
	tests := []struct {
		name     string
		failOp   string
		failErr  error
		want     error
		wantOp   string
		wantTail []string
	}{
		{
			name:    "open",
			failOp:  "Open",
			failErr: errors.New("no such device"),
			want:    ErrDeviceOpen,
		},
		{
			name:     "create session",
			failOp:   "CreateSession",
			failErr:  output.OutOfMemory,
			want:     ErrSessionCreate,
			wantTail: []string{"CreateSession", "Close"},
		},
		{
			name:     "generate buffers",
			failOp:   "AllocateBuffers",
			failErr:  output.OutOfMemory,
			wantOp:   "generate buffers",
			wantTail: []string{"AllocateBuffers", "MakeCurrent:0", "DestroySession", "Close"},
		},
		{
			name:     "generate source",
			failOp:   "AllocateSource",
			failErr:  output.InvalidValue,
			wantOp:   "generate source",
			wantTail: []string{"AllocateSource", "DeleteBuffers", "MakeCurrent:0", "DestroySession", "Close"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newRecordingDevice(0)
			dev.failOn(tt.failOp, tt.failErr)

			_, err := Open(Config{Device: dev, Producer: silentProducer(), Format: stereo44k})
			require.Error(t, err)

			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.ErrorIs(t, err, tt.failErr)

			if tt.wantOp != "" {
				var devErr *DeviceError
				require.ErrorAs(t, err, &devErr)
				assert.Equal(t, tt.wantOp, devErr.Op)
				code, ok := devErr.Code()
				assert.True(t, ok)
				assert.Equal(t, tt.failErr, code)
			}

			if tt.wantTail != nil {
				calls := dev.callLog()
				require.GreaterOrEqual(t, len(calls), len(tt.wantTail))
				assert.Equal(t, tt.wantTail, calls[len(calls)-len(tt.wantTail):])
			}
		})
	}
}

func TestOperationsRequireInitialize(t *testing.T) {
	s, err := New(Config{Device: newRecordingDevice(0), Producer: silentProducer()})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Play(), ErrNotInitialized)
	assert.ErrorIs(t, s.Pause(), ErrNotInitialized)
	assert.ErrorIs(t, s.Stop(), ErrNotInitialized)
	assert.ErrorIs(t, s.Stream(context.Background()), ErrNotInitialized)

	_, err = s.Spawn(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = s.DeviceState()
	assert.ErrorIs(t, err, ErrNotInitialized)

	assert.NoError(t, s.Close())
}

func TestTransportIntent(t *testing.T) {
	tests := []struct {
		name string
		ops  []string
		want bool
	}{
		{"play", []string{"play"}, true},
		{"play twice", []string{"play", "play"}, true},
		{"play pause", []string{"play", "pause"}, false},
		{"play stop", []string{"play", "stop"}, false},
		{"pause play", []string{"pause", "play"}, true},
		{"stop play play", []string{"stop", "play", "play"}, true},
		{"pause twice", []string{"pause", "pause"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, newRecordingDevice(0), silentProducer(), nil)

			for _, op := range tt.ops {
				switch op {
				case "play":
					require.NoError(t, s.Play())
				case "pause":
					require.NoError(t, s.Pause())
				case "stop":
					require.NoError(t, s.Stop())
				}
			}
			assert.Equal(t, tt.want, s.Playing())
			assert.Equal(t, tt.want, s.Stats().Intent)
		})
	}
}

func TestStopDetachesQueue(t *testing.T) {
	dev := newRecordingDevice(0)
	s := newTestSession(t, dev, silentProducer(), nil)

	require.NoError(t, s.SetFormat(mono1k))
	require.NoError(t, s.reconfigure())
	for range 2 {
		slot, err := s.acquireSlot(context.Background())
		require.NoError(t, err)
		require.NoError(t, s.submit(slot, constChunk(10, 1, 0)))
	}
	assert.Equal(t, 2, s.pool.queued())

	require.NoError(t, s.Stop())
	assert.Equal(t, 0, s.pool.queued())

	queued, err := dev.Sim.QueuedCount(s.source)
	require.NoError(t, err)
	assert.Zero(t, queued)

	state, err := s.DeviceState()
	require.NoError(t, err)
	assert.Equal(t, output.StateStopped, state)
}

func TestSetFormatIsDeferred(t *testing.T) {
	s := newTestSession(t, newRecordingDevice(0), silentProducer(), nil)

	assert.ErrorIs(t, s.SetFormat(audio.Format{Channels: 0, SampleRate: 44100}), ErrInvalidFormat)

	require.NoError(t, s.SetFormat(mono1k))
	assert.Equal(t, stereo44k, s.Format(), "format changes only at reconfiguration")

	require.NoError(t, s.reconfigure())
	assert.Equal(t, mono1k, s.Format())
	assert.Equal(t, 500, s.FrameBudget())
	s.releaseEncoder()
}

func TestCloseTeardownOrder(t *testing.T) {
	dev := newRecordingDevice(0)
	s := newTestSession(t, dev, silentProducer(), nil)

	require.NoError(t, s.Close())

	want := []string{"Stop", "DeleteSource", "DeleteBuffers", "MakeCurrent:0", "DestroySession", "Close"}
	calls := dev.callLog()
	require.GreaterOrEqual(t, len(calls), len(want))
	assert.Equal(t, want, calls[len(calls)-len(want):])

	assert.NoError(t, s.Close(), "close is idempotent")
	assert.ErrorIs(t, s.Play(), ErrClosed)
	assert.ErrorIs(t, s.Initialize(stereo44k), ErrClosed)
}

func TestCloseReportsFirstError(t *testing.T) {
	dev := newRecordingDevice(0)
	s := newTestSession(t, dev, silentProducer(), nil)

	dev.failOn("DeleteSource", output.InvalidName)

	err := s.Close()
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, "delete source", devErr.Op)

	// teardown continues past the failure
	assert.Contains(t, dev.callLog(), "DestroySession")
}

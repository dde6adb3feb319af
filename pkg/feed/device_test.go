// ABOUTME: Recording playback device used by scheduler tests
// ABOUTME: Wraps the simulated device to log calls, capture submissions and inject failures
package feed

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio/output"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var stereo44k = audio.Format{Channels: 2, SampleRate: 44100, Encoding: audio.EncodingInt16}

// 1kHz mono: one frame per millisecond
var mono1k = audio.Format{Channels: 1, SampleRate: 1000, Encoding: audio.EncodingInt16}

type submission struct {
	slot   output.BufferSlot
	format audio.Format
	data   []byte
}

// first returns the first sample of the submission
func (s submission) first() int16 {
	return int16(binary.LittleEndian.Uint16(s.data))
}

type recordingDevice struct {
	*output.Sim
	clock *output.ManualClock

	mu          sync.Mutex
	calls       []string
	submissions []submission
	maxQueued   int
	unqueued    int
	fail        map[string]error
}

func newRecordingDevice(step time.Duration) *recordingDevice {
	clock := output.NewManualClock(step)
	return &recordingDevice{
		Sim:   output.NewSim(output.SimConfig{Clock: clock}),
		clock: clock,
		fail:  make(map[string]error),
	}
}

// record logs a call and returns the injected failure for op, if any
func (d *recordingDevice) record(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, op)
	return d.fail[op]
}

// check returns the injected failure for op without logging it
func (d *recordingDevice) check(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fail[op]
}

func (d *recordingDevice) failOn(op string, err error) {
	d.mu.Lock()
	d.fail[op] = err
	d.mu.Unlock()
}

// note appends a marker to the call log, used by producers to mark pulls
func (d *recordingDevice) note(marker string) {
	d.mu.Lock()
	d.calls = append(d.calls, marker)
	d.mu.Unlock()
}

func (d *recordingDevice) callLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *recordingDevice) submitted() []submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]submission(nil), d.submissions...)
}

func (d *recordingDevice) submitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.submissions)
}

func (d *recordingDevice) queuedPeak() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxQueued
}

func (d *recordingDevice) unqueueCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unqueued
}

func (d *recordingDevice) Open() (output.DeviceHandle, error) {
	if err := d.record("Open"); err != nil {
		return 0, err
	}
	return d.Sim.Open()
}

func (d *recordingDevice) CreateSession(dev output.DeviceHandle) (output.SessionHandle, error) {
	if err := d.record("CreateSession"); err != nil {
		return 0, err
	}
	return d.Sim.CreateSession(dev)
}

func (d *recordingDevice) MakeCurrent(s output.SessionHandle) error {
	op := "MakeCurrent"
	if s == 0 {
		op = "MakeCurrent:0"
	}
	if err := d.record(op); err != nil {
		return err
	}
	return d.Sim.MakeCurrent(s)
}

func (d *recordingDevice) DestroySession(s output.SessionHandle) error {
	if err := d.record("DestroySession"); err != nil {
		return err
	}
	return d.Sim.DestroySession(s)
}

func (d *recordingDevice) Close(dev output.DeviceHandle) error {
	if err := d.record("Close"); err != nil {
		return err
	}
	return d.Sim.Close(dev)
}

func (d *recordingDevice) AllocateBuffers(n int) ([]output.BufferSlot, error) {
	if err := d.record("AllocateBuffers"); err != nil {
		return nil, err
	}
	return d.Sim.AllocateBuffers(n)
}

func (d *recordingDevice) DeleteBuffers(slots []output.BufferSlot) error {
	if err := d.record("DeleteBuffers"); err != nil {
		return err
	}
	return d.Sim.DeleteBuffers(slots)
}

func (d *recordingDevice) AllocateSource() (output.SourceHandle, error) {
	if err := d.record("AllocateSource"); err != nil {
		return 0, err
	}
	return d.Sim.AllocateSource()
}

func (d *recordingDevice) DeleteSource(h output.SourceHandle) error {
	if err := d.record("DeleteSource"); err != nil {
		return err
	}
	return d.Sim.DeleteSource(h)
}

func (d *recordingDevice) Submit(slot output.BufferSlot, format audio.Format, data []byte) error {
	if err := d.record("Submit"); err != nil {
		return err
	}
	if err := d.Sim.Submit(slot, format, data); err != nil {
		return err
	}
	d.mu.Lock()
	d.submissions = append(d.submissions, submission{
		slot:   slot,
		format: format,
		data:   append([]byte(nil), data...),
	})
	d.mu.Unlock()
	return nil
}

func (d *recordingDevice) Attach(h output.SourceHandle, slot output.BufferSlot) error {
	if err := d.record("Attach"); err != nil {
		return err
	}
	if err := d.Sim.Attach(h, slot); err != nil {
		return err
	}
	queued, err := d.Sim.QueuedCount(h)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.maxQueued = max(d.maxQueued, queued)
	d.mu.Unlock()
	return nil
}

func (d *recordingDevice) DetachAll(h output.SourceHandle) error {
	if err := d.record("DetachAll"); err != nil {
		return err
	}
	return d.Sim.DetachAll(h)
}

func (d *recordingDevice) QueuedCount(h output.SourceHandle) (int, error) {
	if err := d.check("QueuedCount"); err != nil {
		return 0, err
	}
	return d.Sim.QueuedCount(h)
}

func (d *recordingDevice) ProcessedCount(h output.SourceHandle) (int, error) {
	if err := d.check("ProcessedCount"); err != nil {
		return 0, err
	}
	return d.Sim.ProcessedCount(h)
}

func (d *recordingDevice) UnqueueOne(h output.SourceHandle) (output.BufferSlot, error) {
	if err := d.record("UnqueueOne"); err != nil {
		return 0, err
	}
	slot, err := d.Sim.UnqueueOne(h)
	if err == nil {
		d.mu.Lock()
		d.unqueued++
		d.mu.Unlock()
	}
	return slot, err
}

func (d *recordingDevice) Play(h output.SourceHandle) error {
	if err := d.record("Play"); err != nil {
		return err
	}
	return d.Sim.Play(h)
}

func (d *recordingDevice) Pause(h output.SourceHandle) error {
	if err := d.record("Pause"); err != nil {
		return err
	}
	return d.Sim.Pause(h)
}

func (d *recordingDevice) Stop(h output.SourceHandle) error {
	if err := d.record("Stop"); err != nil {
		return err
	}
	return d.Sim.Stop(h)
}

func (d *recordingDevice) State(h output.SourceHandle) (output.SourceState, error) {
	if err := d.check("State"); err != nil {
		return 0, err
	}
	return d.Sim.State(h)
}

// indexOf returns the position of the first marker at or after from, or -1
func indexOf(calls []string, marker string, from int) int {
	for i := from; i < len(calls); i++ {
		if calls[i] == marker {
			return i
		}
	}
	return -1
}

func countOf(calls []string, marker string) int {
	n := 0
	for _, c := range calls {
		if c == marker {
			n++
		}
	}
	return n
}

// constChunk builds frames frames whose samples all equal value
func constChunk(frames, channels int, value int32) audio.Chunk {
	chunk := make(audio.Chunk, frames)
	for i := range chunk {
		frame := make(audio.Frame, channels)
		for c := range frame {
			frame[c] = value
		}
		chunk[i] = frame
	}
	return chunk
}

// scriptedProducer returns each step's chunk or error in order, then ErrDone
func scriptedProducer(dev *recordingDevice, steps ...func(frames int) (audio.Chunk, error)) Producer {
	var mu sync.Mutex
	next := 0
	return ProducerFunc(func(ctx context.Context, frames int) (audio.Chunk, error) {
		mu.Lock()
		i := next
		next++
		mu.Unlock()

		dev.note(fmt.Sprintf("pull:%d", frames))
		if i >= len(steps) {
			return nil, ErrDone
		}
		return steps[i](frames)
	})
}

func newTestSession(t *testing.T, dev *recordingDevice, producer Producer, mutate func(*Config)) *Session {
	t.Helper()

	cfg := Config{
		Device:   dev,
		Producer: producer,
		Format:   stereo44k,
		Logger:   zaptest.NewLogger(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

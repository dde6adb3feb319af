// ABOUTME: In-memory buffer and source engine shared by all playback backends
// ABOUTME: Tracks queues, processed counts and transport state and renders queued PCM
package output

import (
	"sync"
	"time"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"go.uber.org/zap"
)

// Clock supplies the time used to consume queued audio without a hardware callback
type Clock interface {
	Now() time.Time
}

// EngineStats counts engine activity since creation
type EngineStats struct {
	Submitted     int64
	BytesRendered int64
	Underruns     int64
}

type bufferData struct {
	format   audio.Format
	data     []byte
	attached SourceHandle
}

type sourceData struct {
	queue     []BufferSlot
	processed int
	offset    int
	state     SourceState
	carry     time.Duration
}

// Engine implements Device in memory; a backend drains it through Read or a Clock
type Engine struct {
	mu     sync.Mutex
	logger *zap.Logger

	nextID   uint32
	devices  map[DeviceHandle]bool
	sessions map[SessionHandle]DeviceHandle
	current  SessionHandle
	buffers  map[BufferSlot]*bufferData
	sources  map[SourceHandle]*sourceData
	primary  SourceHandle

	clock Clock
	last  time.Time

	// prepare runs outside the lock before a source starts playing
	prepare func(audio.Format) error

	stats EngineStats
}

func newEngine(logger *zap.Logger, clock Clock) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger:   logger,
		devices:  make(map[DeviceHandle]bool),
		sessions: make(map[SessionHandle]DeviceHandle),
		buffers:  make(map[BufferSlot]*bufferData),
		sources:  make(map[SourceHandle]*sourceData),
		clock:    clock,
	}
	if clock != nil {
		e.last = clock.Now()
	}
	return e
}

func (e *Engine) newID() uint32 {
	e.nextID++
	return e.nextID
}

// lock takes the engine mutex and consumes audio for the time elapsed since the last call
func (e *Engine) lock() {
	e.mu.Lock()
	if e.clock == nil {
		return
	}
	now := e.clock.Now()
	elapsed := now.Sub(e.last)
	e.last = now
	if elapsed <= 0 {
		return
	}
	for _, src := range e.sources {
		if src.state == StatePlaying {
			e.consumeLocked(src, elapsed)
		}
	}
}

func (e *Engine) requireCurrent() error {
	if e.current == 0 {
		return InvalidOperation
	}
	return nil
}

func (e *Engine) source(h SourceHandle) (*sourceData, error) {
	if err := e.requireCurrent(); err != nil {
		return nil, err
	}
	src, ok := e.sources[h]
	if !ok {
		return nil, InvalidName
	}
	return src, nil
}

// Open opens a device
func (e *Engine) Open() (DeviceHandle, error) {
	e.lock()
	defer e.mu.Unlock()

	h := DeviceHandle(e.newID())
	e.devices[h] = true
	return h, nil
}

// CreateSession creates a session on an opened device
func (e *Engine) CreateSession(dev DeviceHandle) (SessionHandle, error) {
	e.lock()
	defer e.mu.Unlock()

	if !e.devices[dev] {
		return 0, InvalidName
	}
	h := SessionHandle(e.newID())
	e.sessions[h] = dev
	return h, nil
}

// MakeCurrent selects the active session; 0 clears it
func (e *Engine) MakeCurrent(s SessionHandle) error {
	e.lock()
	defer e.mu.Unlock()

	if s != 0 {
		if _, ok := e.sessions[s]; !ok {
			return InvalidName
		}
	}
	e.current = s
	return nil
}

// DestroySession releases a session that is no longer current
func (e *Engine) DestroySession(s SessionHandle) error {
	e.lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[s]; !ok {
		return InvalidName
	}
	if e.current == s {
		return InvalidOperation
	}
	delete(e.sessions, s)
	return nil
}

// Close closes a device with no remaining sessions
func (e *Engine) Close(dev DeviceHandle) error {
	e.lock()
	defer e.mu.Unlock()

	if !e.devices[dev] {
		return InvalidName
	}
	for _, d := range e.sessions {
		if d == dev {
			return InvalidOperation
		}
	}
	delete(e.devices, dev)
	return nil
}

// AllocateBuffers creates n empty buffers
func (e *Engine) AllocateBuffers(n int) ([]BufferSlot, error) {
	e.lock()
	defer e.mu.Unlock()

	if err := e.requireCurrent(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, InvalidValue
	}
	slots := make([]BufferSlot, n)
	for i := range slots {
		slots[i] = BufferSlot(e.newID())
		e.buffers[slots[i]] = &bufferData{}
	}
	return slots, nil
}

// DeleteBuffers releases unattached buffers; nothing is deleted if any slot is invalid
func (e *Engine) DeleteBuffers(slots []BufferSlot) error {
	e.lock()
	defer e.mu.Unlock()

	if err := e.requireCurrent(); err != nil {
		return err
	}
	for _, slot := range slots {
		buf, ok := e.buffers[slot]
		if !ok {
			return InvalidName
		}
		if buf.attached != 0 {
			return InvalidOperation
		}
	}
	for _, slot := range slots {
		delete(e.buffers, slot)
	}
	return nil
}

// AllocateSource creates a source; the first live source is the one Read renders
func (e *Engine) AllocateSource() (SourceHandle, error) {
	e.lock()
	defer e.mu.Unlock()

	if err := e.requireCurrent(); err != nil {
		return 0, err
	}
	h := SourceHandle(e.newID())
	e.sources[h] = &sourceData{state: StateInitial}
	if e.primary == 0 {
		e.primary = h
	}
	return h, nil
}

// DeleteSource detaches the queue and releases the source
func (e *Engine) DeleteSource(h SourceHandle) error {
	e.lock()
	defer e.mu.Unlock()

	src, err := e.source(h)
	if err != nil {
		return err
	}
	e.detachLocked(src)
	delete(e.sources, h)
	if e.primary == h {
		e.primary = 0
	}
	return nil
}

// Submit copies data into an unattached buffer
func (e *Engine) Submit(slot BufferSlot, format audio.Format, data []byte) error {
	e.lock()
	defer e.mu.Unlock()

	if err := e.requireCurrent(); err != nil {
		return err
	}
	buf, ok := e.buffers[slot]
	if !ok {
		return InvalidName
	}
	if buf.attached != 0 {
		return InvalidOperation
	}
	if format.Validate() != nil {
		return InvalidValue
	}
	if format.Encoding != audio.EncodingInt16 {
		return InvalidEnum
	}
	if len(data)%format.BytesPerFrame() != 0 {
		return InvalidValue
	}

	buf.format = format
	buf.data = append(buf.data[:0], data...)
	e.stats.Submitted++
	return nil
}

// Attach appends an unattached buffer to the source queue
func (e *Engine) Attach(h SourceHandle, slot BufferSlot) error {
	e.lock()
	defer e.mu.Unlock()

	src, err := e.source(h)
	if err != nil {
		return err
	}
	buf, ok := e.buffers[slot]
	if !ok {
		return InvalidName
	}
	if buf.attached != 0 {
		return InvalidOperation
	}
	if len(src.queue) > 0 && e.buffers[src.queue[0]].format != buf.format {
		return InvalidOperation
	}

	buf.attached = h
	src.queue = append(src.queue, slot)
	return nil
}

// DetachAll empties the queue; a playing or paused source becomes stopped
func (e *Engine) DetachAll(h SourceHandle) error {
	e.lock()
	defer e.mu.Unlock()

	src, err := e.source(h)
	if err != nil {
		return err
	}
	e.detachLocked(src)
	return nil
}

func (e *Engine) detachLocked(src *sourceData) {
	for _, slot := range src.queue {
		if buf, ok := e.buffers[slot]; ok {
			buf.attached = 0
		}
	}
	src.queue = nil
	src.processed = 0
	src.offset = 0
	src.carry = 0
	if src.state == StatePlaying || src.state == StatePaused {
		src.state = StateStopped
	}
}

// QueuedCount returns the queue length
func (e *Engine) QueuedCount(h SourceHandle) (int, error) {
	e.lock()
	defer e.mu.Unlock()

	src, err := e.source(h)
	if err != nil {
		return 0, err
	}
	return len(src.queue), nil
}

// ProcessedCount returns how many buffers at the head of the queue have been played
func (e *Engine) ProcessedCount(h SourceHandle) (int, error) {
	e.lock()
	defer e.mu.Unlock()

	src, err := e.source(h)
	if err != nil {
		return 0, err
	}
	return src.processed, nil
}

// UnqueueOne removes the oldest processed buffer
func (e *Engine) UnqueueOne(h SourceHandle) (BufferSlot, error) {
	e.lock()
	defer e.mu.Unlock()

	src, err := e.source(h)
	if err != nil {
		return 0, err
	}
	if src.processed == 0 {
		return 0, InvalidValue
	}
	slot := src.queue[0]
	src.queue = src.queue[1:]
	src.processed--
	if buf, ok := e.buffers[slot]; ok {
		buf.attached = 0
	}
	return slot, nil
}

// Play starts at the first unprocessed buffer, or resumes a paused source in place
func (e *Engine) Play(h SourceHandle) error {
	e.lock()
	src, err := e.source(h)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if src.state == StatePlaying {
		e.mu.Unlock()
		return nil
	}
	var format audio.Format
	if src.processed < len(src.queue) {
		format = e.buffers[src.queue[src.processed]].format
	}
	prepare := e.prepare
	e.mu.Unlock()

	if prepare != nil && format.SampleRate > 0 {
		if err := prepare(format); err != nil {
			e.logger.Error("failed to prepare output", zap.Stringer("format", format), zap.Error(err))
			return InvalidOperation
		}
	}

	e.lock()
	defer e.mu.Unlock()
	src, err = e.source(h)
	if err != nil {
		return err
	}
	src.state = StatePlaying
	return nil
}

// Pause halts a playing source in place
func (e *Engine) Pause(h SourceHandle) error {
	e.lock()
	defer e.mu.Unlock()

	src, err := e.source(h)
	if err != nil {
		return err
	}
	if src.state == StatePlaying {
		src.state = StatePaused
	}
	return nil
}

// Stop halts the source and marks the whole queue processed
func (e *Engine) Stop(h SourceHandle) error {
	e.lock()
	defer e.mu.Unlock()

	src, err := e.source(h)
	if err != nil {
		return err
	}
	src.state = StateStopped
	src.processed = len(src.queue)
	src.offset = 0
	src.carry = 0
	return nil
}

// State returns the transport state
func (e *Engine) State(h SourceHandle) (SourceState, error) {
	e.lock()
	defer e.mu.Unlock()

	src, err := e.source(h)
	if err != nil {
		return 0, err
	}
	return src.state, nil
}

// Stats returns a snapshot of engine counters
func (e *Engine) Stats() EngineStats {
	e.lock()
	defer e.mu.Unlock()
	return e.stats
}

// Read renders the primary source as int16 PCM; silence fills whatever is not playing
func (e *Engine) Read(p []byte) (int, error) {
	e.lock()
	defer e.mu.Unlock()

	n := 0
	if src, ok := e.sources[e.primary]; ok && src.state == StatePlaying {
		n = e.renderLocked(src, p)
	}
	clear(p[n:])
	return len(p), nil
}

// renderLocked copies queued bytes into p, stopping the source when the queue runs dry
func (e *Engine) renderLocked(src *sourceData, p []byte) int {
	n := 0
	for n < len(p) {
		if src.processed >= len(src.queue) {
			e.underrunLocked(src)
			break
		}
		buf := e.buffers[src.queue[src.processed]]
		c := copy(p[n:], buf.data[src.offset:])
		n += c
		src.offset += c
		if src.offset >= len(buf.data) {
			src.processed++
			src.offset = 0
		}
	}
	e.stats.BytesRendered += int64(n)
	return n
}

// consumeLocked plays d worth of frames from the queue
func (e *Engine) consumeLocked(src *sourceData, d time.Duration) {
	d += src.carry
	src.carry = 0

	for src.state == StatePlaying {
		if src.processed >= len(src.queue) {
			e.underrunLocked(src)
			return
		}
		buf := e.buffers[src.queue[src.processed]]
		bpf := buf.format.BytesPerFrame()
		remaining := 0
		if bpf > 0 {
			remaining = (len(buf.data) - src.offset) / bpf
		}
		if remaining == 0 {
			src.processed++
			src.offset = 0
			continue
		}

		avail := buf.format.Duration(remaining)
		if d < avail {
			frames := int(int64(d) * int64(buf.format.SampleRate) / int64(time.Second))
			src.offset += frames * bpf
			src.carry = d - buf.format.Duration(frames)
			e.stats.BytesRendered += int64(frames * bpf)
			return
		}

		d -= avail
		e.stats.BytesRendered += int64(remaining * bpf)
		src.processed++
		src.offset = 0
	}
}

func (e *Engine) underrunLocked(src *sourceData) {
	src.state = StateStopped
	src.offset = 0
	src.carry = 0
	e.stats.Underruns++
	e.logger.Debug("source ran out of queued audio")
}

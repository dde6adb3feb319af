// ABOUTME: Playback session owning the device, buffer pool and source
// ABOUTME: Construction, initialization, transport control, format state and teardown
package feed

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio/encode"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio/output"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultPoolSize       = 3
	DefaultPollInterval   = 100 * time.Microsecond
	DefaultBufferDuration = 500 * time.Millisecond
)

// Config holds session configuration
type Config struct {
	// Device is the playback device
	Device output.Device

	// Producer supplies PCM frames
	Producer Producer

	// Format is the initial stream format used by Open
	Format audio.Format

	// PoolSize is the number of device buffers (default: 3)
	PoolSize int

	// PollInterval is how often a full queue is checked for finished buffers (default: 100µs)
	PollInterval time.Duration

	// BufferDuration is the audio held by one buffer, which sets the frame budget (default: 500ms)
	BufferDuration time.Duration

	// WaitForPlaying stops buffers being reclaimed while the device is paused
	WaitForPlaying bool

	// Logger receives session logs (default: no-op)
	Logger *zap.Logger

	// Metrics is updated when set
	Metrics *Metrics

	// OnError is called when a background feeder stops with an error
	OnError func(error)
}

// Stats contains session counters
type Stats struct {
	SessionID        string
	Format           audio.Format
	FrameBudget      int
	PoolSize         int
	Intent           bool
	Queued           int
	BuffersSubmitted int64
	FramesSubmitted  int64
	ForcedResumes    int64
	Drops            int64
	Reconfigurations int64
}

// Session streams producer audio into a ring of device buffers
type Session struct {
	id       string
	config   Config
	dev      output.Device
	producer Producer
	logger   *zap.Logger
	metrics  *Metrics

	// devMu serializes every device call sequence
	devMu       sync.Mutex
	initialized bool
	closed      bool
	devHandle   output.DeviceHandle
	sessHandle  output.SessionHandle
	source      output.SourceHandle
	pool        *pool
	sawPlaying  bool

	intent atomic.Bool

	fmtMu   sync.Mutex
	format  audio.Format
	pending *audio.Format

	// loop state, owned by whichever loop holds running
	running atomic.Bool
	active  audio.Format
	budget  atomic.Int64
	encoder *encode.PCM16

	feederMu sync.Mutex
	feeder   *Feeder

	buffersSubmitted atomic.Int64
	framesSubmitted  atomic.Int64
	forcedResumes    atomic.Int64
	drops            atomic.Int64
	reconfigurations atomic.Int64
	lastQueued       atomic.Int64
}

// New validates config and applies defaults; no device calls are made
func New(config Config) (*Session, error) {
	if config.Producer == nil {
		return nil, ErrNoProducer
	}
	if config.Device == nil {
		return nil, ErrNoDevice
	}
	if config.PoolSize == 0 {
		config.PoolSize = DefaultPoolSize
	}
	if config.PoolSize < 1 {
		return nil, fmt.Errorf("pool size must be positive, got %d", config.PoolSize)
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.BufferDuration <= 0 {
		config.BufferDuration = DefaultBufferDuration
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	id := uuid.New().String()
	return &Session{
		id:       id,
		config:   config,
		dev:      config.Device,
		producer: config.Producer,
		logger:   config.Logger.With(zap.String("session", id[:8])),
		metrics:  config.Metrics,
	}, nil
}

// Open creates a session and initializes it with config.Format
func Open(config Config) (*Session, error) {
	s, err := New(config)
	if err != nil {
		return nil, err
	}
	if err := s.Initialize(config.Format); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Initialize opens the device, creates and selects a session, and allocates the pool and source
func (s *Session) Initialize(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return err
	}
	if format.Encoding != audio.EncodingInt16 {
		return fmt.Errorf("%w: %s", ErrNotImplemented, format.Encoding)
	}

	s.devMu.Lock()
	defer s.devMu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.initialized {
		return ErrAlreadyInitialized
	}

	dev, err := s.dev.Open()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceOpen, err)
	}

	sess, err := s.dev.CreateSession(dev)
	if err != nil {
		_ = s.dev.Close(dev)
		return fmt.Errorf("%w: %w", ErrSessionCreate, err)
	}

	unwind := func() {
		_ = s.dev.MakeCurrent(0)
		_ = s.dev.DestroySession(sess)
		_ = s.dev.Close(dev)
	}

	if err := s.dev.MakeCurrent(sess); err != nil {
		unwind()
		return deviceErr("make current", err)
	}

	slots, err := s.dev.AllocateBuffers(s.config.PoolSize)
	if err != nil {
		unwind()
		return deviceErr("generate buffers", err)
	}

	src, err := s.dev.AllocateSource()
	if err != nil {
		_ = s.dev.DeleteBuffers(slots)
		unwind()
		return deviceErr("generate source", err)
	}

	s.devHandle = dev
	s.sessHandle = sess
	s.source = src
	s.pool = newPool(slots)
	s.initialized = true

	s.fmtMu.Lock()
	s.format = format
	s.pending = nil
	s.fmtMu.Unlock()

	s.logger.Info("session initialized",
		zap.Stringer("format", format),
		zap.Int("buffers", len(slots)))
	return nil
}

func (s *Session) requireInitialized() error {
	if s.closed {
		return ErrClosed
	}
	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

// Play sets the intent to playing and starts the device
func (s *Session) Play() error {
	s.devMu.Lock()
	defer s.devMu.Unlock()

	if err := s.requireInitialized(); err != nil {
		return err
	}
	s.setIntent(true)
	return deviceErr("play", s.dev.Play(s.source))
}

// Pause clears the intent and pauses the device, keeping queued buffers
func (s *Session) Pause() error {
	s.devMu.Lock()
	defer s.devMu.Unlock()

	if err := s.requireInitialized(); err != nil {
		return err
	}
	s.setIntent(false)
	return deviceErr("pause", s.dev.Pause(s.source))
}

// Stop clears the intent, detaches every queued buffer and halts the device
func (s *Session) Stop() error {
	s.devMu.Lock()
	defer s.devMu.Unlock()

	if err := s.requireInitialized(); err != nil {
		return err
	}
	s.setIntent(false)
	return s.haltLocked()
}

// haltLocked detaches all buffers and stops the device (must hold s.devMu)
func (s *Session) haltLocked() error {
	if err := s.dev.DetachAll(s.source); err != nil {
		return deviceErr("detach all", err)
	}
	s.pool.releaseAll()
	s.sawPlaying = false
	s.lastQueued.Store(0)
	return deviceErr("stop", s.dev.Stop(s.source))
}

func (s *Session) setIntent(playing bool) {
	s.intent.Store(playing)
	s.metrics.setIntent(playing)
}

// Playing reports the playback intent
func (s *Session) Playing() bool {
	return s.intent.Load()
}

// DeviceState returns the state the device reports for the session's source
func (s *Session) DeviceState() (output.SourceState, error) {
	s.devMu.Lock()
	defer s.devMu.Unlock()

	if err := s.requireInitialized(); err != nil {
		return 0, err
	}
	state, err := s.dev.State(s.source)
	return state, deviceErr("source state", err)
}

// SetFormat records a format to adopt at the next reconfiguration
func (s *Session) SetFormat(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return err
	}
	s.fmtMu.Lock()
	s.pending = &format
	s.fmtMu.Unlock()
	return nil
}

// Format returns the format in effect
func (s *Session) Format() audio.Format {
	s.fmtMu.Lock()
	defer s.fmtMu.Unlock()
	return s.format
}

// adoptPending makes a pending format current and returns the current format
func (s *Session) adoptPending() audio.Format {
	s.fmtMu.Lock()
	defer s.fmtMu.Unlock()
	if s.pending != nil {
		s.format = *s.pending
		s.pending = nil
	}
	return s.format
}

// Drops returns how many times the device ran dry mid-stream and had to be resumed
func (s *Session) Drops() int64 {
	return s.drops.Load()
}

// FrameBudget returns the frames requested per pull for the current format
func (s *Session) FrameBudget() int {
	return int(s.budget.Load())
}

// Stats returns a snapshot of session counters
func (s *Session) Stats() Stats {
	return Stats{
		SessionID:        s.id,
		Format:           s.Format(),
		FrameBudget:      s.FrameBudget(),
		PoolSize:         s.config.PoolSize,
		Intent:           s.intent.Load(),
		Queued:           int(s.lastQueued.Load()),
		BuffersSubmitted: s.buffersSubmitted.Load(),
		FramesSubmitted:  s.framesSubmitted.Load(),
		ForcedResumes:    s.forcedResumes.Load(),
		Drops:            s.drops.Load(),
		Reconfigurations: s.reconfigurations.Load(),
	}
}

// Close halts any feeder and releases the source, buffers, session and device in that order
func (s *Session) Close() error {
	haltErr := s.Halt()
	if errors.Is(haltErr, ErrNotInitialized) || errors.Is(haltErr, ErrClosed) {
		haltErr = nil
	}

	s.devMu.Lock()
	defer s.devMu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if !s.initialized {
		return haltErr
	}

	s.intent.Store(false)
	errs := []error{
		haltErr,
		deviceErr("stop", s.dev.Stop(s.source)),
		deviceErr("delete source", s.dev.DeleteSource(s.source)),
		deviceErr("delete buffers", s.dev.DeleteBuffers(s.pool.slots)),
		deviceErr("clear current", s.dev.MakeCurrent(0)),
		deviceErr("destroy session", s.dev.DestroySession(s.sessHandle)),
		deviceErr("close device", s.dev.Close(s.devHandle)),
	}
	s.initialized = false

	for _, err := range errs {
		if err != nil {
			s.logger.Warn("session teardown error", zap.Error(err))
			return err
		}
	}
	s.logger.Info("session closed")
	return nil
}

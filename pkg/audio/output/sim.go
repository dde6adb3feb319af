// ABOUTME: Simulated playback device driven by a clock instead of hardware
// ABOUTME: Consumes queued buffers at the submitted sample rate for headless runs and tests
package output

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// SimConfig holds simulated device configuration
type SimConfig struct {
	// Clock drives playback; defaults to wall time
	Clock Clock

	Logger *zap.Logger
}

// Sim is a Device that plays buffers against a clock
type Sim struct {
	*Engine
}

// NewSim creates a simulated device
func NewSim(config SimConfig) *Sim {
	if config.Clock == nil {
		config.Clock = systemClock{}
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Sim{Engine: newEngine(config.Logger.Named("sim"), config.Clock)}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that moves only when told to, plus a fixed step on every reading
type ManualClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewManualClock creates a clock that advances by step each time Now is called
func NewManualClock(step time.Duration) *ManualClock {
	return &ManualClock{now: time.Unix(0, 0), step: step}
}

// Now returns the current reading and then advances by the step
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// SetStep changes the automatic step
func (c *ManualClock) SetStep(step time.Duration) {
	c.mu.Lock()
	c.step = step
	c.mu.Unlock()
}

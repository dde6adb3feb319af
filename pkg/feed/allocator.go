// ABOUTME: Buffer slot allocation for the feed loop
// ABOUTME: Uses never-queued slots first, then polls the device for a finished buffer
package feed

import (
	"context"
	"time"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio/output"
)

// acquireSlot returns a slot that is not queued on the device.
// The queued count is re-read on every iteration, so a Stop that detaches
// everything while this waits frees a slot instead of leaving it polling forever.
func (s *Session) acquireSlot(ctx context.Context) (output.BufferSlot, error) {
	start := time.Now()
	defer func() {
		s.metrics.waited(time.Since(start))
	}()

	var ticker *time.Ticker
	for {
		slot, ok, err := s.tryAcquire()
		if err != nil {
			return 0, err
		}
		if ok {
			return slot, nil
		}

		if ticker == nil {
			ticker = time.NewTicker(s.config.PollInterval)
			defer ticker.Stop()
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// tryAcquire makes one allocation attempt under the device lock
func (s *Session) tryAcquire() (output.BufferSlot, bool, error) {
	s.devMu.Lock()
	defer s.devMu.Unlock()

	if err := s.requireInitialized(); err != nil {
		return 0, false, err
	}

	queued, err := s.dev.QueuedCount(s.source)
	if err != nil {
		return 0, false, deviceErr("queued count", err)
	}
	if queued < s.pool.size() {
		if slot, ok := s.pool.free(); ok {
			return slot, true, nil
		}
	}

	if s.config.WaitForPlaying {
		state, err := s.dev.State(s.source)
		if err != nil {
			return 0, false, deviceErr("source state", err)
		}
		if state == output.StatePaused {
			return 0, false, nil
		}
	}

	processed, err := s.dev.ProcessedCount(s.source)
	if err != nil {
		return 0, false, deviceErr("processed count", err)
	}
	if processed < 1 {
		return 0, false, nil
	}

	slot, err := s.dev.UnqueueOne(s.source)
	if err != nil {
		return 0, false, deviceErr("unqueue", err)
	}
	s.pool.release(slot)
	return slot, true, nil
}

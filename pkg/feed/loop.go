// ABOUTME: Cooperative feed loop moving producer audio into device buffers
// ABOUTME: Acquire a slot, pull a chunk, convert, queue and keep the device playing
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio/output"
	"go.uber.org/zap"
)

// Stream runs the feed loop on the calling goroutine until the producer is
// done, an error occurs, or ctx is cancelled. Only one loop runs per session.
func (s *Session) Stream(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrStreamActive
	}
	defer s.running.Store(false)
	return s.run(ctx)
}

func (s *Session) run(ctx context.Context) error {
	defer s.releaseEncoder()

	for {
		if err := s.reconfigure(); err != nil {
			return err
		}

		err := s.feedSegment(ctx)
		switch {
		case errors.Is(err, io.EOF):
			s.logger.Debug("format boundary reached")
			continue
		case errors.Is(err, ErrDone):
			s.logger.Info("producer finished, draining queued audio")
			return s.drain(ctx)
		default:
			return err
		}
	}
}

// feedSegment feeds buffers until the producer signals a boundary or fails
func (s *Session) feedSegment(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.feedOnce(ctx); err != nil {
			return err
		}
	}
}

// feedOnce fills and queues a single buffer
func (s *Session) feedOnce(ctx context.Context) error {
	slot, err := s.acquireSlot(ctx)
	if err != nil {
		return err
	}

	chunk, err := s.producer.Pull(ctx, s.FrameBudget())
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, ErrDone) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("producer failed: %w", err)
	}
	if len(chunk) == 0 {
		return nil
	}
	return s.submit(slot, chunk)
}

// submit converts chunk into slot, queues it and reconciles the transport
func (s *Session) submit(slot output.BufferSlot, chunk audio.Chunk) error {
	data, err := s.encoder.Encode(chunk)
	if err != nil {
		return err
	}

	s.devMu.Lock()
	defer s.devMu.Unlock()

	if err := s.requireInitialized(); err != nil {
		return err
	}
	if err := s.dev.Submit(slot, s.active, data); err != nil {
		return deviceErr("buffer data", err)
	}
	if err := s.dev.Attach(s.source, slot); err != nil {
		return deviceErr("queue a buffer", err)
	}
	s.pool.markQueued(slot)

	queued := s.pool.queued()
	s.lastQueued.Store(int64(queued))
	s.buffersSubmitted.Add(1)
	s.framesSubmitted.Add(int64(len(chunk)))
	s.metrics.submitted(len(chunk), queued)

	if ce := s.logger.Check(zap.DebugLevel, "buffer queued"); ce != nil {
		ce.Write(
			zap.Uint32("slot", uint32(slot)),
			zap.Int("frames", len(chunk)),
			zap.Int("queued", queued))
	}

	return s.reconcileLocked()
}

// drain waits until every queued buffer has played or the device stops.
// A paused device keeps its queue, so the wait continues until it resumes.
func (s *Session) drain(ctx context.Context) error {
	interval := max(s.config.PollInterval, time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := s.drained()
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Session) drained() (bool, error) {
	s.devMu.Lock()
	defer s.devMu.Unlock()

	if err := s.requireInitialized(); err != nil {
		return false, err
	}
	state, err := s.dev.State(s.source)
	if err != nil {
		return false, deviceErr("source state", err)
	}
	switch state {
	case output.StateStopped, output.StateInitial:
		return true, nil
	}
	queued, err := s.dev.QueuedCount(s.source)
	if err != nil {
		return false, deviceErr("queued count", err)
	}
	processed, err := s.dev.ProcessedCount(s.source)
	if err != nil {
		return false, deviceErr("processed count", err)
	}
	return processed >= queued, nil
}

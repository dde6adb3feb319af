// ABOUTME: Format negotiation between producer segments
// ABOUTME: Clears the device queue, adopts the pending format and resizes the conversion buffer
package feed

import (
	"fmt"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio/encode"
	"go.uber.org/zap"
)

// reconfigure runs before the first pull and after every format boundary.
// Intent survives: a playing session resumes on the next submission.
func (s *Session) reconfigure() error {
	s.devMu.Lock()
	if err := s.requireInitialized(); err != nil {
		s.devMu.Unlock()
		return err
	}
	err := s.haltLocked()
	s.devMu.Unlock()
	if err != nil {
		return err
	}

	format := s.adoptPending()
	if format.Encoding != audio.EncodingInt16 {
		return fmt.Errorf("%w: %s", ErrNotImplemented, format.Encoding)
	}

	budget := max(1, format.FramesFor(s.config.BufferDuration))

	s.releaseEncoder()
	enc, err := encode.NewPCM16(format, budget)
	if err != nil {
		return fmt.Errorf("failed to create conversion buffer: %w", err)
	}
	s.encoder = enc
	s.active = format
	s.budget.Store(int64(budget))
	s.reconfigurations.Add(1)
	s.metrics.reconfigured()

	s.logger.Info("stream format configured",
		zap.Stringer("format", format),
		zap.Int("frame_budget", budget),
		zap.Int("buffer_samples", enc.Capacity()))
	return nil
}

func (s *Session) releaseEncoder() {
	if s.encoder != nil {
		_ = s.encoder.Close()
		s.encoder = nil
	}
}

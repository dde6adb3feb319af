// ABOUTME: Reconciles device transport state with the scheduler's playback intent
// ABOUTME: Restarts a starved device and counts the resulting playback gaps
package feed

import (
	"github.com/Resonate-Protocol/ringfeed/pkg/audio/output"
	"go.uber.org/zap"
)

// reconcileLocked resumes the device when it is not playing but intent is set.
// A device seen playing since the last stop that is now idle has starved; that
// counts as a drop. Must hold s.devMu.
func (s *Session) reconcileLocked() error {
	state, err := s.dev.State(s.source)
	if err != nil {
		return deviceErr("source state", err)
	}
	if state == output.StatePlaying {
		s.sawPlaying = true
		return nil
	}
	if !s.intent.Load() {
		return nil
	}

	drop := s.sawPlaying && state == output.StateStopped
	if drop {
		s.drops.Add(1)
		s.logger.Warn("starvation detected, resuming playback",
			zap.Stringer("state", state),
			zap.Int64("drops", s.drops.Load()))
	} else {
		s.logger.Debug("starting playback", zap.Stringer("state", state))
	}
	s.forcedResumes.Add(1)
	s.metrics.resumed(drop)

	if err := s.dev.Play(s.source); err != nil {
		return deviceErr("play", err)
	}
	s.sawPlaying = true
	return nil
}

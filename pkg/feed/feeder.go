// ABOUTME: Background feeder running the feed loop on its own goroutine
// ABOUTME: Spawning replaces any running feeder so a session never has two loops
package feed

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Feeder is a handle to a feed loop running in the background
type Feeder struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// ID returns the feeder identifier
func (f *Feeder) ID() string {
	return f.id
}

// Done is closed when the feeder has stopped
func (f *Feeder) Done() <-chan struct{} {
	return f.done
}

// Err returns the loop's error once Done is closed; cancellation is not an error
func (f *Feeder) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the feeder stops and returns its error
func (f *Feeder) Wait() error {
	<-f.done
	return f.err
}

func (f *Feeder) halt() error {
	f.cancel()
	<-f.done
	return f.err
}

// Spawn starts the feed loop in the background. A feeder already running on
// the session is cancelled and fully stopped before the new one starts.
func (s *Session) Spawn(ctx context.Context) (*Feeder, error) {
	s.feederMu.Lock()
	defer s.feederMu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if old := s.feeder; old != nil {
		s.feeder = nil
		if err := old.halt(); err != nil {
			s.logger.Debug("previous feeder stopped with error", zap.Error(err))
		}
		s.logger.Debug("previous feeder stopped", zap.String("feeder", old.id))
	}

	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrStreamActive
	}

	loopCtx, cancel := context.WithCancel(ctx)
	f := &Feeder{
		id:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.feeder = f
	s.metrics.spawned()

	logger := s.logger.With(zap.String("feeder", f.id[:8]))
	logger.Info("feeder started")

	go func() {
		defer close(f.done)
		defer s.running.Store(false)
		defer cancel()

		err := s.run(loopCtx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		f.err = err

		if err != nil {
			s.metrics.feederFailed()
			if s.config.OnError != nil {
				s.config.OnError(err)
			} else {
				logger.Error("feeder stopped", zap.Error(err))
			}
			return
		}
		logger.Info("feeder finished")
	}()

	return f, nil
}

// Halt stops the background feeder, if any, and returns its error
func (s *Session) Halt() error {
	s.feederMu.Lock()
	defer s.feederMu.Unlock()

	f := s.feeder
	if f == nil {
		return nil
	}
	s.feeder = nil
	return f.halt()
}

func (s *Session) checkOpen() error {
	s.devMu.Lock()
	defer s.devMu.Unlock()
	return s.requireInitialized()
}

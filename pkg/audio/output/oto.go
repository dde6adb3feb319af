// ABOUTME: Oto-based playback device
// ABOUTME: An oto player pulls rendered int16 PCM from the buffer engine
package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// OtoConfig holds oto device configuration
type OtoConfig struct {
	// BufferSize is the hardware buffer duration; zero lets oto decide
	BufferSize time.Duration

	Logger *zap.Logger
}

// Oto is a Device that plays through ebitengine/oto
type Oto struct {
	*Engine

	outMu      sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	format     audio.Format
	bufferSize time.Duration
	logger     *zap.Logger
}

// NewOto creates an oto-backed device; the audio context is created on first playback
func NewOto(config OtoConfig) *Oto {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	logger := config.Logger.Named("oto")

	o := &Oto{
		Engine:     newEngine(logger, nil),
		bufferSize: config.BufferSize,
		logger:     logger,
	}
	o.Engine.prepare = o.ensurePlayer
	return o
}

// ensurePlayer creates the oto context and a persistent player reading from the engine
func (o *Oto) ensurePlayer(format audio.Format) error {
	o.outMu.Lock()
	defer o.outMu.Unlock()

	// oto allows one context per process, so a later format change cannot be honoured
	if o.otoCtx != nil {
		if format != o.format {
			o.logger.Warn("format change detected but oto doesn't support reinitialization, continuing with existing context",
				zap.Stringer("from", o.format), zap.Stringer("to", format))
		}
		if o.player == nil {
			if err := o.otoCtx.Resume(); err != nil {
				return fmt.Errorf("failed to resume oto context: %w", err)
			}
			o.player = o.otoCtx.NewPlayer(o.Engine)
			o.player.Play()
		}
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   o.bufferSize,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.format = format
	o.player = ctx.NewPlayer(o.Engine)
	o.player.Play()

	o.logger.Info("audio output initialized", zap.Stringer("format", format))
	return nil
}

// Close closes the device and releases the player
func (o *Oto) Close(dev DeviceHandle) error {
	if err := o.Engine.Close(dev); err != nil {
		return err
	}

	o.outMu.Lock()
	defer o.outMu.Unlock()

	if o.player != nil {
		if err := o.player.Close(); err != nil {
			o.logger.Warn("oto player close error", zap.Error(err))
		}
		o.player = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			o.logger.Warn("oto context suspend error", zap.Error(err))
		}
	}
	return nil
}

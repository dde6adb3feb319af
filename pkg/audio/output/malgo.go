// ABOUTME: Malgo-based playback device
// ABOUTME: The miniaudio data callback pulls rendered int16 PCM from the buffer engine
package output

import (
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// MalgoConfig holds malgo device configuration
type MalgoConfig struct {
	// PeriodSizeInMilliseconds sets the callback period; zero keeps the miniaudio default
	PeriodSizeInMilliseconds uint32

	Logger *zap.Logger
}

// Malgo is a Device that plays through miniaudio
type Malgo struct {
	*Engine

	outMu    sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	format   audio.Format
	period   uint32
	logger   *zap.Logger
}

// NewMalgo creates a miniaudio-backed device
func NewMalgo(config MalgoConfig) *Malgo {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	logger := config.Logger.Named("malgo")

	m := &Malgo{
		Engine: newEngine(logger, nil),
		period: config.PeriodSizeInMilliseconds,
		logger: logger,
	}
	m.Engine.prepare = m.ensureDevice
	return m
}

// Open initializes the miniaudio context and opens the device
func (m *Malgo) Open() (DeviceHandle, error) {
	m.outMu.Lock()
	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
			m.logger.Debug("miniaudio", zap.String("message", message))
		})
		if err != nil {
			m.outMu.Unlock()
			return 0, fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}
	m.outMu.Unlock()

	return m.Engine.Open()
}

// ensureDevice starts a playback device matching format, reinitializing on format change
func (m *Malgo) ensureDevice(format audio.Format) error {
	m.outMu.Lock()
	defer m.outMu.Unlock()

	if m.device != nil && m.format == format {
		return nil
	}
	if m.malgoCtx == nil {
		return fmt.Errorf("malgo context not initialized")
	}

	if m.device != nil {
		m.logger.Info("format change detected, reinitializing device",
			zap.Stringer("from", m.format), zap.Stringer("to", format))
		m.closeDevice()
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1
	if m.period > 0 {
		deviceConfig.PeriodSizeInMilliseconds = m.period
	}

	bytesPerFrame := format.BytesPerFrame()
	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n > len(pOutputSample) {
				n = len(pOutputSample)
			}
			_, _ = m.Engine.Read(pOutputSample[:n])
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start device: %w", err)
	}

	m.device = device
	m.format = format
	m.logger.Info("audio output initialized", zap.Stringer("format", format))
	return nil
}

// Close closes the device and releases miniaudio resources
func (m *Malgo) Close(dev DeviceHandle) error {
	if err := m.Engine.Close(dev); err != nil {
		return err
	}

	m.outMu.Lock()
	defer m.outMu.Unlock()

	m.closeDevice()
	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			m.logger.Warn("malgo context uninit error", zap.Error(err))
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

// closeDevice stops and uninitializes the device (must hold m.outMu)
func (m *Malgo) closeDevice() {
	if m.device == nil {
		return
	}
	if err := m.device.Stop(); err != nil {
		m.logger.Warn("device stop error", zap.Error(err))
	}
	m.device.Uninit()
	m.device = nil
}

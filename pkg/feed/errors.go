// ABOUTME: Error values returned by the feed scheduler
// ABOUTME: Sentinel errors plus DeviceError, which names the device operation that failed
package feed

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio/output"
)

var (
	// ErrNoProducer is returned by New when no producer is configured
	ErrNoProducer = errors.New("a producer is required")

	// ErrNoDevice is returned by New when no device is configured
	ErrNoDevice = errors.New("a playback device is required")

	// ErrNotImplemented is returned for sample encodings other than int16
	ErrNotImplemented = errors.New("sample encoding not implemented")

	// ErrDeviceOpen wraps a failure to open the playback device
	ErrDeviceOpen = errors.New("failed to open device")

	// ErrSessionCreate wraps a failure to create a playback session
	ErrSessionCreate = errors.New("failed to create session")

	// ErrNotInitialized is returned by operations that need an initialized session
	ErrNotInitialized = errors.New("session not initialized")

	// ErrAlreadyInitialized is returned by a second Initialize call
	ErrAlreadyInitialized = errors.New("session already initialized")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("session closed")

	// ErrStreamActive is returned when a feed loop is already running on the session
	ErrStreamActive = errors.New("a feed loop is already running")

	// ErrDone is returned by a producer that has no more audio; the loop drains and stops
	ErrDone = errors.New("producer exhausted")

	// ErrInvalidFormat is returned for formats with no channels or no sample rate
	ErrInvalidFormat = audio.ErrInvalidFormat

	// ErrInvalidChunk is returned when a pulled chunk has the wrong frame width or length
	ErrInvalidChunk = audio.ErrInvalidChunk
)

// DeviceError reports a failed device operation
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error: %v (%s)", e.Err, e.Op)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Code returns the device error code when the device reported one
func (e *DeviceError) Code() (output.Code, bool) {
	var code output.Code
	if errors.As(e.Err, &code) {
		return code, true
	}
	return 0, false
}

func deviceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DeviceError{Op: op, Err: err}
}

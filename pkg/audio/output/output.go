// ABOUTME: Playback device interface definition
// ABOUTME: Buffer, source and session primitives shared by every playback backend
package output

import (
	"fmt"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
)

// DeviceHandle identifies an opened playback device
type DeviceHandle uint32

// SessionHandle identifies a playback session created on a device
type SessionHandle uint32

// SourceHandle identifies a playback source
type SourceHandle uint32

// BufferSlot identifies one device buffer
type BufferSlot uint32

// SourceState is the transport state reported by a device
type SourceState int

const (
	StateInitial SourceState = iota
	StatePlaying
	StatePaused
	StateStopped
)

func (s SourceState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Code is a device error code
type Code int

const (
	InvalidName      Code = 0xA001
	InvalidEnum      Code = 0xA002
	InvalidValue     Code = 0xA003
	InvalidOperation Code = 0xA004
	OutOfMemory      Code = 0xA005
)

func (c Code) Error() string {
	switch c {
	case InvalidName:
		return "invalid name"
	case InvalidEnum:
		return "invalid enum"
	case InvalidValue:
		return "invalid value"
	case InvalidOperation:
		return "invalid operation"
	case OutOfMemory:
		return "out of memory"
	default:
		return fmt.Sprintf("error %#x", int(c))
	}
}

// Device is the capability set a playback backend offers the feed scheduler
type Device interface {
	// Open opens the default output device
	Open() (DeviceHandle, error)
	// CreateSession creates a playback session on an opened device
	CreateSession(DeviceHandle) (SessionHandle, error)
	// MakeCurrent selects the session that buffer and source calls act on; 0 clears it
	MakeCurrent(SessionHandle) error
	// DestroySession releases a session
	DestroySession(SessionHandle) error
	// Close closes the device
	Close(DeviceHandle) error

	// AllocateBuffers creates n empty buffers
	AllocateBuffers(n int) ([]BufferSlot, error)
	// DeleteBuffers releases buffers that are not attached to any source
	DeleteBuffers([]BufferSlot) error
	// AllocateSource creates a source in the initial state
	AllocateSource() (SourceHandle, error)
	// DeleteSource releases a source and detaches its buffers
	DeleteSource(SourceHandle) error

	// Submit copies PCM bytes into a buffer that is not attached
	Submit(slot BufferSlot, format audio.Format, data []byte) error
	// Attach appends a buffer to the end of the source queue
	Attach(SourceHandle, BufferSlot) error
	// DetachAll empties the source queue and leaves the source stopped
	DetachAll(SourceHandle) error
	// QueuedCount returns the number of buffers in the queue
	QueuedCount(SourceHandle) (int, error)
	// ProcessedCount returns the number of fully played buffers at the head of the queue
	ProcessedCount(SourceHandle) (int, error)
	// UnqueueOne removes and returns the oldest processed buffer
	UnqueueOne(SourceHandle) (BufferSlot, error)

	// Play starts or resumes playback
	Play(SourceHandle) error
	// Pause halts playback keeping the queue position
	Pause(SourceHandle) error
	// Stop halts playback and marks every queued buffer processed
	Stop(SourceHandle) error
	// State returns the transport state
	State(SourceHandle) (SourceState, error)
}

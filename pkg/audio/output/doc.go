// ABOUTME: Audio output package for playback devices
// ABOUTME: Provides the Device interface with simulated, oto and malgo backends
// Package output provides playback devices modelled as a set of buffers
// queued on a source.
//
// Every backend shares Engine, which tracks buffer queues, processed counts
// and transport state. Backends differ only in what drains the queue:
//
//   - Sim consumes queued audio against a Clock, for headless runs and tests
//   - Oto renders through an ebitengine/oto player
//   - Malgo renders from a miniaudio data callback
//
// Example:
//
//	dev := output.NewSim(output.SimConfig{})
//	h, err := dev.Open()
//	s, err := dev.CreateSession(h)
//	err = dev.MakeCurrent(s)
//	slots, err := dev.AllocateBuffers(3)
package output

// ABOUTME: Audio fundamentals package providing core PCM types
// ABOUTME: Defines Format, Frame, Chunk and sample conversion functions
// Package audio provides the PCM types shared by producers, devices and the feed scheduler.
//
//   - Format: channel count, sample rate and sample encoding of a stream
//   - Frame: one sample per channel
//   - Chunk: a run of frames returned by a single producer pull
//
// Samples travel as int32 in the range of the stream's encoding, so an
// int16 stream carries values in [-32768, 32767].
//
// Example:
//
//	format := audio.Format{Channels: 2, SampleRate: 44100, Encoding: audio.EncodingInt16}
//	if err := format.Validate(); err != nil {
//	    return err
//	}
//	budget := format.FramesFor(500 * time.Millisecond) // 22050
package audio

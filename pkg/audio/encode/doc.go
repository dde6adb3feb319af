// ABOUTME: Audio encoder package for packing PCM frames into bytes
// ABOUTME: Provides the Encoder interface and a reusable int16 PCM implementation
// Package encode packs audio.Chunk values into the interleaved byte layout
// playback devices expect.
//
// PCM16 owns a fixed conversion buffer sized for one frame budget. It is
// released and rebuilt whenever the stream format changes.
//
// Example:
//
//	enc, err := encode.NewPCM16(format, 22050)
//	data, err := enc.Encode(chunk)
package encode

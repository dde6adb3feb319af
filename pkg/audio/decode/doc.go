// ABOUTME: Audio decoder package for file and packet decoding
// ABOUTME: Provides Stream decoders for MP3, FLAC, WAV and a raw PCM packet decoder
// Package decode turns encoded audio into PCM frames for producers.
//
// Streams report their native format. 16-bit sources yield int16 samples;
// deeper FLAC and WAV sources yield int24 samples and leave narrowing to the
// caller.
//
// Example:
//
//	s, err := decode.Open("track.flac")
//	defer s.Close()
//	chunk, err := s.ReadChunk(22050)
package decode

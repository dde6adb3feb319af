// ABOUTME: Streaming buffer scheduler package
// ABOUTME: Feeds producer PCM into a small ring of device buffers without gaps
// Package feed keeps a playback device supplied with audio from a Producer
// while never holding more than a fixed pool of buffers in flight.
//
// A Session owns the device resources. Its feed loop repeatedly waits for a
// free buffer slot, pulls up to one buffer's worth of frames, converts them
// to int16 little-endian and queues them, then restarts the device if it
// starved while the session intends to play. The loop runs either on the
// caller's goroutine (Stream) or in the background (Spawn).
//
// Example:
//
//	s, err := feed.Open(feed.Config{
//		Device:   output.NewSim(output.SimConfig{}),
//		Producer: tone,
//		Format:   audio.Format{Channels: 2, SampleRate: 44100, Encoding: audio.EncodingInt16},
//	})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	s.Play()
//	return s.Stream(ctx)
package feed

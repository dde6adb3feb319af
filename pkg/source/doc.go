// ABOUTME: Producers that feed a ringfeed session
// ABOUTME: Tone generator, file playlist and websocket stream producers
// Package source provides feed.Producer implementations.
//
//   - Tone generates a sine wave, endlessly or for a fixed number of frames
//   - Playlist decodes MP3, FLAC and WAV files one after another
//   - Net receives PCM from a websocket stream server
//
// Playlist and Net change format mid-stream. They report the new format
// through their OnFormat callback and then return io.EOF, so the session
// reconfigures before pulling audio of the new format:
//
//	var session *feed.Session
//	playlist, err := source.NewPlaylist(source.PlaylistConfig{
//		Paths:    paths,
//		OnFormat: func(f audio.Format) error { return session.SetFormat(f) },
//	})
package source

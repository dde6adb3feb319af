// ABOUTME: PCM stream wire protocol package
// ABOUTME: Defines protocol messages and the websocket connection carrying them
// Package protocol implements the websocket protocol used to stream raw PCM
// between a sender and a ringfeed listener.
//
// After a hello exchange the server sends stream/start with the format,
// then binary audio chunks. A later stream/start changes the format for
// the chunks that follow it. stream/end or a normal close ends the stream.
//
// Example:
//
//	conn, server, err := protocol.Dial(ctx, "ws://localhost:8927/stream", protocol.ClientHello{Name: "listener"})
//	frame, err := conn.Receive()
package protocol

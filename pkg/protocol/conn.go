// ABOUTME: WebSocket connection carrying the PCM stream protocol
// ABOUTME: Handles dialing, accepting, the hello handshake and message framing
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultHandshakeTimeout bounds the wait for the peer's hello
const DefaultHandshakeTimeout = 5 * time.Second

// Frame is one received message: either JSON (Envelope set) or an audio chunk
type Frame struct {
	Envelope *Envelope
	Position int64
	Audio    []byte
}

// Conn is a protocol connection over a websocket
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Dial connects to a stream server and performs the hello handshake
func Dial(ctx context.Context, url string, hello ClientHello) (*Conn, ServerHello, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, ServerHello{}, fmt.Errorf("dial failed: %w", err)
	}
	c := &Conn{ws: ws}

	if err := c.Send(TypeClientHello, hello); err != nil {
		c.Close()
		return nil, ServerHello{}, fmt.Errorf("failed to send client/hello: %w", err)
	}

	var server ServerHello
	if err := c.expect(TypeServerHello, &server); err != nil {
		c.Close()
		return nil, ServerHello{}, fmt.Errorf("handshake failed: %w", err)
	}
	return c, server, nil
}

// Accept upgrades an HTTP request and performs the server side of the handshake
func Accept(w http.ResponseWriter, r *http.Request, hello ServerHello) (*Conn, ClientHello, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, ClientHello{}, fmt.Errorf("upgrade failed: %w", err)
	}
	c := &Conn{ws: ws}

	var client ClientHello
	if err := c.expect(TypeClientHello, &client); err != nil {
		c.Close()
		return nil, ClientHello{}, fmt.Errorf("handshake failed: %w", err)
	}
	if err := c.Send(TypeServerHello, hello); err != nil {
		c.Close()
		return nil, ClientHello{}, fmt.Errorf("failed to send server/hello: %w", err)
	}
	return c, client, nil
}

// expect reads one JSON message of the given type within the handshake timeout
func (c *Conn) expect(msgType string, v any) error {
	c.ws.SetReadDeadline(time.Now().Add(DefaultHandshakeTimeout))
	defer c.ws.SetReadDeadline(time.Time{})

	frame, err := c.Receive()
	if err != nil {
		return err
	}
	if frame.Envelope == nil {
		return fmt.Errorf("expected %s, got audio", msgType)
	}
	if frame.Envelope.Type != msgType {
		return fmt.Errorf("expected %s, got %s", msgType, frame.Envelope.Type)
	}
	return frame.Envelope.Decode(v)
}

// Send writes a JSON message
func (c *Conn) Send(msgType string, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(Message{Type: msgType, Payload: payload})
}

// SendAudio writes a binary audio chunk starting at the given frame position
func (c *Conn) SendAudio(position int64, pcm []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, EncodeAudioChunk(position, pcm))
}

// Receive reads the next message
func (c *Conn) Receive() (Frame, error) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return Frame{}, err
		}

		switch messageType {
		case websocket.BinaryMessage:
			position, pcm, err := DecodeAudioChunk(data)
			if err != nil {
				return Frame{}, err
			}
			return Frame{Position: position, Audio: pcm}, nil
		case websocket.TextMessage:
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				return Frame{}, fmt.Errorf("failed to parse JSON message: %w", err)
			}
			return Frame{Envelope: &env}, nil
		}
	}
}

// CloseGracefully sends a close frame and closes the connection
func (c *Conn) CloseGracefully() error {
	c.writeMu.Lock()
	err := c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	if cerr := c.ws.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close closes the underlying connection
func (c *Conn) Close() error {
	return c.ws.Close()
}

// IsNormalClose reports whether err is the peer closing the connection cleanly
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

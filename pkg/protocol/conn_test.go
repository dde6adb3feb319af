// ABOUTME: Tests for the protocol websocket connection
// ABOUTME: Runs a handshake and a short stream over an httptest server
package protocol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialAcceptHandshake(t *testing.T) {
	received := make(chan ClientHello, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, hello, err := Accept(w, r, ServerHello{ServerID: "srv", Name: "sender", Version: 1})
		if err != nil {
			return
		}
		defer conn.Close()
		received <- hello

		_ = conn.Send(TypeStreamStart, StreamStart{Format: AudioFormat{Codec: CodecPCM, Channels: 1, SampleRate: 8000, BitDepth: 16}})
		_ = conn.SendAudio(0, []byte{1, 0, 2, 0})
		_ = conn.CloseGracefully()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, server, err := Dial(context.Background(), url, ClientHello{ClientID: "c1", Name: "listener", Version: 1})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "sender", server.Name)
	assert.Equal(t, "listener", (<-received).Name)

	frame, err := conn.Receive()
	require.NoError(t, err)
	require.NotNil(t, frame.Envelope)
	assert.Equal(t, TypeStreamStart, frame.Envelope.Type)

	frame, err = conn.Receive()
	require.NoError(t, err)
	assert.Nil(t, frame.Envelope)
	assert.Equal(t, []byte{1, 0, 2, 0}, frame.Audio)

	_, err = conn.Receive()
	assert.True(t, IsNormalClose(err), "expected normal close, got %v", err)
}

func TestDialRejectsWrongHello(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_, _, _ = ws.ReadMessage()
		_ = ws.WriteJSON(Message{Type: TypeStreamEnd, Payload: StreamEnd{}})
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, _, err := Dial(context.Background(), url, ClientHello{Name: "listener"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected server/hello")
}

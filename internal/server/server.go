// ABOUTME: PCM stream server used to exercise the listen command
// ABOUTME: Streams a paced test tone to each websocket listener, optionally switching sample rate
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio/encode"
	"github.com/Resonate-Protocol/ringfeed/pkg/feed"
	"github.com/Resonate-Protocol/ringfeed/pkg/protocol"
	"github.com/Resonate-Protocol/ringfeed/pkg/source"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// ChunkDuration is the audio carried by one binary message
	ChunkDuration = 20 * time.Millisecond

	// StreamPath is where listeners connect
	StreamPath = "/stream"
)

// Config holds server configuration
type Config struct {
	// Addr to listen on, e.g. ":8927"
	Addr string

	Name string

	// Rates are cycled through, starting with the first (default: 48000)
	Rates []int

	Channels int

	// SwitchEvery moves to the next rate after this much audio; 0 never switches
	SwitchEvery time.Duration

	// Length ends each stream after this much audio; 0 streams until the listener leaves
	Length time.Duration

	// Pace sends chunks in real time; tests turn it off
	Pace bool

	Logger *zap.Logger
}

// Server streams tones to connected listeners
type Server struct {
	config   Config
	serverID string
	logger   *zap.Logger

	httpServer *http.Server
	listener   net.Listener

	clients   map[string]*client
	clientsMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type client struct {
	id   string
	name string
	conn *protocol.Conn
}

// New creates a server
func New(config Config) (*Server, error) {
	if len(config.Rates) == 0 {
		config.Rates = []int{48000}
	}
	if config.Channels == 0 {
		config.Channels = 2
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	for _, rate := range config.Rates {
		f := audio.Format{Channels: config.Channels, SampleRate: rate, Encoding: audio.EncodingInt16}
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:   config,
		serverID: uuid.New().String(),
		logger:   config.Logger.Named("server"),
		clients:  make(map[string]*client),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start listens and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc(StreamPath, s.handleWebSocket)
	s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server failed", zap.Error(err))
		}
	}()

	s.logger.Info("streaming", zap.String("url", s.URL()), zap.Ints("rates", s.config.Rates))
	return nil
}

// URL returns the websocket URL listeners dial
func (s *Server) URL() string {
	return "ws://" + s.listener.Addr().String() + StreamPath
}

// Clients returns the number of connected listeners
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Stop ends every listener's stream and shuts the server down.
// Each handler sends stream/end and a close frame before it returns.
func (s *Server) Stop() error {
	s.cancel()

	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	}

	s.wg.Wait()
	return err
}

// handleWebSocket runs one listener for the lifetime of its connection
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, hello, err := protocol.Accept(w, r, protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  1,
	})
	if err != nil {
		s.logger.Warn("handshake failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	c := &client{id: hello.ClientID, name: hello.Name, conn: conn}
	if c.id == "" {
		c.id = uuid.New().String()
	}
	s.wg.Add(1)
	s.clientsMu.Lock()
	s.clients[c.id] = c
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c.id)
		s.clientsMu.Unlock()
		conn.Close()
		s.wg.Done()
	}()

	logger := s.logger.With(zap.String("client", c.name))
	logger.Info("listener connected", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go s.readLoop(c, cancel, logger)

	err = s.stream(ctx, c)
	switch {
	case s.ctx.Err() != nil:
		if err := endStream(c.conn, "server shutting down"); err != nil {
			logger.Debug("failed to end stream", zap.Error(err))
		}
	case err != nil && ctx.Err() == nil:
		logger.Warn("stream stopped", zap.Error(err))
		return
	}
	logger.Info("listener finished")
}

// endStream tells the listener the stream is over and closes cleanly
func endStream(conn *protocol.Conn, reason string) error {
	if err := conn.Send(protocol.TypeStreamEnd, protocol.StreamEnd{Reason: reason}); err != nil {
		return err
	}
	return conn.CloseGracefully()
}

// readLoop watches for goodbye or a closed connection
func (s *Server) readLoop(c *client, cancel context.CancelFunc, logger *zap.Logger) {
	defer cancel()
	for {
		frame, err := c.conn.Receive()
		if err != nil {
			return
		}
		if frame.Envelope != nil && frame.Envelope.Type == protocol.TypeClientGoodbye {
			logger.Info("listener said goodbye")
			return
		}
	}
}

// stream sends tone segments until the length is reached or ctx ends
func (s *Server) stream(ctx context.Context, c *client) error {
	var ticker *time.Ticker
	if s.config.Pace {
		ticker = time.NewTicker(ChunkDuration)
		defer ticker.Stop()
	}

	var sent time.Duration
	var position int64
	for i := 0; ; i++ {
		rate := s.config.Rates[i%len(s.config.Rates)]
		format := audio.Format{Channels: s.config.Channels, SampleRate: rate, Encoding: audio.EncodingInt16}

		segment := s.config.SwitchEvery
		if s.config.Length > 0 && (segment == 0 || sent+segment > s.config.Length) {
			segment = s.config.Length - sent
		}
		var frames int64
		if segment > 0 {
			frames = int64(format.FramesFor(segment))
		}
		if s.config.Length > 0 && frames == 0 {
			return endStream(c.conn, "finished")
		}

		if err := c.conn.Send(protocol.TypeStreamStart, protocol.StreamStart{Format: protocol.FormatOf(format)}); err != nil {
			return err
		}
		tone, err := source.NewTone(source.ToneConfig{Format: format, Frames: frames})
		if err != nil {
			return err
		}

		n, err := s.sendTone(ctx, c, tone, format, &position, ticker)
		if err != nil {
			return err
		}
		sent += format.Duration(n)
	}
}

// sendTone sends one segment and returns the frames sent
func (s *Server) sendTone(ctx context.Context, c *client, tone *source.Tone, format audio.Format, position *int64, ticker *time.Ticker) (int, error) {
	per := format.FramesFor(ChunkDuration)
	total := 0
	for {
		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return total, ctx.Err()
			}
		} else if err := ctx.Err(); err != nil {
			return total, err
		}

		chunk, err := tone.Pull(ctx, per)
		if errors.Is(err, feed.ErrDone) {
			return total, nil
		}
		if err != nil {
			return total, err
		}

		samples := make([]int32, 0, chunk.Samples())
		for _, frame := range chunk {
			samples = append(samples, frame...)
		}
		pcm := encode.Int16LE(samples)
		if err := c.conn.SendAudio(*position, pcm); err != nil {
			return total, err
		}
		*position += int64(len(pcm))
		total += len(chunk)
	}
}

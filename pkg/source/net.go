// ABOUTME: Network producer fed by a PCM websocket stream
// ABOUTME: A reader goroutine fills a byte ring that Pull drains one buffer at a time
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio/decode"
	"github.com/Resonate-Protocol/ringfeed/pkg/feed"
	"github.com/Resonate-Protocol/ringfeed/pkg/protocol"
	"github.com/google/uuid"
	"github.com/smallnest/ringbuffer"
	"go.uber.org/zap"
)

// DefaultNetBuffer is how much audio the ring holds at the stream's format
const DefaultNetBuffer = 2 * time.Second

// NetConfig holds network producer configuration
type NetConfig struct {
	// URL of the stream server, e.g. ws://host:8927/stream
	URL string

	// Name identifies this listener to the server
	Name string

	// Buffer is the audio the ring holds at the first announced format (default: 2s)
	Buffer time.Duration

	// OnFormat receives each new format before the boundary is signalled;
	// wire it to Session.SetFormat
	OnFormat func(audio.Format) error

	Logger *zap.Logger
}

// Net pulls PCM from a websocket stream
type Net struct {
	config NetConfig
	conn   *protocol.Conn
	logger *zap.Logger

	mu   sync.Mutex
	cond *sync.Cond
	ring *ringbuffer.RingBuffer
	size int

	// format describes bytes in the ring; next waits for the ring to drain
	format audio.Format
	dec    *decode.PCMDecoder
	next   *audio.Format
	closed bool
	err    error

	done chan struct{}
}

// DialNet connects, waits for the first stream/start and starts reading
func DialNet(ctx context.Context, config NetConfig) (*Net, error) {
	if config.URL == "" {
		return nil, errors.New("stream URL is required")
	}
	if config.Name == "" {
		config.Name = "ringfeed"
	}
	if config.Buffer <= 0 {
		config.Buffer = DefaultNetBuffer
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	logger := config.Logger.Named("net")

	conn, server, err := protocol.Dial(ctx, config.URL, protocol.ClientHello{
		ClientID: uuid.New().String(),
		Name:     config.Name,
		Version:  1,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("connected to stream server",
		zap.String("url", config.URL),
		zap.String("server", server.Name))

	format, err := awaitStart(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	dec, err := decode.NewPCM(format)
	if err != nil {
		conn.Close()
		return nil, err
	}

	size := format.FramesFor(config.Buffer) * format.BytesPerFrame()
	n := &Net{
		config: config,
		conn:   conn,
		logger: logger,
		ring:   ringbuffer.New(size),
		size:   size,
		format: format,
		dec:    dec,
		done:   make(chan struct{}),
	}
	n.cond = sync.NewCond(&n.mu)

	logger.Info("stream started", zap.Stringer("format", format), zap.Int("ring_bytes", size))
	go n.readLoop()
	return n, nil
}

// awaitStart reads until the first stream/start
func awaitStart(conn *protocol.Conn) (audio.Format, error) {
	for {
		frame, err := conn.Receive()
		if err != nil {
			return audio.Format{}, fmt.Errorf("stream did not start: %w", err)
		}
		if frame.Envelope == nil {
			continue
		}
		switch frame.Envelope.Type {
		case protocol.TypeStreamStart:
			return decodeStart(frame.Envelope)
		case protocol.TypeStreamEnd:
			return audio.Format{}, errors.New("stream ended before it started")
		}
	}
}

func decodeStart(env *protocol.Envelope) (audio.Format, error) {
	var start protocol.StreamStart
	if err := env.Decode(&start); err != nil {
		return audio.Format{}, err
	}
	return start.Format.Format()
}

// Format returns the format of the audio Pull is currently returning
func (n *Net) Format() audio.Format {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.format
}

// Buffered returns the bytes waiting in the ring
func (n *Net) Buffered() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ring.Length()
}

func (n *Net) readLoop() {
	defer close(n.done)

	for {
		frame, err := n.conn.Receive()
		if err != nil {
			n.finish(err)
			return
		}

		if frame.Envelope != nil {
			switch frame.Envelope.Type {
			case protocol.TypeStreamStart:
				format, err := decodeStart(frame.Envelope)
				if err != nil {
					n.finish(err)
					return
				}
				if !n.announce(format) {
					return
				}
			case protocol.TypeStreamEnd:
				n.finish(nil)
				return
			default:
				n.logger.Debug("ignoring message", zap.String("type", frame.Envelope.Type))
			}
			continue
		}

		if !n.write(frame.Audio) {
			return
		}
	}
}

// announce queues a format change behind the bytes already in the ring
func (n *Net) announce(format audio.Format) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	for n.next != nil && !n.closed {
		n.cond.Wait()
	}
	if n.closed {
		return false
	}
	if format == n.format {
		return true
	}
	n.next = &format
	n.cond.Broadcast()
	n.logger.Info("stream format changing", zap.Stringer("format", format))
	return true
}

// write copies pcm into the ring, waiting for Pull to make space
func (n *Net) write(pcm []byte) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	for len(pcm) > 0 {
		// bytes of a new format wait until the old format has drained
		for (n.next != nil || n.ring.Free() == 0) && !n.closed {
			n.cond.Wait()
		}
		if n.closed {
			return false
		}
		w, _ := n.ring.Write(pcm[:min(len(pcm), n.ring.Free())])
		pcm = pcm[w:]
		n.cond.Broadcast()
	}
	return true
}

func (n *Net) finish(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	if err != nil && !protocol.IsNormalClose(err) {
		n.err = err
		n.logger.Warn("stream connection lost", zap.Error(err))
	} else {
		n.logger.Info("stream ended")
	}
	n.closed = true
	n.cond.Broadcast()
}

// Pull waits for a full buffer of frames and returns it; a shorter chunk is
// returned only when a format change or the end of the stream cuts it short.
// io.EOF marks a format change and feed.ErrDone the end of the stream.
func (n *Net) Pull(ctx context.Context, frames int) (audio.Chunk, error) {
	stop := context.AfterFunc(ctx, func() {
		n.mu.Lock()
		n.cond.Broadcast()
		n.mu.Unlock()
	})
	defer stop()

	n.mu.Lock()
	defer n.mu.Unlock()

	bpf := n.format.BytesPerFrame()
	want := frames * bpf
	for n.ring.Length() < want && n.next == nil && !n.closed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if want > n.size && n.ring.Free() == 0 {
			// a budget larger than the ring cannot be met in one piece
			break
		}
		n.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if avail := n.ring.Length() / bpf * bpf; avail > 0 {
		buf := make([]byte, min(avail, want))
		r, _ := n.ring.Read(buf)
		n.cond.Broadcast()

		samples, err := n.dec.Decode(buf[:r])
		if err != nil {
			return nil, fmt.Errorf("failed to decode stream audio: %w", err)
		}
		return audio.Interleave(samples, n.format.Channels), nil
	}

	if n.next != nil {
		format := *n.next
		dec, err := decode.NewPCM(format)
		if err != nil {
			return nil, err
		}
		// a trailing partial frame of the old format is dropped
		n.ring.Reset()
		n.format = format
		n.dec = dec
		n.next = nil
		n.cond.Broadcast()

		n.mu.Unlock()
		err = n.applyFormat(format)
		n.mu.Lock()
		if err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	if n.err != nil {
		return nil, fmt.Errorf("stream failed: %w", n.err)
	}
	return nil, feed.ErrDone
}

func (n *Net) applyFormat(format audio.Format) error {
	if n.config.OnFormat == nil {
		return nil
	}
	if err := n.config.OnFormat(format); err != nil {
		return fmt.Errorf("failed to apply stream format: %w", err)
	}
	return nil
}

// Close disconnects and waits for the reader to stop
func (n *Net) Close() error {
	n.mu.Lock()
	n.closed = true
	n.cond.Broadcast()
	n.mu.Unlock()

	_ = n.conn.Send(protocol.TypeClientGoodbye, protocol.ClientGoodbye{Reason: "shutdown"})
	err := n.conn.Close()
	<-n.done
	return err
}

// ABOUTME: Producer abstraction for the feed loop
// ABOUTME: Provides the Producer interface plus function and channel adapters
package feed

import (
	"context"
	"io"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
)

// Producer supplies PCM frames on demand.
//
// Pull returns at most frames frames, each with one sample per channel of the
// session's current format. Returning io.EOF marks a format boundary: the loop
// reconfigures and then pulls again. Returning ErrDone ends the stream once the
// queued audio has played. Any other error stops the loop. A chunk returned
// together with an error is discarded.
type Producer interface {
	Pull(ctx context.Context, frames int) (audio.Chunk, error)
}

// ProducerFunc adapts a function to Producer
type ProducerFunc func(ctx context.Context, frames int) (audio.Chunk, error)

// Pull calls f
func (f ProducerFunc) Pull(ctx context.Context, frames int) (audio.Chunk, error) {
	return f(ctx, frames)
}

// ChannelProducer pulls chunks from a channel, splitting chunks larger than the request.
// A nil chunk on the channel is the format-boundary marker; a closed channel is ErrDone.
type ChannelProducer struct {
	ch      <-chan audio.Chunk
	pending audio.Chunk
}

// NewChannelProducer creates a producer reading from ch
func NewChannelProducer(ch <-chan audio.Chunk) *ChannelProducer {
	return &ChannelProducer{ch: ch}
}

// Pull returns buffered frames first, then blocks on the channel
func (p *ChannelProducer) Pull(ctx context.Context, frames int) (audio.Chunk, error) {
	if len(p.pending) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-p.ch:
			if !ok {
				return nil, ErrDone
			}
			if chunk == nil {
				return nil, io.EOF
			}
			p.pending = chunk
		}
	}

	n := min(frames, len(p.pending))
	out := p.pending[:n:n]
	p.pending = p.pending[n:]
	return out, nil
}

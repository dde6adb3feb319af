// ABOUTME: Starvation test app for the feed scheduler
// ABOUTME: Runs a stalling producer against the simulated device and reports resumes and drops
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio/output"
	"github.com/Resonate-Protocol/ringfeed/pkg/feed"
	"github.com/Resonate-Protocol/ringfeed/pkg/source"
	"go.uber.org/zap"
)

var (
	stallEvery = flag.Int("stall-every", 8, "Stall on every Nth pull")
	stallFor   = flag.Duration("stall-for", 400*time.Millisecond, "How long each stall lasts")
	bufferDur  = flag.Duration("buffer", 100*time.Millisecond, "Audio per device buffer")
	length     = flag.Duration("length", 5*time.Second, "Total tone length")
	verbose    = flag.Bool("v", false, "Log session events")
)

func main() {
	flag.Parse()

	console, _ := zap.NewDevelopment()
	defer func() { _ = console.Sync() }()
	log := console.Sugar()

	logger := zap.NewNop()
	if *verbose {
		logger = console
	}

	format := audio.Format{Channels: 2, SampleRate: 48000, Encoding: audio.EncodingInt16}
	tone, err := source.NewTone(source.ToneConfig{Format: format, Frames: int64(format.FramesFor(*length))})
	if err != nil {
		log.Fatalf("tone: %v", err)
	}

	pulls := 0
	stalls := 0
	producer := feed.ProducerFunc(func(ctx context.Context, frames int) (audio.Chunk, error) {
		pulls++
		if *stallEvery > 0 && pulls%*stallEvery == 0 {
			stalls++
			select {
			case <-time.After(*stallFor):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return tone.Pull(ctx, frames)
	})

	fmt.Println("=== Starvation Test ===")
	fmt.Printf("Buffers of %s, a %s stall every %d pulls, %s of audio\n", *bufferDur, *stallFor, *stallEvery, *length)
	fmt.Println()

	session, err := feed.Open(feed.Config{
		Device:         output.NewSim(output.SimConfig{Logger: logger}),
		Producer:       producer,
		Format:         format,
		BufferDuration: *bufferDur,
		PollInterval:   time.Millisecond,
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("open session: %v", err)
	}
	defer session.Close()

	if err := session.Play(); err != nil {
		log.Fatalf("play: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *length+time.Minute)
	defer cancel()

	start := time.Now()
	if err := session.Stream(ctx); err != nil {
		log.Fatalf("stream error: %v", err)
	}

	st := session.Stats()
	fmt.Printf("Finished in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("  pulls:          %d\n", pulls)
	fmt.Printf("  stalls:         %d\n", stalls)
	fmt.Printf("  buffers:        %d\n", st.BuffersSubmitted)
	fmt.Printf("  forced resumes: %d\n", st.ForcedResumes)
	fmt.Printf("  drops:          %d\n", st.Drops)

	// each stall longer than the queued audio should show up as a drop
	queued := time.Duration(st.PoolSize) * *bufferDur
	if *stallFor > queued && st.Drops == 0 && stalls > 0 {
		log.Fatalf("expected drops: stalls of %s outlast %s of queued audio", *stallFor, queued)
	}
}

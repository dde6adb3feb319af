// ABOUTME: Player application orchestration
// ABOUTME: Wires device, session, metrics endpoint and TUI around one producer
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Resonate-Protocol/ringfeed/internal/config"
	"github.com/Resonate-Protocol/ringfeed/internal/ui"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio/output"
	"github.com/Resonate-Protocol/ringfeed/pkg/feed"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatsInterval is how often stats are logged when the TUI is off
const StatsInterval = 5 * time.Second

// Config holds player configuration
type Config struct {
	Settings config.Settings

	// Title names the source in the TUI and logs
	Title string

	// Format is the producer's first format
	Format audio.Format

	Producer feed.Producer

	// Device overrides the backend named in Settings
	Device output.Device

	Logger *zap.Logger
}

// Player runs one producer through a feed session
type Player struct {
	config   Config
	logger   *zap.Logger
	session  *feed.Session
	registry *prometheus.Registry
	tuiProg  *tea.Program
}

// NewDevice creates the playback device for a backend name
func NewDevice(backend string, logger *zap.Logger) (output.Device, error) {
	switch backend {
	case "sim":
		return output.NewSim(output.SimConfig{Logger: logger}), nil
	case "oto":
		return output.NewOto(output.OtoConfig{Logger: logger}), nil
	case "malgo":
		return output.NewMalgo(output.MalgoConfig{Logger: logger}), nil
	}
	return nil, fmt.Errorf("unknown backend %q", backend)
}

// New opens the device and initializes a session at the producer's format
func New(cfg Config) (*Player, error) {
	if cfg.Producer == nil {
		return nil, errors.New("producer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}

	dev := cfg.Device
	if dev == nil {
		var err error
		if dev, err = NewDevice(cfg.Settings.Backend, cfg.Logger); err != nil {
			return nil, err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics, err := feed.NewMetrics(registry)
	if err != nil {
		return nil, err
	}

	p := &Player{
		config:   cfg,
		logger:   cfg.Logger.Named("app"),
		registry: registry,
	}

	session, err := feed.Open(feed.Config{
		Device:         dev,
		Producer:       cfg.Producer,
		Format:         cfg.Format,
		PoolSize:       cfg.Settings.PoolSize,
		PollInterval:   cfg.Settings.PollInterval,
		BufferDuration: cfg.Settings.BufferDuration,
		WaitForPlaying: cfg.Settings.WaitForPlaying,
		Logger:         cfg.Logger,
		Metrics:        metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	p.session = session

	return p, nil
}

// Session returns the feed session
func (p *Player) Session() *feed.Session {
	return p.session
}

// SetFormat forwards a producer format change to the session
func (p *Player) SetFormat(format audio.Format) error {
	return p.session.SetFormat(format)
}

// Run plays until the stream ends, ctx is cancelled or the TUI quits
func (p *Player) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if addr := p.config.Settings.MetricsAddr; addr != "" {
		_, stop, err := p.serveMetrics(addr)
		if err != nil {
			return err
		}
		defer stop()
	}

	if err := p.session.Play(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- p.stream(ctx) }()

	if !p.config.Settings.TUI {
		return p.waitLogging(ctx, done)
	}
	return p.runTUI(ctx, cancel, done)
}

// stream runs the feed loop in the foreground or as a background feeder
func (p *Player) stream(ctx context.Context) error {
	var err error
	if p.config.Settings.Background {
		var feeder *feed.Feeder
		if feeder, err = p.session.Spawn(ctx); err != nil {
			return err
		}
		p.logger.Info("feeder running", zap.String("feeder", feeder.ID()))
		err = feeder.Wait()
	} else {
		err = p.session.Stream(ctx)
	}

	// stopping the player is not a failure
	if cause := ctx.Err(); cause != nil && errors.Is(err, cause) {
		return nil
	}
	return err
}

func (p *Player) waitLogging(ctx context.Context, done <-chan error) error {
	ticker := time.NewTicker(StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			p.logStats()
			return err
		case <-ticker.C:
			p.logStats()
		case <-ctx.Done():
			return <-done
		}
	}
}

func (p *Player) logStats() {
	st := p.session.Stats()
	p.logger.Info("session stats",
		zap.Stringer("format", st.Format),
		zap.Bool("intent", st.Intent),
		zap.Int("queued", st.Queued),
		zap.Int64("buffers", st.BuffersSubmitted),
		zap.Int64("frames", st.FramesSubmitted),
		zap.Int64("forced_resumes", st.ForcedResumes),
		zap.Int64("drops", st.Drops))
}

func (p *Player) runTUI(ctx context.Context, cancel context.CancelFunc, done <-chan error) error {
	p.tuiProg = ui.New(ui.Options{
		Title:     p.config.Title,
		Backend:   p.config.Settings.Backend,
		Transport: p.session,
	})

	var streamErr error
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		streamErr = <-done
		p.tuiProg.Send(ui.StatusMsg{Err: streamErr, Finished: true})
	}()

	go func() {
		ticker := time.NewTicker(ui.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if state, err := p.session.DeviceState(); err == nil {
					p.tuiProg.Send(ui.StatusMsg{DeviceState: state.String()})
				}
			case <-ctx.Done():
				p.tuiProg.Quit()
				return
			}
		}
	}()

	_, err := p.tuiProg.Run()
	cancel()
	<-finished
	if err != nil {
		return fmt.Errorf("TUI failed: %w", err)
	}
	return streamErr
}

// serveMetrics exposes the session collectors over HTTP
func (p *Player) serveMetrics(addr string) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	p.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// Close tears down the session and device
func (p *Player) Close() error {
	return p.session.Close()
}

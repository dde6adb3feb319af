// ABOUTME: Entry point for the ringfeed player
// ABOUTME: Cobra commands that stream files, a test tone or a websocket stream
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/ringfeed/internal/app"
	"github.com/Resonate-Protocol/ringfeed/internal/config"
	"github.com/Resonate-Protocol/ringfeed/internal/logging"
	"github.com/Resonate-Protocol/ringfeed/internal/version"
	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
	"github.com/Resonate-Protocol/ringfeed/pkg/feed"
	"github.com/Resonate-Protocol/ringfeed/pkg/source"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// env carries what every subcommand needs once flags are parsed
type env struct {
	v        *viper.Viper
	settings config.Settings
	logger   *zap.Logger
}

func rootCommand() *cobra.Command {
	e := &env{v: config.New()}

	root := &cobra.Command{
		Use:          "ringfeed",
		Short:        "Stream PCM into a ring of playback buffers",
		Version:      version.Version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(version.String() + "\n")
	if err := config.RegisterFlags(root.PersistentFlags(), e.v); err != nil {
		panic(err)
	}

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		settings, err := config.Load(e.v, path)
		if err != nil {
			return err
		}
		e.settings = settings

		logger, err := logging.New(logging.Options{
			Level:   settings.LogLevel,
			File:    settings.LogFile,
			Console: !settings.TUI,
		})
		if err != nil {
			return err
		}
		e.logger = logger
		logger.Info("starting",
			zap.String("product", version.Product),
			zap.String("version", version.Version),
			zap.String("manufacturer", version.Manufacturer),
			zap.String("backend", settings.Backend))
		return nil
	}
	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if e.logger != nil {
			_ = e.logger.Sync()
		}
	}

	root.AddCommand(playCommand(e), toneCommand(e), listenCommand(e))
	return root
}

func playCommand(e *env) *cobra.Command {
	var forceInt16 bool
	var rate int

	cmd := &cobra.Command{
		Use:   "play <files...>",
		Short: "Play MP3, FLAC and WAV files in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var player *app.Player
			playlist, err := source.NewPlaylist(source.PlaylistConfig{
				Paths:      args,
				ForceInt16: forceInt16,
				SampleRate: rate,
				OnFormat:   func(f audio.Format) error { return player.SetFormat(f) },
				Logger:     e.logger,
			})
			if err != nil {
				return err
			}
			defer playlist.Close()

			player, err = e.newPlayer(playlist.Current(), playlist.Format(), playlist)
			if err != nil {
				return err
			}
			return e.run(player)
		},
	}
	cmd.Flags().BoolVar(&forceInt16, "force-int16", true, "Narrow 24-bit files to int16")
	cmd.Flags().IntVar(&rate, "rate", 0, "Resample every file to this rate (0 keeps each file's rate)")
	return cmd
}

func toneCommand(e *env) *cobra.Command {
	var (
		frequency float64
		rate      int
		channels  int
		length    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "tone",
		Short: "Play a sine test tone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format := audio.Format{Channels: channels, SampleRate: rate, Encoding: audio.EncodingInt16}
			tone, err := source.NewTone(source.ToneConfig{
				Format:    format,
				Frequency: frequency,
				Frames:    int64(format.FramesFor(length)),
			})
			if err != nil {
				return err
			}

			player, err := e.newPlayer(fmt.Sprintf("%.0fHz tone", frequency), format, tone)
			if err != nil {
				return err
			}
			return e.run(player)
		},
	}
	cmd.Flags().Float64Var(&frequency, "frequency", source.DefaultFrequency, "Tone frequency in Hz")
	cmd.Flags().IntVar(&rate, "rate", 48000, "Sample rate")
	cmd.Flags().IntVar(&channels, "channels", 2, "Channel count")
	cmd.Flags().DurationVar(&length, "length", 0, "Tone length (0 plays until interrupted)")
	return cmd
}

func listenCommand(e *env) *cobra.Command {
	var (
		name   string
		buffer time.Duration
	)

	cmd := &cobra.Command{
		Use:   "listen <ws-url>",
		Short: "Play PCM from a websocket stream server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				hostname, err := os.Hostname()
				if err != nil {
					hostname = "unknown"
				}
				name = fmt.Sprintf("%s-ringfeed", hostname)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			var player *app.Player
			stream, err := source.DialNet(ctx, source.NetConfig{
				URL:      args[0],
				Name:     name,
				Buffer:   buffer,
				OnFormat: func(f audio.Format) error { return player.SetFormat(f) },
				Logger:   e.logger,
			})
			if err != nil {
				return err
			}
			defer stream.Close()

			player, err = e.newPlayer(args[0], stream.Format(), stream)
			if err != nil {
				return err
			}
			return e.run(player)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Listener name (default: hostname-ringfeed)")
	cmd.Flags().DurationVar(&buffer, "net-buffer", source.DefaultNetBuffer, "Audio buffered from the network")
	return cmd
}

func (e *env) newPlayer(title string, format audio.Format, producer feed.Producer) (*app.Player, error) {
	return app.New(app.Config{
		Settings: e.settings,
		Title:    title,
		Format:   format,
		Producer: producer,
		Logger:   e.logger,
	})
}

func (e *env) run(player *app.Player) error {
	defer func() {
		if err := player.Close(); err != nil {
			e.logger.Warn("teardown failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := player.Run(ctx); err != nil {
		e.logger.Error("playback failed", zap.Error(err))
		return err
	}
	return nil
}

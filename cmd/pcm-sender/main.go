// ABOUTME: Entry point for the PCM stream server
// ABOUTME: Streams a test tone over websocket, optionally switching sample rate to force reconfiguration
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/ringfeed/internal/logging"
	"github.com/Resonate-Protocol/ringfeed/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var (
		port     int
		name     string
		rates    []int
		channels int
		switchAt time.Duration
		length   time.Duration
		logLevel string
	)

	cmd := &cobra.Command{
		Use:          "pcm-sender",
		Short:        "Stream a test tone to ringfeed listeners",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Options{Level: logLevel, Console: true})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if name == "" {
				hostname, err := os.Hostname()
				if err != nil {
					hostname = "unknown"
				}
				name = fmt.Sprintf("%s-pcm-sender", hostname)
			}

			srv, err := server.New(server.Config{
				Addr:        fmt.Sprintf(":%d", port),
				Name:        name,
				Rates:       rates,
				Channels:    channels,
				SwitchEvery: switchAt,
				Length:      length,
				Pace:        true,
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				return err
			}
			logger.Info("press Ctrl-C to stop", zap.String("name", name))

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigChan
			logger.Info("shutting down", zap.Stringer("signal", sig))

			return srv.Stop()
		},
	}

	cmd.Flags().IntVar(&port, "port", 8927, "WebSocket server port")
	cmd.Flags().StringVar(&name, "name", "", "Server name (default: hostname-pcm-sender)")
	cmd.Flags().IntSliceVar(&rates, "rates", []int{48000}, "Sample rates to cycle through")
	cmd.Flags().IntVar(&channels, "channels", 2, "Channel count")
	cmd.Flags().DurationVar(&switchAt, "switch-every", 0, "Move to the next rate after this much audio")
	cmd.Flags().DurationVar(&length, "length", 0, "End each stream after this much audio")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

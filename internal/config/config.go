// ABOUTME: Application settings for the ringfeed commands
// ABOUTME: Flags, RINGFEED_* environment variables and an optional YAML file merged by viper
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/ringfeed/pkg/feed"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. RINGFEED_BACKEND=oto
const EnvPrefix = "RINGFEED"

// Backends accepted by the backend setting
var Backends = []string{"sim", "oto", "malgo"}

// Settings holds everything the commands need
type Settings struct {
	Backend        string        `mapstructure:"backend"`
	PoolSize       int           `mapstructure:"pool_size"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BufferDuration time.Duration `mapstructure:"buffer_duration"`
	WaitForPlaying bool          `mapstructure:"wait_for_playing"`
	Background     bool          `mapstructure:"background"`
	TUI            bool          `mapstructure:"tui"`
	LogFile        string        `mapstructure:"log_file"`
	LogLevel       string        `mapstructure:"log_level"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
}

// Defaults returns the settings used when nothing overrides them
func Defaults() Settings {
	return Settings{
		Backend:        "oto",
		PoolSize:       feed.DefaultPoolSize,
		PollInterval:   feed.DefaultPollInterval,
		BufferDuration: feed.DefaultBufferDuration,
		TUI:            true,
		LogFile:        "ringfeed.log",
		LogLevel:       "info",
	}
}

// New returns a viper instance carrying the defaults and environment bindings
func New() *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("pool_size", d.PoolSize)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("buffer_duration", d.BufferDuration)
	v.SetDefault("wait_for_playing", d.WaitForPlaying)
	v.SetDefault("background", d.Background)
	v.SetDefault("tui", d.TUI)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("metrics_addr", d.MetricsAddr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// RegisterFlags defines the persistent flags and binds them into v
func RegisterFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	d := Defaults()
	flags.String("config", "", "YAML config file")
	flags.String("backend", d.Backend, "Playback backend: "+strings.Join(Backends, ", "))
	flags.Int("pool-size", d.PoolSize, "Number of device buffers in the ring")
	flags.Duration("poll-interval", d.PollInterval, "How often a full queue is checked for finished buffers")
	flags.Duration("buffer-duration", d.BufferDuration, "Audio held by each device buffer")
	flags.Bool("wait-for-playing", d.WaitForPlaying, "Do not reclaim buffers while the device is paused")
	flags.Bool("background", d.Background, "Run the feed loop in a background feeder")
	flags.Bool("tui", d.TUI, "Show the transport TUI")
	flags.String("log-file", d.LogFile, "Log file path (empty logs to stderr)")
	flags.String("log-level", d.LogLevel, "Log level: debug, info, warn, error")
	flags.String("metrics-addr", d.MetricsAddr, "Serve Prometheus metrics on this address")

	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("error binding flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Load reads the optional config file and decodes the merged settings
func Load(v *viper.Viper, path string) (Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("error decoding settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks values viper cannot type-check
func (s Settings) Validate() error {
	valid := false
	for _, b := range Backends {
		if s.Backend == b {
			valid = true
		}
	}
	if !valid {
		return fmt.Errorf("unknown backend %q (want one of %s)", s.Backend, strings.Join(Backends, ", "))
	}
	if s.PoolSize < 1 {
		return fmt.Errorf("pool size must be at least 1, got %d", s.PoolSize)
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", s.PollInterval)
	}
	if s.BufferDuration <= 0 {
		return fmt.Errorf("buffer duration must be positive, got %s", s.BufferDuration)
	}
	return nil
}

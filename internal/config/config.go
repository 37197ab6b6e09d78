package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration.
type Config struct {
	Server   ServerConfig
	Library  LibraryConfig
	Profile  ProfileConfig
	Playback PlaybackConfig
	Stream   StreamConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type LibraryConfig struct {
	Path  string // JSON manifest
	Watch bool
}

// ProfileConfig selects where playlists, favorites and gestures are kept.
type ProfileConfig struct {
	Driver     string // none, sqlite or remote
	SQLitePath string `mapstructure:"sqlite_path"`
	RemoteURL  string `mapstructure:"remote_url"`
	RemoteKey  string `mapstructure:"remote_key"`
	Debounce   time.Duration
}

type PlaybackConfig struct {
	Analysis     bool // cross-origin analysis mode for new loads
	Volume       float64
	SpectrumTick time.Duration `mapstructure:"spectrum_tick"`
	SleepFade    time.Duration `mapstructure:"sleep_fade"`
}

type StreamConfig struct {
	Bitrate string // ffmpeg MP3 bitrate, e.g. 192k
}

type LogConfig struct {
	Level string
}

// Load reads configuration from an optional TOML file (SONORA_CONFIG) and
// SONORA_ environment variables, e.g. SONORA_SERVER_PORT.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("library.path", "library.json")
	v.SetDefault("library.watch", true)
	v.SetDefault("profile.driver", "sqlite")
	v.SetDefault("profile.sqlite_path", "sonora.db")
	v.SetDefault("profile.remote_url", "")
	v.SetDefault("profile.remote_key", "")
	v.SetDefault("profile.debounce", time.Second)
	v.SetDefault("playback.analysis", true)
	v.SetDefault("playback.volume", 0.8)
	v.SetDefault("playback.spectrum_tick", 16*time.Millisecond)
	v.SetDefault("playback.sleep_fade", 10*time.Second)
	v.SetDefault("stream.bitrate", "192k")
	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")
	v.SetEnvPrefix("SONORA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path := os.Getenv("SONORA_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Profile.Driver {
	case "none", "sqlite":
	case "remote":
		if c.Profile.RemoteURL == "" {
			errs = append(errs, errors.New("profile.remote_url is required for the remote driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("profile.driver %q is not one of none, sqlite, remote", c.Profile.Driver))
	}
	if c.Playback.Volume < 0 || c.Playback.Volume > 1 {
		errs = append(errs, fmt.Errorf("playback.volume %v outside [0, 1]", c.Playback.Volume))
	}
	if c.Playback.SpectrumTick <= 0 {
		errs = append(errs, errors.New("playback.spectrum_tick must be positive"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LogLevel parses Log.Level.
func (c Config) LogLevel() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Quiver
type Config struct {
	Server ServerConfig
	Log    LogConfig
	Cursor CursorConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     int // seconds
	WriteTimeout    int // seconds
	ShutdownTimeout int // seconds
}

type LogConfig struct {
	Level  string
	Format string
}

type CursorConfig struct {
	// DefaultChunkSize is used when neither the READ command nor the
	// request configured a chunk size. COUNT 0 falls back here too.
	DefaultChunkSize int
	// DefaultMaxIdle bounds how long a parked cursor survives without a
	// resume when the request did not set its own idle budget.
	DefaultMaxIdle time.Duration
	// SweepSchedule is the cron schedule of the idle-cursor collector.
	SweepSchedule string
}

// Load reads configuration from defaults, an optional quiver.toml, and
// QUIVER_* environment variables, in increasing precedence.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("QUIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quiver")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/quiver/")
	v.AddConfigPath("$HOME/.quiver/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine; defaults + env apply.
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetInt("server.read_timeout"),
			WriteTimeout:    v.GetInt("server.write_timeout"),
			ShutdownTimeout: v.GetInt("server.shutdown_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Cursor: CursorConfig{
			DefaultChunkSize: v.GetInt("cursor.default_chunk_size"),
			DefaultMaxIdle:   time.Duration(v.GetInt("cursor.default_max_idle_ms")) * time.Millisecond,
			SweepSchedule:    v.GetString("cursor.sweep_schedule"),
		},
	}

	if cfg.Cursor.DefaultChunkSize <= 0 {
		return nil, fmt.Errorf("cursor.default_chunk_size must be positive")
	}
	if cfg.Cursor.DefaultMaxIdle <= 0 {
		return nil, fmt.Errorf("cursor.default_max_idle_ms must be positive")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 7700)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.shutdown_timeout", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("cursor.default_chunk_size", 1000)
	v.SetDefault("cursor.default_max_idle_ms", 300000)
	// Sweep parked cursors once a minute.
	v.SetDefault("cursor.sweep_schedule", "* * * * *")
}

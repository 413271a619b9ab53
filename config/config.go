package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the plan console
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Poll      PollConfig      `mapstructure:"poll"`
	Events    EventsConfig    `mapstructure:"events"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// RemoteConfig points at the orchestrator's ops API
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"` // bearer token for the ops API
	Timeout time.Duration `mapstructure:"timeout"`
}

func (r RemoteConfig) Validate() error {
	if strings.TrimSpace(r.BaseURL) == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	return nil
}

// Normalize applies defaults for unset remote values.
func (r RemoteConfig) Normalize() RemoteConfig {
	r.BaseURL = strings.TrimRight(strings.TrimSpace(r.BaseURL), "/")
	if r.Timeout <= 0 {
		r.Timeout = 15 * time.Second
	}
	return r
}

// PollConfig tunes the snapshot fetch cadence
type PollConfig struct {
	FastInterval time.Duration `mapstructure:"fast_interval"`
	SlowInterval time.Duration `mapstructure:"slow_interval"`
}

// Normalize applies the default cadences and keeps fast <= slow.
func (p PollConfig) Normalize() PollConfig {
	if p.FastInterval <= 0 {
		p.FastInterval = 2 * time.Second
	}
	if p.SlowInterval <= 0 {
		p.SlowInterval = 10 * time.Second
	}
	if p.SlowInterval < p.FastInterval {
		p.SlowInterval = p.FastInterval
	}
	return p
}

// EventsConfig selects and tunes the live event transport
type EventsConfig struct {
	// Source is "sse" (the orchestrator's push endpoint) or "redis"
	// (consuming the event stream directly from the broker).
	Source    string        `mapstructure:"source"`
	Reconnect time.Duration `mapstructure:"reconnect"`
	Redis     RedisConfig   `mapstructure:"redis"`
}

func (e EventsConfig) Validate() error {
	switch e.Source {
	case "sse", "redis":
	default:
		return fmt.Errorf("events.source must be \"sse\" or \"redis\", got %q", e.Source)
	}
	if e.Source == "redis" {
		return e.Redis.Validate()
	}
	return nil
}

// Normalize applies defaults for unset event values.
func (e EventsConfig) Normalize() EventsConfig {
	if strings.TrimSpace(e.Source) == "" {
		e.Source = "sse"
	}
	if e.Reconnect <= 0 {
		e.Reconnect = 2 * time.Second
	}
	e.Redis = e.Redis.Normalize()
	return e
}

// RedisConfig contains Redis connection settings for the stream transport
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	Group    string `mapstructure:"group"`
	Consumer string `mapstructure:"consumer"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Addr) == "" {
		return fmt.Errorf("events.redis.addr required")
	}
	if strings.TrimSpace(r.Stream) == "" {
		return fmt.Errorf("events.redis.stream required")
	}
	return nil
}

// Normalize applies defaults for unset redis values.
func (r RedisConfig) Normalize() RedisConfig {
	if strings.TrimSpace(r.Group) == "" {
		r.Group = "planview"
	}
	if strings.TrimSpace(r.Consumer) == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "planview"
		}
		r.Consumer = host
	}
	return r
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.SetDefault("events.source", "sse")
	v.SetDefault("poll.fast_interval", "2s")
	v.SetDefault("poll.slow_interval", "10s")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.metrics_port", 9187)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("PLANVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // read in environment variables that match (PLANVIEW_*)

	if err := v.ReadInConfig(); err != nil {
		// Everything can come from flags and environment; a missing file is
		// only fatal when one was named explicitly.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	config.Remote = config.Remote.Normalize()
	config.Poll = config.Poll.Normalize()
	config.Events = config.Events.Normalize()

	if err := config.Remote.Validate(); err != nil {
		return nil, err
	}
	if err := config.Events.Validate(); err != nil {
		return nil, err
	}
	if err := config.Telemetry.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

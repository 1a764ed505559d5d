// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "SLIMY_"

// Config is the full set of process settings.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	ClientDir  string `env:"CLIENT_DIR"`
	SessionID  string `env:"SESSION_ID"`
	Seed       uint64 `env:"SEED"`

	TickRate        int `env:"TICK_RATE" envDefault:"15"`
	CommandCapacity int `env:"COMMAND_CAPACITY" envDefault:"1024"`
	PerActorLimit   int `env:"PER_ACTOR_LIMIT" envDefault:"32"`

	CountdownSeconds float64 `env:"COUNTDOWN_SECONDS" envDefault:"3"`
	PlaySeconds      float64 `env:"PLAY_SECONDS" envDefault:"60"`

	OrderCapacity      int     `env:"ORDER_CAPACITY" envDefault:"4"`
	OrderInterval      float64 `env:"ORDER_INTERVAL_SECONDS" envDefault:"4"`
	OrderExpirySeconds float64 `env:"ORDER_EXPIRY_SECONDS" envDefault:"0"`

	PlateSpawnSeconds float64 `env:"PLATE_SPAWN_SECONDS" envDefault:"4"`
	MaxPlates         int     `env:"MAX_PLATES" envDefault:"4"`

	CatalogPath  string `env:"CATALOG_PATH"`
	DatabasePath string `env:"DB_PATH" envDefault:"slimy-kitchen.db"`

	LogSinks       []string `env:"LOG_SINKS" envDefault:"console" envSeparator:","`
	LogJSONPath    string   `env:"LOG_JSON_PATH"`
	LogMinSeverity string   `env:"LOG_LEVEL" envDefault:"info"`

	KeyframeCapacity  int           `env:"KEYFRAME_CAPACITY" envDefault:"64"`
	KeyframeMaxAge    time.Duration `env:"KEYFRAME_MAX_AGE" envDefault:"10s"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"2s"`

	OTLPEndpoint     string `env:"OTLP_ENDPOINT"`
	PyroscopeAddress string `env:"PYROSCOPE_ADDRESS"`
}

// Load parses the environment into a validated Config.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses the given variables instead of the process environment. A
// nil map reads the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Prefix: EnvPrefix}
	if vars != nil {
		opts.Environment = vars
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the session cannot run with.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.ListenAddr) == "":
		return fmt.Errorf("config: listen address is required")
	case c.TickRate <= 0:
		return fmt.Errorf("config: tick rate must be positive, got %d", c.TickRate)
	case c.CommandCapacity <= 0:
		return fmt.Errorf("config: command capacity must be positive, got %d", c.CommandCapacity)
	case c.PerActorLimit < 0:
		return fmt.Errorf("config: per-actor limit must not be negative, got %d", c.PerActorLimit)
	case c.CountdownSeconds <= 0 || c.PlaySeconds <= 0:
		return fmt.Errorf("config: invalid match timing countdown=%v play=%v", c.CountdownSeconds, c.PlaySeconds)
	case c.OrderCapacity <= 0 || c.OrderInterval <= 0:
		return fmt.Errorf("config: invalid order settings capacity=%d interval=%v", c.OrderCapacity, c.OrderInterval)
	case c.OrderExpirySeconds < 0:
		return fmt.Errorf("config: order expiry must not be negative")
	case c.PlateSpawnSeconds <= 0 || c.MaxPlates <= 0:
		return fmt.Errorf("config: invalid plate settings interval=%v max=%d", c.PlateSpawnSeconds, c.MaxPlates)
	case c.KeyframeCapacity <= 0:
		return fmt.Errorf("config: keyframe capacity must be positive, got %d", c.KeyframeCapacity)
	case c.HeartbeatInterval <= 0:
		return fmt.Errorf("config: heartbeat interval must be positive")
	}
	return nil
}

// Package config provides Viper-based configuration loading for the arena
// session server and its headless client.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	// Host is the bind address for the listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the listener.
	Port int `mapstructure:"port"`
	// WriteTimeout is the per-message write deadline on client sockets.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// SendBuffer is the per-connection outbound queue length; a client
	// that cannot drain this many messages is disconnected.
	SendBuffer int `mapstructure:"send_buffer"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// AuthConfig holds connection handshake settings.
type AuthConfig struct {
	// JWTSecret signs and verifies handshake tokens. Empty disables token
	// auth: identities then come from the handshake query parameters.
	JWTSecret string `mapstructure:"jwt_secret"`
}

// GameConfig holds the protocol tunables shared by server and client.
type GameConfig struct {
	// SnapshotInterval is the server-owned update-positions cadence.
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	// MoveEpsilonSq is the squared displacement below which a client skips
	// a position send, in room-scale units.
	MoveEpsilonSq float64 `mapstructure:"move_epsilon_sq"`
	// MoveHeartbeat bounds staleness: a position is sent after this long
	// even without movement.
	MoveHeartbeat time.Duration `mapstructure:"move_heartbeat"`
	// BulletLifetime is how long an unconfirmed bullet lives client-side.
	BulletLifetime time.Duration `mapstructure:"bullet_lifetime"`
	// BulletEmitInterval is the live bullet-position report cadence.
	BulletEmitInterval time.Duration `mapstructure:"bullet_emit_interval"`
	// BulletSpeed is the bullet travel speed in room-scale units/second.
	BulletSpeed float64 `mapstructure:"bullet_speed"`
	// HitDamage is the per-bullet damage applied on confirmation.
	HitDamage int `mapstructure:"hit_damage"`
	// RespawnDelay is the time between death and respawn.
	RespawnDelay time.Duration `mapstructure:"respawn_delay"`
	// PingInterval is the latency probe cadence.
	PingInterval time.Duration `mapstructure:"ping_interval"`
	// ReconnectAttempts caps client reconnection retries.
	ReconnectAttempts int `mapstructure:"reconnect_attempts"`
	// ReconnectDelay is the fixed backoff between reconnection retries.
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// ArenaConfig names the arena layout to load.
type ArenaConfig struct {
	// LayoutPath is a YAML arena file; empty selects the built-in ring.
	LayoutPath string `mapstructure:"layout_path"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Game    GameConfig    `mapstructure:"game"`
	Arena   ArenaConfig   `mapstructure:"arena"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error
// describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, "server.write_timeout must not be negative")
	}
	if s.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("server.send_buffer must be >= 1, got %d", s.SendBuffer))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.SnapshotInterval <= 0 {
		errs = append(errs, "game.snapshot_interval must be positive")
	}
	if g.MoveEpsilonSq < 0 {
		errs = append(errs, "game.move_epsilon_sq must not be negative")
	}
	if g.MoveHeartbeat <= 0 {
		errs = append(errs, "game.move_heartbeat must be positive")
	}
	if g.BulletLifetime <= 0 {
		errs = append(errs, "game.bullet_lifetime must be positive")
	}
	if g.BulletEmitInterval <= 0 {
		errs = append(errs, "game.bullet_emit_interval must be positive")
	}
	if g.BulletSpeed <= 0 {
		errs = append(errs, "game.bullet_speed must be positive")
	}
	if g.HitDamage < 1 || g.HitDamage > 100 {
		errs = append(errs, fmt.Sprintf("game.hit_damage must be 1-100, got %d", g.HitDamage))
	}
	if g.RespawnDelay <= 0 {
		errs = append(errs, "game.respawn_delay must be positive")
	}
	if g.PingInterval <= 0 {
		errs = append(errs, "game.ping_interval must be positive")
	}
	if g.ReconnectAttempts < 1 {
		errs = append(errs, fmt.Sprintf("game.reconnect_attempts must be >= 1, got %d", g.ReconnectAttempts))
	}
	if g.ReconnectDelay < 0 {
		errs = append(errs, "game.reconnect_delay must not be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment
// variable overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with ARENA_ prefix
	v.SetEnvPrefix("ARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns the built-in configuration with no file involved.
//
// Postcondition: Returns a Config that passes Validate.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static literals; unmarshalling them cannot fail.
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.send_buffer", 256)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("game.snapshot_interval", "50ms")
	v.SetDefault("game.move_epsilon_sq", 1e-4)
	v.SetDefault("game.move_heartbeat", "100ms")
	v.SetDefault("game.bullet_lifetime", "10s")
	v.SetDefault("game.bullet_emit_interval", "100ms")
	v.SetDefault("game.bullet_speed", 40.0)
	v.SetDefault("game.hit_damage", 10)
	v.SetDefault("game.respawn_delay", "2s")
	v.SetDefault("game.ping_interval", "5s")
	v.SetDefault("game.reconnect_attempts", 5)
	v.SetDefault("game.reconnect_delay", "1s")

	v.SetDefault("arena.layout_path", "")
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the config path from.
const EnvironmentVariable = "BYTEBRIDGE_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for bench setups and local testing.
	Development Environment = "development"
	// Staging is for pre-deployment testing against real hardware.
	Staging Environment = "staging"
	// Production is for field deployments.
	Production Environment = "production"
)

// Middleware kinds accepted in middleware.kind.
const (
	MiddlewareMQTT     = "mqtt"
	MiddlewareRedis    = "redis"
	MiddlewarePostgres = "postgres"
)

// Config is the master configuration for the bytebridge commands.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Middleware selects and tunes the pub/sub channel endpoint.
	Middleware MiddlewareConfig `yaml:"middleware"`

	// Bridge tunes the bridge loops.
	Bridge BridgeConfig `yaml:"bridge"`

	// TCP configures the stream-socket transport.
	TCP TCPConfig `yaml:"tcp"`

	// Serial configures the serial-port transport.
	Serial SerialConfig `yaml:"serial"`

	// Log configures process logging.
	Log LogConfig `yaml:"log"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Middleware *MiddlewareConfig `yaml:"middleware,omitempty"`
	Log        *LogConfig        `yaml:"log,omitempty"`
}

// MiddlewareConfig configures the channel endpoint.
type MiddlewareConfig struct {
	// Kind is mqtt, redis, or postgres.
	// Default: mqtt
	Kind string `yaml:"kind"`

	// QoS is the MQTT quality-of-service level (0, 1, or 2).
	// Default: 0
	QoS int `yaml:"qos"`

	// ConnectTimeout bounds connecting to the middleware.
	// Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// PostgresChannel is the LISTEN/NOTIFY channel shared by bridges.
	// Default: bytebridge
	PostgresChannel string `yaml:"postgres_channel"`

	// PostgresUser and PostgresDatabase complete the connection string
	// built from the middleware host argument. Both support ${VAR}
	// expansion so credentials can stay out of the file.
	// Default: ${PGUSER:-bytebridge}, ${PGDATABASE:-bytebridge}
	PostgresUser     string `yaml:"postgres_user"`
	PostgresDatabase string `yaml:"postgres_database"`
}

// BridgeConfig tunes the bridge loops.
type BridgeConfig struct {
	// FetchTimeout bounds each sink-loop fetch.
	// Default: 250ms
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// PollInterval is the source loop's sleep when no input is
	// available. Zero yields without sleeping.
	// Default: 1ms
	PollInterval time.Duration `yaml:"poll_interval"`

	// DrainTimeout bounds the wait for loops during shutdown.
	// Default: 5s
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// TCPConfig configures the stream-socket transport.
type TCPConfig struct {
	// DialTimeout bounds connection establishment.
	// Default: 10s
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// SerialConfig configures the serial-port transport.
type SerialConfig struct {
	// EventDriven enables data-available notification instead of
	// polling. The --poll flag overrides it.
	// Default: true
	EventDriven bool `yaml:"event_driven"`
}

// LogConfig configures process logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text
	Format string `yaml:"format"`
}

// Default returns the default configuration. Every field has a usable
// value, so commands run without a config file.
func Default() *Config {
	return &Config{
		Environment: Development,
		Middleware: MiddlewareConfig{
			Kind:             MiddlewareMQTT,
			QoS:              0,
			ConnectTimeout:   10 * time.Second,
			PostgresChannel:  "bytebridge",
			PostgresUser:     "${PGUSER:-bytebridge}",
			PostgresDatabase: "${PGDATABASE:-bytebridge}",
		},
		Bridge: BridgeConfig{
			FetchTimeout: 250 * time.Millisecond,
			PollInterval: time.Millisecond,
			DrainTimeout: 5 * time.Second,
		},
		TCP: TCPConfig{
			DialTimeout: 10 * time.Second,
		},
		Serial: SerialConfig{
			EventDriven: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the file named by BYTEBRIDGE_CONFIG.
// There is no discovery: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of a bytebridge.yaml config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path on top of
// Default, applies the section for the configured environment, and
// expands ${VAR} references.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: machine-readable logs.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Log: &LogConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Middleware != nil {
		if overrides.Middleware.Kind != "" {
			c.Middleware.Kind = overrides.Middleware.Kind
		}
		if overrides.Middleware.QoS != 0 {
			c.Middleware.QoS = overrides.Middleware.QoS
		}
		if overrides.Middleware.ConnectTimeout != 0 {
			c.Middleware.ConnectTimeout = overrides.Middleware.ConnectTimeout
		}
		if overrides.Middleware.PostgresChannel != "" {
			c.Middleware.PostgresChannel = overrides.Middleware.PostgresChannel
		}
		if overrides.Middleware.PostgresUser != "" {
			c.Middleware.PostgresUser = overrides.Middleware.PostgresUser
		}
		if overrides.Middleware.PostgresDatabase != "" {
			c.Middleware.PostgresDatabase = overrides.Middleware.PostgresDatabase
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in string
// fields that commonly carry deployment-specific values.
func (c *Config) expandVariables() {
	c.Middleware.Kind = expandVars(c.Middleware.Kind, os.Getenv)
	c.Middleware.PostgresChannel = expandVars(c.Middleware.PostgresChannel, os.Getenv)
	c.Middleware.PostgresUser = expandVars(c.Middleware.PostgresUser, os.Getenv)
	c.Middleware.PostgresDatabase = expandVars(c.Middleware.PostgresDatabase, os.Getenv)
	c.Log.Level = expandVars(c.Log.Level, os.Getenv)
}

// ExpandVariables expands ${VAR} references in the fields LoadFile
// expands. Commands that start from Default (no config file) call it so
// the default Postgres identity still honors PGUSER and PGDATABASE.
func (c *Config) ExpandVariables() {
	c.expandVariables()
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. An empty
// lookup result selects the default.
func expandVars(s string, lookup func(string) string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value := lookup(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	kinds := []string{MiddlewareMQTT, MiddlewareRedis, MiddlewarePostgres}
	if !slices.Contains(kinds, c.Middleware.Kind) {
		errs = append(errs, fmt.Errorf("middleware.kind must be one of: %v", kinds))
	}
	if c.Middleware.QoS < 0 || c.Middleware.QoS > 2 {
		errs = append(errs, fmt.Errorf("middleware.qos must be 0, 1, or 2"))
	}
	if c.Middleware.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("middleware.connect_timeout must be positive"))
	}
	if c.Middleware.Kind == MiddlewarePostgres && c.Middleware.PostgresChannel == "" {
		errs = append(errs, fmt.Errorf("middleware.postgres_channel is required for postgres"))
	}

	if c.Bridge.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("bridge.fetch_timeout must be positive"))
	}
	if c.Bridge.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("bridge.poll_interval must not be negative"))
	}
	if c.Bridge.DrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("bridge.drain_timeout must be positive"))
	}
	if c.TCP.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("tcp.dial_timeout must not be negative"))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	formats := []string{"text", "json"}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

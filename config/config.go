// Package config loads the configuration of the kamel command from a TOML
// or YAML file.
package config

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"

	"github.com/overmail/kamel/imapclient"
)

// ServerConfig describes the IMAP server.
type ServerConfig struct {
	Host           string `toml:"host" yaml:"host"`
	Port           int    `toml:"port" yaml:"port"`
	TLS            bool   `toml:"tls" yaml:"tls"`
	InsecureTLS    bool   `toml:"insecure_tls" yaml:"insecure_tls"` // Skip certificate verification
	MaxConnections int    `toml:"max_connections" yaml:"max_connections"`
	DialTimeout    string `toml:"dial_timeout" yaml:"dial_timeout"`
}

// AuthConfig holds the credentials. KAMEL_USERNAME and KAMEL_PASSWORD
// override the file values.
type AuthConfig struct {
	Username  string `toml:"username" yaml:"username"`
	Password  string `toml:"password" yaml:"password"`
	Mechanism string `toml:"mechanism" yaml:"mechanism"` // LOGIN or PLAIN
}

// RetryConfig configures reconnection backoff.
type RetryConfig struct {
	MaxRetries      int    `toml:"max_retries" yaml:"max_retries"`
	InitialInterval string `toml:"initial_interval" yaml:"initial_interval"`
	MaxInterval     string `toml:"max_interval" yaml:"max_interval"`
}

// IdleConfig configures IDLE.
type IdleConfig struct {
	RestartInterval string `toml:"restart_interval" yaml:"restart_interval"`
}

// LoggingConfig configures the log handler.
type LoggingConfig struct {
	Format string `toml:"format" yaml:"format"` // text or json
	Level  string `toml:"level" yaml:"level"`   // debug, info, warn or error
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `toml:"addr" yaml:"addr"` // Empty disables the endpoint
}

// Config is the whole configuration file.
type Config struct {
	Server  ServerConfig  `toml:"server" yaml:"server"`
	Auth    AuthConfig    `toml:"auth" yaml:"auth"`
	Retry   RetryConfig   `toml:"retry" yaml:"retry"`
	Idle    IdleConfig    `toml:"idle" yaml:"idle"`
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// Default returns the configuration used for keys missing from the file.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           imapclient.DefaultPort,
			TLS:            true,
			MaxConnections: imapclient.DefaultMaxConnections,
			DialTimeout:    "30s",
		},
		Auth: AuthConfig{
			Mechanism: "LOGIN",
		},
		Retry: RetryConfig{
			MaxRetries:      3,
			InitialInterval: "500ms",
			MaxInterval:     "10s",
		},
		Idle: IdleConfig{
			RestartInterval: "25m",
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load reads a configuration file. The format is chosen by extension:
// ".yaml" and ".yml" are YAML, anything else is TOML. Defaults are applied
// first, then environment overrides, then the result is validated.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %v: %w", path, err)
		}
	default:
		md, err := toml.Decode(string(b), &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: parsing %v: %w", path, err)
		}
		for _, key := range md.Undecoded() {
			slog.Warn("unknown configuration key", "file", path, "key", key.String())
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyEnv() {
	if v, ok := os.LookupEnv("KAMEL_USERNAME"); ok {
		cfg.Auth.Username = v
	}
	if v, ok := os.LookupEnv("KAMEL_PASSWORD"); ok {
		cfg.Auth.Password = v
	}
}

// Validate checks the configuration for errors.
func (cfg *Config) Validate() error {
	if cfg.Server.Host == "" {
		return fmt.Errorf("config: server.host is required")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %v out of range", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections < 1 {
		return fmt.Errorf("config: server.max_connections must be at least 1")
	}
	switch strings.ToUpper(cfg.Auth.Mechanism) {
	case "LOGIN", "PLAIN":
	default:
		return fmt.Errorf("config: unsupported auth.mechanism %q", cfg.Auth.Mechanism)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unsupported logging.format %q", cfg.Logging.Format)
	}
	if _, err := cfg.LogLevel(); err != nil {
		return err
	}

	for name, s := range map[string]string{
		"server.dial_timeout":    cfg.Server.DialTimeout,
		"retry.initial_interval": cfg.Retry.InitialInterval,
		"retry.max_interval":     cfg.Retry.MaxInterval,
		"idle.restart_interval":  cfg.Idle.RestartInterval,
	} {
		if _, err := parseDuration(s); err != nil {
			return fmt.Errorf("config: %v: %w", name, err)
		}
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// LogLevel returns the configured log level.
func (cfg *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return 0, fmt.Errorf("config: logging.level: %w", err)
	}
	return level, nil
}

// PoolConfig returns the pool configuration.
func (cfg *Config) PoolConfig() imapclient.Config {
	return imapclient.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		TLS:  cfg.Server.TLS,
		Credentials: imapclient.Credentials{
			Username:  cfg.Auth.Username,
			Password:  cfg.Auth.Password,
			Mechanism: strings.ToUpper(cfg.Auth.Mechanism),
		},
		MaxConnections: cfg.Server.MaxConnections,
	}
}

// PoolOptions returns the pool options. Durations are assumed valid.
func (cfg *Config) PoolOptions(logger *slog.Logger) *imapclient.Options {
	dialTimeout, _ := parseDuration(cfg.Server.DialTimeout)
	initial, _ := parseDuration(cfg.Retry.InitialInterval)
	maxInterval, _ := parseDuration(cfg.Retry.MaxInterval)
	options := &imapclient.Options{
		Logger:      logger,
		DialTimeout: dialTimeout,
		Retry: imapclient.RetryOptions{
			MaxRetries:      cfg.Retry.MaxRetries,
			InitialInterval: initial,
			MaxInterval:     maxInterval,
		},
	}
	if cfg.Server.InsecureTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         cfg.Server.Host,
			InsecureSkipVerify: true,
		}
	}
	return options
}

// IdleRestartInterval returns the IDLE restart interval.
func (cfg *Config) IdleRestartInterval() time.Duration {
	d, _ := parseDuration(cfg.Idle.RestartInterval)
	return d
}

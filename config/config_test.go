package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_toml(t *testing.T) {
	path := writeFile(t, "kamel.toml", `
[server]
host = "imap.example.org"
max_connections = 2

[auth]
username = "alice"
password = "hunter2"
mechanism = "plain"

[idle]
restart_interval = "10m"

[logging]
format = "json"
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "imap.example.org", cfg.Server.Host)
	assert.Equal(t, 993, cfg.Server.Port)
	assert.True(t, cfg.Server.TLS)
	assert.Equal(t, 10*time.Minute, cfg.IdleRestartInterval())

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	pc := cfg.PoolConfig()
	assert.Equal(t, 2, pc.MaxConnections)
	assert.Equal(t, "PLAIN", pc.Credentials.Mechanism)
	assert.Equal(t, "hunter2", pc.Credentials.Password)

	options := cfg.PoolOptions(nil)
	assert.Equal(t, 30*time.Second, options.DialTimeout)
	assert.Equal(t, 3, options.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, options.Retry.InitialInterval)
	assert.Nil(t, options.TLSConfig)
}

func TestLoad_yaml(t *testing.T) {
	path := writeFile(t, "kamel.yaml", `
server:
  host: imap.example.org
  port: 143
  tls: false
  insecure_tls: true
auth:
  username: bob
retry:
  max_retries: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 143, cfg.Server.Port)
	assert.False(t, cfg.Server.TLS)
	assert.Equal(t, "bob", cfg.Auth.Username)
	assert.Equal(t, "LOGIN", cfg.Auth.Mechanism)
	assert.Equal(t, 0, cfg.Retry.MaxRetries)

	options := cfg.PoolOptions(nil)
	require.NotNil(t, options.TLSConfig)
	assert.True(t, options.TLSConfig.InsecureSkipVerify)
	assert.Equal(t, "imap.example.org", options.TLSConfig.ServerName)
}

func TestLoad_yamlUnknownKey(t *testing.T) {
	path := writeFile(t, "kamel.yml", "server:\n  host: x\n  hots: y\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_env(t *testing.T) {
	t.Setenv("KAMEL_USERNAME", "carol")
	t.Setenv("KAMEL_PASSWORD", "s3cret")
	path := writeFile(t, "kamel.toml", "[server]\nhost = \"imap.example.org\"\n\n[auth]\nusername = \"alice\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "carol", cfg.Auth.Username)
	assert.Equal(t, "s3cret", cfg.Auth.Password)
}

func TestLoad_missingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_syntaxError(t *testing.T) {
	path := writeFile(t, "kamel.toml", "[server\nhost = 1\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(cfg *Config)
	}{
		{"no_host", func(cfg *Config) { cfg.Server.Host = "" }},
		{"port_zero", func(cfg *Config) { cfg.Server.Port = 0 }},
		{"port_too_large", func(cfg *Config) { cfg.Server.Port = 70000 }},
		{"no_connections", func(cfg *Config) { cfg.Server.MaxConnections = 0 }},
		{"mechanism", func(cfg *Config) { cfg.Auth.Mechanism = "CRAM-MD5" }},
		{"log_format", func(cfg *Config) { cfg.Logging.Format = "xml" }},
		{"log_level", func(cfg *Config) { cfg.Logging.Level = "loud" }},
		{"dial_timeout", func(cfg *Config) { cfg.Server.DialTimeout = "soon" }},
		{"restart_interval", func(cfg *Config) { cfg.Idle.RestartInterval = "10" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server.Host = "imap.example.org"
			require.NoError(t, cfg.Validate())
			tc.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

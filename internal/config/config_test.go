// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facegate/facegate/pkg/errutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// isolate points XDG lookups at an empty directory and sets the minimum
// environment a valid configuration needs.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("FACEGATE_SIGNING_SECRET", testSecret)
	t.Setenv("FACEGATE_SMTP__HOST", "smtp.example.com")
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, testSecret, cfg.SigningSecret)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.InDelta(t, 0.5, cfg.FaceTolerance, 1e-9)
	assert.Equal(t, 24*time.Hour, cfg.ResetChallengeTTL)
	assert.Equal(t, "http://localhost:8080/reset-password", cfg.ResetURL)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "facegate", cfg.Store.Database)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "noreply@facegate.local", cfg.SMTP.From)
	assert.Equal(t, 10*time.Second, cfg.Encoder.Timeout)
	assert.False(t, cfg.DevMode)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "custom.yaml", `
token_ttl: 2h
face_tolerance: 0.45
http:
  addr: ":9090"
  cors_origins:
    - https://app.example.com
store:
  driver: mongo
  url: mongodb://localhost:27017
log:
  format: text
`)

	cfg, err := Load(LoadOptions{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.InDelta(t, 0.45, cfg.FaceTolerance, 1e-9)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, DriverMongo, cfg.Store.Driver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Store.URL)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_XDGDefaultFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, dir, filepath.Join("facegate", "config.yaml"), "reset_challenge_ttl: 30m\n")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.ResetChallengeTTL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "c.yaml", "token_ttl: 2h\nstore:\n  driver: mongo\n")
	t.Setenv("FACEGATE_TOKEN_TTL", "15m")
	t.Setenv("FACEGATE_STORE__DRIVER", "redis")
	t.Setenv("FACEGATE_SMTP__PORT", "2525")
	t.Setenv("FACEGATE_FACE_TOLERANCE", "0.6")
	t.Setenv("FACEGATE_HTTP__CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(LoadOptions{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.InDelta(t, 0.6, cfg.FaceTolerance, 1e-9)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.HTTP.CORSOrigins)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, ".env", "FACEGATE_ENCODER__URL=http://encoder:5000/encode\n")
	t.Cleanup(func() { _ = os.Unsetenv("FACEGATE_ENCODER__URL") })

	cfg, err := Load(LoadOptions{EnvFile: path})
	require.NoError(t, err)
	assert.Equal(t, "http://encoder:5000/encode", cfg.Encoder.URL)
}

func TestLoad_MissingDotEnvIsIgnored(t *testing.T) {
	dir := isolate(t)
	_, err := Load(LoadOptions{EnvFile: filepath.Join(dir, "absent.env")})
	require.NoError(t, err)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "c.yaml", "http:\n  addr: \":9090\"\n")
	t.Setenv("FACEGATE_LOG__FORMAT", "text")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	fs.String("config", "", "ignored by the loader")
	require.NoError(t, fs.Parse([]string{"--addr", ":7070", "--token-ttl", "5m", "--config", path}))

	cfg, err := Load(LoadOptions{ConfigFile: path, Flags: fs})
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Minute, cfg.TokenTTL)
	// Unset flags keep values from lower layers.
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	_, err := Load(LoadOptions{ConfigFile: filepath.Join(dir, "nope.yaml")})
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
	errutil.AssertErrorContext(t, err, "source", "file")
}

func TestLoad_InvalidDuration(t *testing.T) {
	isolate(t)
	t.Setenv("FACEGATE_TOKEN_TTL", "soon")
	_, err := Load(LoadOptions{})
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func validConfig() Config {
	return Config{
		SigningSecret:     testSecret,
		TokenTTL:          time.Hour,
		FaceTolerance:     0.5,
		ResetChallengeTTL: 24 * time.Hour,
		ResetURL:          "http://localhost:8080/reset-password",
		HTTP:              HTTPConfig{Addr: ":8080"},
		Log:               LogConfig{Format: "json", Level: "info"},
		Store:             StoreConfig{Driver: DriverPostgres},
		SMTP:              SMTPConfig{Host: "smtp.example.com", Port: 587},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"missing secret", func(c *Config) { c.SigningSecret = "" }, "signing_secret"},
		{"short secret", func(c *Config) { c.SigningSecret = "short" }, "signing_secret"},
		{"zero token ttl", func(c *Config) { c.TokenTTL = 0 }, "token_ttl"},
		{"negative reset ttl", func(c *Config) { c.ResetChallengeTTL = -time.Minute }, "reset_challenge_ttl"},
		{"zero tolerance", func(c *Config) { c.FaceTolerance = 0 }, "face_tolerance"},
		{"empty http addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"relative reset url", func(c *Config) { c.ResetURL = "reset" }, "reset_url"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }, "store.driver"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"no smtp outside dev", func(c *Config) { c.SMTP.Host = "" }, "smtp.host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "key", tt.key)
		})
	}
}

func TestConfig_Validate_DevModeRelaxes(t *testing.T) {
	cfg := validConfig()
	cfg.DevMode = true
	cfg.SigningSecret = "dev"
	cfg.SMTP.Host = ""
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Redacted(t *testing.T) {
	cfg := validConfig()
	cfg.SMTP.Password = "hunter2"
	cfg.Store.URL = "postgres://facegate:pgpass@db:5432/facegate"
	cfg.HTTP.CORSOrigins = []string{"https://app.example.com"}

	out := cfg.Redacted()

	assert.Equal(t, "[redacted]", out.SigningSecret)
	assert.Equal(t, "[redacted]", out.SMTP.Password)
	assert.NotContains(t, out.Store.URL, "pgpass")
	assert.Contains(t, out.Store.URL, "facegate:xxxxx@db:5432")

	out.HTTP.CORSOrigins[0] = "changed"
	assert.Equal(t, testSecret, cfg.SigningSecret, "original must be untouched")
	assert.Equal(t, "https://app.example.com", cfg.HTTP.CORSOrigins[0])
}

func TestConfig_Redacted_URLWithoutPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Store.URL = "redis://localhost:6379/0"
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redacted().Store.URL)
}

func TestLoad_SkipValidation(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("FACEGATE_SIGNING_SECRET", "")
	t.Setenv("FACEGATE_STORE__URL", "postgres://localhost/facegate")

	_, err := Load(LoadOptions{})
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")

	cfg, err := Load(LoadOptions{SkipValidation: true})
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/facegate", cfg.Store.URL)
}

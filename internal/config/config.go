// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

// Package config loads FaceGate configuration.
//
// Sources are layered, later ones winning: built-in defaults, a YAML file,
// a .env file together with FACEGATE_-prefixed environment variables, and
// finally command-line flags. Nested keys use a double underscore in the
// environment, so FACEGATE_STORE__DRIVER sets store.driver.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/facegate/facegate/internal/logging"
	"github.com/facegate/facegate/internal/xdg"
)

// EnvPrefix is the prefix of recognized environment variables.
const EnvPrefix = "FACEGATE_"

// MinSecretLength is the minimum signing secret size outside dev mode.
const MinSecretLength = 32

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverRedis    = "redis"
)

// Config is the effective FaceGate configuration.
type Config struct {
	SigningSecret     string        `koanf:"signing_secret" yaml:"signing_secret"`
	TokenTTL          time.Duration `koanf:"token_ttl" yaml:"token_ttl"`
	FaceTolerance     float64       `koanf:"face_tolerance" yaml:"face_tolerance"`
	ResetChallengeTTL time.Duration `koanf:"reset_challenge_ttl" yaml:"reset_challenge_ttl"`
	ResetURL          string        `koanf:"reset_url" yaml:"reset_url"`
	MetricsAddr       string        `koanf:"metrics_addr" yaml:"metrics_addr"`
	DevMode           bool          `koanf:"dev_mode" yaml:"dev_mode"`

	HTTP    HTTPConfig    `koanf:"http" yaml:"http"`
	Log     LogConfig     `koanf:"log" yaml:"log"`
	Store   StoreConfig   `koanf:"store" yaml:"store"`
	SMTP    SMTPConfig    `koanf:"smtp" yaml:"smtp"`
	Encoder EncoderConfig `koanf:"encoder" yaml:"encoder"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr"`
	CORSOrigins     []string      `koanf:"cors_origins" yaml:"cors_origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// StoreConfig selects and addresses the user store.
type StoreConfig struct {
	Driver   string `koanf:"driver" yaml:"driver"`
	URL      string `koanf:"url" yaml:"url"`
	Database string `koanf:"database" yaml:"database"`
	Prefix   string `koanf:"prefix" yaml:"prefix"`
}

// SMTPConfig addresses the mail relay.
type SMTPConfig struct {
	Host     string `koanf:"host" yaml:"host"`
	Port     int    `koanf:"port" yaml:"port"`
	Username string `koanf:"username" yaml:"username"`
	Password string `koanf:"password" yaml:"password"`
	From     string `koanf:"from" yaml:"from"`
}

// EncoderConfig addresses the face embedding service.
type EncoderConfig struct {
	URL     string        `koanf:"url" yaml:"url"`
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
}

// Defaults returns the built-in defaults as koanf keys.
func Defaults() map[string]any {
	return map[string]any{
		"signing_secret":        "",
		"token_ttl":             "1h",
		"face_tolerance":        0.5,
		"reset_challenge_ttl":   "24h",
		"reset_url":             "http://localhost:8080/reset-password",
		"metrics_addr":          "127.0.0.1:9100",
		"dev_mode":              false,
		"http.addr":             ":8080",
		"http.cors_origins":     []string{},
		"http.shutdown_timeout": "10s",
		"log.format":            "json",
		"log.level":             "info",
		"store.driver":          DriverPostgres,
		"store.url":             "",
		"store.database":        "facegate",
		"store.prefix":          "facegate",
		"smtp.host":             "",
		"smtp.port":             587,
		"smtp.username":         "",
		"smtp.password":         "",
		"smtp.from":             "noreply@facegate.local",
		"encoder.url":           "",
		"encoder.timeout":       "10s",
	}
}

// flagKeys maps command-line flag names to config keys. Flags not listed
// here are ignored by the loader.
var flagKeys = map[string]string{
	"signing-secret": "signing_secret",
	"token-ttl":      "token_ttl",
	"face-tolerance": "face_tolerance",
	"reset-url":      "reset_url",
	"metrics-addr":   "metrics_addr",
	"dev":            "dev_mode",
	"addr":           "http.addr",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"store-driver":   "store.driver",
	"store-url":      "store.url",
	"encoder-url":    "encoder.url",
}

// RegisterFlags adds the overridable settings to fs. Defaults shown in help
// come from Defaults; an unset flag never overrides other sources.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("signing-secret", "", "token signing secret")
	fs.Duration("token-ttl", time.Hour, "session token lifetime")
	fs.Float64("face-tolerance", 0.5, "maximum face distance accepted as a match")
	fs.String("reset-url", "http://localhost:8080/reset-password", "password reset page URL")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	fs.Bool("dev", false, "development mode: print mail instead of sending it")
	fs.String("addr", ":8080", "API listen address")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("store-driver", DriverPostgres, "user store driver (postgres, mongo, redis)")
	fs.String("store-url", "", "user store connection URL")
	fs.String("encoder-url", "", "face embedding service URL")
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// ConfigFile is an explicit YAML file. When empty the XDG default is
	// used if it exists.
	ConfigFile string
	// EnvFile is a dotenv file. A missing file is not an error.
	EnvFile string
	// Flags, when set, overrides every other source for flags the user set.
	Flags *pflag.FlagSet
	// SkipValidation returns the merged values without calling Validate.
	// Commands that need only part of the configuration use it.
	SkipValidation bool
}

// Load builds the configuration from all sources and, unless
// SkipValidation is set, validates it.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	path := opts.ConfigFile
	if path == "" {
		var err error
		path, err = xdg.DefaultConfigFile()
		if err != nil && !errors.Is(err, xdg.ErrNoHome) {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "xdg").Wrap(err)
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "dotenv").With("path", opts.EnvFile).Wrap(err)
		}
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKeyValue), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		p := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(p, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if opts.SkipValidation {
		return &cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKeyValue maps FACEGATE_STORE__DRIVER to store.driver. List values are
// comma separated.
func envKeyValue(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == "http.cors_origins" {
		var origins []string
		for _, o := range strings.Split(value, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		return key, origins
	}
	return key, value
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	switch {
	case c.SigningSecret == "":
		return invalid("signing_secret", "signing_secret is required")
	case !c.DevMode && len(c.SigningSecret) < MinSecretLength:
		return invalid("signing_secret", "signing_secret must be at least %d bytes", MinSecretLength)
	case c.TokenTTL <= 0:
		return invalid("token_ttl", "token_ttl must be positive")
	case c.ResetChallengeTTL <= 0:
		return invalid("reset_challenge_ttl", "reset_challenge_ttl must be positive")
	case c.FaceTolerance <= 0:
		return invalid("face_tolerance", "face_tolerance must be positive")
	case c.HTTP.Addr == "":
		return invalid("http.addr", "http.addr is required")
	}

	if _, err := url.ParseRequestURI(c.ResetURL); err != nil {
		return invalid("reset_url", "reset_url is not a valid URL")
	}

	switch c.Store.Driver {
	case DriverPostgres, DriverMongo, DriverRedis:
	default:
		return invalid("store.driver", "unknown store driver %q", c.Store.Driver)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	if !c.DevMode && c.SMTP.Host == "" {
		return invalid("smtp.host", "smtp.host is required unless dev_mode is set")
	}
	return nil
}

// Redacted returns a copy safe to print: secrets are masked and the store
// URL password is hidden.
func (c Config) Redacted() Config {
	const mask = "[redacted]"
	if c.SigningSecret != "" {
		c.SigningSecret = mask
	}
	if c.SMTP.Password != "" {
		c.SMTP.Password = mask
	}
	if u, err := url.Parse(c.Store.URL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			c.Store.URL = u.Redacted()
		}
	}
	c.HTTP.CORSOrigins = append([]string(nil), c.HTTP.CORSOrigins...)
	return c
}

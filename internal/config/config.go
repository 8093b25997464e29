// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

// Package config loads service configuration from defaults, a YAML file,
// environment variables and command-line flags, in that order of precedence.
package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/streambox/auth-service/internal/auth"
	"github.com/streambox/auth-service/internal/token"
)

// EnvPrefix prefixes every structured environment variable, e.g.
// STREAMBOX_JWT__ACCESS_TTL for jwt.access_ttl.
const EnvPrefix = "STREAMBOX_"

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// legacyEnv maps environment names used by earlier deployments to keys.
var legacyEnv = map[string]string{
	"JWT_SECRET":             "jwt.access_secret",
	"JWT_REFRESH_SECRET":     "jwt.refresh_secret",
	"JWT_EXPIRES_IN":         "jwt.access_ttl",
	"JWT_REFRESH_EXPIRES_IN": "jwt.refresh_ttl",
	"JWT_ISSUER":             "jwt.issuer",
	"JWT_AUDIENCE":           "jwt.audience",
	"DATABASE_URL":           "database_url",
}

// flagKeys maps command-line flag names to keys.
var flagKeys = map[string]string{
	"http-addr":    "http_addr",
	"metrics-addr": "metrics_addr",
	"storage":      "storage.backend",
	"database-url": "database_url",
	"auto-migrate": "auto_migrate",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// Config is the complete service configuration.
type Config struct {
	HTTPAddr    string        `koanf:"http_addr"`
	MetricsAddr string        `koanf:"metrics_addr"`
	DatabaseURL string        `koanf:"database_url"`
	AutoMigrate bool          `koanf:"auto_migrate"`
	Storage     StorageConfig `koanf:"storage"`
	JWT         JWTConfig     `koanf:"jwt"`
	Log         LogConfig     `koanf:"log"`
	Cleanup     CleanupConfig `koanf:"cleanup"`
	CORS        CORSConfig    `koanf:"cors"`
	Lockout     LockoutConfig `koanf:"lockout"`
}

// StorageConfig selects and tunes the storage backend.
type StorageConfig struct {
	Backend        string        `koanf:"backend"`
	QueryTimeout   time.Duration `koanf:"query_timeout"`
	MaxConns       int32         `koanf:"max_conns"`
	ConnectRetries uint64        `koanf:"connect_retries"`
}

// JWTConfig configures the token codec.
type JWTConfig struct {
	AccessSecret  string        `koanf:"access_secret"`
	RefreshSecret string        `koanf:"refresh_secret"`
	AccessTTL     time.Duration `koanf:"access_ttl"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl"`
	Issuer        string        `koanf:"issuer"`
	Audience      string        `koanf:"audience"`
	BearerScheme  string        `koanf:"bearer_scheme"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// CleanupConfig configures the expiry sweep.
type CleanupConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// CORSConfig lists the browser origins allowed to call the API. Entries
// are glob patterns such as https://*.streambox.tv.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// LockoutConfig configures failed-login lockout. A zero threshold disables it.
type LockoutConfig struct {
	Threshold int           `koanf:"threshold"`
	Duration  time.Duration `koanf:"duration"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() map[string]any {
	return map[string]any{
		"http_addr":               ":3000",
		"metrics_addr":            "127.0.0.1:9100",
		"auto_migrate":            false,
		"storage.backend":         BackendPostgres,
		"storage.query_timeout":   "5s",
		"storage.max_conns":       10,
		"storage.connect_retries": 5,
		"jwt.access_ttl":          "15m",
		"jwt.refresh_ttl":         "7d",
		"jwt.issuer":              "streambox-auth",
		"jwt.audience":            "streambox-users",
		"jwt.bearer_scheme":       token.DefaultBearerScheme,
		"log.format":              "json",
		"log.level":               "info",
		"cleanup.interval":        auth.DefaultSweepInterval.String(),
		"lockout.threshold":       auth.DefaultLockoutThreshold,
		"lockout.duration":        auth.DefaultLockoutDuration.String(),
	}
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", ":3000", "HTTP API listen address")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	fs.String("storage", BackendPostgres, "storage backend (postgres or memory)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.Bool("auto-migrate", false, "apply pending migrations on startup")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
}

// Load builds the configuration. path may be empty; fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				durationHook,
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
			TagName:          "koanf",
		},
	})
	if err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps an environment variable to a key, or "" to skip it.
func envKey(name, value string) (string, any) {
	if key, ok := legacyEnv[name]; ok {
		return key, value
	}
	if name == "PORT" && value != "" {
		return "http_addr", ":" + value
	}
	rest, ok := strings.CutPrefix(name, EnvPrefix)
	if !ok || rest == "" {
		return "", nil
	}
	key := strings.ToLower(strings.ReplaceAll(rest, "__", "."))
	if key == "cors.allowed_origins" {
		return key, splitList(value)
	}
	return key, value
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var durationType = reflect.TypeOf(time.Duration(0))

// durationHook decodes durations, accepting a trailing d for days.
func durationHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch from.Kind() {
	case reflect.String:
		return ParseDuration(data.(string))
	case reflect.Int, reflect.Int64, reflect.Float64:
		// Bare numbers are seconds.
		return ParseDuration(fmt.Sprint(data))
	default:
		return data, nil
	}
}

// ParseDuration parses a Go duration, a whole number of days ("7d") or a
// bare number of seconds ("900").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, oops.Code("CONFIG_DURATION_INVALID").Errorf("duration is empty")
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, oops.Code("CONFIG_DURATION_INVALID").With("value", s).Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, oops.Code("CONFIG_DURATION_INVALID").With("value", s).Wrap(err)
	}
	return d, nil
}

// Validate checks the configuration for startup errors.
func (c *Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
	}

	switch c.Storage.Backend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return invalid("database_url", "database_url (or DATABASE_URL) is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return invalid("storage.backend", "storage backend must be %q or %q, got %q", BackendPostgres, BackendMemory, c.Storage.Backend)
	}
	if c.HTTPAddr == "" {
		return invalid("http_addr", "http_addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if c.Storage.QueryTimeout < 0 {
		return invalid("storage.query_timeout", "query timeout cannot be negative")
	}
	if c.Cleanup.Interval <= 0 {
		return invalid("cleanup.interval", "cleanup interval must be positive")
	}
	if c.Lockout.Threshold < 0 || c.Lockout.Duration < 0 {
		return invalid("lockout", "lockout threshold and duration cannot be negative")
	}
	if _, err := token.NewJWTCodec(c.TokenConfig()); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "jwt").Wrap(err)
	}
	return nil
}

// TokenConfig returns the codec configuration.
func (c *Config) TokenConfig() token.Config {
	return token.Config{
		AccessSecret:  c.JWT.AccessSecret,
		RefreshSecret: c.JWT.RefreshSecret,
		AccessTTL:     c.JWT.AccessTTL,
		RefreshTTL:    c.JWT.RefreshTTL,
		Issuer:        c.JWT.Issuer,
		Audience:      c.JWT.Audience,
		BearerScheme:  c.JWT.BearerScheme,
	}
}

// LockoutPolicy returns the failed-login lockout policy.
func (c *Config) LockoutPolicy() auth.LockoutPolicy {
	return auth.LockoutPolicy{Threshold: c.Lockout.Threshold, Duration: c.Lockout.Duration}
}

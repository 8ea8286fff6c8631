// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

// Package config loads GymCRM settings. Values are layered: built-in
// defaults, then the YAML file, then GYMCRM_* environment variables, then
// command-line flags.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/gymcrm/gymcrm/internal/auth"
	"github.com/gymcrm/gymcrm/internal/token"
	"github.com/gymcrm/gymcrm/internal/xdg"
)

// EnvPrefix prefixes environment overrides: token.signing_key is read from
// GYMCRM_TOKEN_SIGNING_KEY.
const EnvPrefix = "GYMCRM_"

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config is the full application configuration.
type Config struct {
	Log      LogConfig      `koanf:"log" json:"log" yaml:"log"`
	Server   ServerConfig   `koanf:"server" json:"server" yaml:"server"`
	Store    StoreConfig    `koanf:"store" json:"store" yaml:"store"`
	Security SecurityConfig `koanf:"security" json:"security" yaml:"security"`
	Token    TokenConfig    `koanf:"token" json:"token" yaml:"token"`
}

// LogConfig selects log output.
type LogConfig struct {
	Format string `koanf:"format" json:"format" yaml:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// ServerConfig holds listen addresses.
type ServerConfig struct {
	GRPCAddr    string `koanf:"grpc_addr" json:"grpc_addr" yaml:"grpc_addr"`
	MetricsAddr string `koanf:"metrics_addr" json:"metrics_addr" yaml:"metrics_addr"`
	// TLS serves gRPC over TLS with certificates from CertsDir, generating
	// a private CA and server pair on first use.
	TLS      bool   `koanf:"tls" json:"tls" yaml:"tls"`
	CertsDir string `koanf:"certs_dir" json:"certs_dir" yaml:"certs_dir"`
}

// StoreConfig picks the user store backend.
type StoreConfig struct {
	Driver      string `koanf:"driver" json:"driver" yaml:"driver" jsonschema:"enum=postgres,enum=redis,enum=sqlite,enum=memory"`
	DatabaseURL string `koanf:"database_url" json:"database_url" yaml:"database_url"`
	RedisURL    string `koanf:"redis_url" json:"redis_url" yaml:"redis_url"`
	SQLitePath  string `koanf:"sqlite_path" json:"sqlite_path" yaml:"sqlite_path"`
}

// SecurityConfig covers lockout, hashing and generated passwords.
type SecurityConfig struct {
	MaxFailedAttempts int            `koanf:"max_failed_attempts" json:"max_failed_attempts" yaml:"max_failed_attempts" jsonschema:"minimum=1"`
	LockDuration      time.Duration  `koanf:"lock_duration" json:"lock_duration" yaml:"lock_duration"`
	Hash              HashConfig     `koanf:"hash" json:"hash" yaml:"hash"`
	Password          PasswordConfig `koanf:"password" json:"password" yaml:"password"`
}

// HashConfig selects the password hashing algorithm and its cost.
type HashConfig struct {
	Algorithm       string `koanf:"algorithm" json:"algorithm" yaml:"algorithm" jsonschema:"enum=argon2id,enum=bcrypt"`
	Argon2Time      uint32 `koanf:"argon2_time" json:"argon2_time" yaml:"argon2_time" jsonschema:"minimum=1"`
	Argon2MemoryKiB uint32 `koanf:"argon2_memory_kib" json:"argon2_memory_kib" yaml:"argon2_memory_kib" jsonschema:"minimum=1024"`
	Argon2Threads   uint8  `koanf:"argon2_threads" json:"argon2_threads" yaml:"argon2_threads" jsonschema:"minimum=1"`
	BcryptCost      int    `koanf:"bcrypt_cost" json:"bcrypt_cost" yaml:"bcrypt_cost" jsonschema:"minimum=4,maximum=31"`
}

// PasswordConfig shapes generated passwords.
type PasswordConfig struct {
	Length        int  `koanf:"length" json:"length" yaml:"length" jsonschema:"minimum=8,maximum=128"`
	RequireUpper  bool `koanf:"require_upper" json:"require_upper" yaml:"require_upper"`
	RequireLower  bool `koanf:"require_lower" json:"require_lower" yaml:"require_lower"`
	RequireDigit  bool `koanf:"require_digit" json:"require_digit" yaml:"require_digit"`
	RequireSymbol bool `koanf:"require_symbol" json:"require_symbol" yaml:"require_symbol"`
}

// TokenConfig configures bearer tokens.
type TokenConfig struct {
	TTL        time.Duration `koanf:"ttl" json:"ttl" yaml:"ttl"`
	Issuer     string        `koanf:"issuer" json:"issuer" yaml:"issuer"`
	SigningKey string        `koanf:"signing_key" json:"signing_key" yaml:"signing_key"`
}

// Default returns the built-in configuration. It has no signing key.
func Default() Config {
	argon := auth.DefaultArgon2Params()
	pw := auth.DefaultPasswordPolicy()
	return Config{
		Log: LogConfig{Format: "json", Level: "info"},
		Server: ServerConfig{
			GRPCAddr:    "127.0.0.1:9000",
			MetricsAddr: "127.0.0.1:9100",
			CertsDir:    filepath.Join(xdg.ConfigDir(), "certs"),
		},
		Store: StoreConfig{
			Driver:     DriverPostgres,
			RedisURL:   "redis://localhost:6379/0",
			SQLitePath: filepath.Join(xdg.DataDir(), "gymcrm.db"),
		},
		Security: SecurityConfig{
			MaxFailedAttempts: auth.DefaultLockoutThreshold,
			LockDuration:      auth.DefaultLockoutDuration,
			Hash: HashConfig{
				Algorithm:       auth.AlgorithmArgon2id,
				Argon2Time:      argon.Time,
				Argon2MemoryKiB: argon.Memory,
				Argon2Threads:   argon.Threads,
				BcryptCost:      auth.DefaultBcryptCost,
			},
			Password: PasswordConfig{
				Length:        pw.Length,
				RequireUpper:  pw.RequireUpper,
				RequireLower:  pw.RequireLower,
				RequireDigit:  pw.RequireDigit,
				RequireSymbol: pw.RequireSymbol,
			},
		},
		Token: TokenConfig{
			TTL:    token.DefaultTTL,
			Issuer: token.DefaultIssuer,
		},
	}
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"log-format":   "log.format",
	"log-level":    "log.level",
	"grpc-addr":    "server.grpc_addr",
	"metrics-addr": "server.metrics_addr",
	"tls":          "server.tls",
	"store":        "store.driver",
	"database-url": "store.database_url",
	"redis-url":    "store.redis_url",
	"sqlite-path":  "store.sqlite_path",
}

// defaultsProvider feeds Default() to koanf as YAML so every key exists
// before the other layers load.
type defaultsProvider struct{}

func (defaultsProvider) ReadBytes() ([]byte, error) {
	data, err := yamlv3.Marshal(Default())
	if err != nil {
		return nil, oops.Code("CONFIG_DEFAULTS_FAILED").Wrap(err)
	}
	return data, nil
}

func (defaultsProvider) Read() (map[string]any, error) {
	return nil, oops.Code("CONFIG_DEFAULTS_FAILED").Errorf("defaults provider only supports ReadBytes")
}

// Load builds the configuration. path may be empty to skip the file; flags
// may be nil. Only flags listed in FlagKeys are considered, and a flag
// overrides lower layers only when it was set explicitly.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(defaultsProvider{}, yaml.Parser()); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("layer", "defaults").Wrap(err)
	}

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
		if err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("layer", "file").With("path", path).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("layer", "file").With("path", path).Wrap(err)
		}
	}

	for _, key := range k.Keys() {
		if v, ok := os.LookupEnv(envName(key)); ok {
			if err := k.Set(key, v); err != nil {
				return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").With("key", key).Wrap(err)
			}
		}
	}
	if k.String("store.database_url") == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			if err := k.Set("store.database_url", v); err != nil {
				return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").Wrap(err)
			}
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := FlagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("layer", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("layer", "unmarshal").Wrap(err)
	}
	return cfg, nil
}

// envName maps "token.signing_key" to "GYMCRM_TOKEN_SIGNING_KEY".
func envName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Validate checks cross-field rules the schema cannot express. It does not
// require a signing key; see RequireSigningKey.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "required for the postgres driver")
		}
	case DriverRedis:
		if c.Store.RedisURL == "" {
			return invalid("store.redis_url", "required for the redis driver")
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return invalid("store.sqlite_path", "required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return invalid("store.driver", "must be postgres, redis, sqlite or memory")
	}

	if c.Server.TLS && c.Server.CertsDir == "" {
		return invalid("server.certs_dir", "required when tls is enabled")
	}

	if err := c.Lockout().Validate(); err != nil {
		return invalid("security", err.Error())
	}
	if err := c.PasswordPolicy().Validate(); err != nil {
		return invalid("security.password", err.Error())
	}
	if _, err := c.Hasher(); err != nil {
		return invalid("security.hash", err.Error())
	}
	if c.Token.TTL <= 0 {
		return invalid("token.ttl", "must be positive")
	}
	if c.Token.SigningKey != "" && len(c.Token.SigningKey) < token.MinKeyLength {
		return invalid("token.signing_key", "must be at least 32 bytes")
	}
	return nil
}

// RequireSigningKey fails when no signing key is configured.
func (c Config) RequireSigningKey() error {
	if c.Token.SigningKey == "" {
		return invalid("token.signing_key", "set token.signing_key or "+envName("token.signing_key"))
	}
	return nil
}

func invalid(field, msg string) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf("%s: %s", field, msg)
}

// Lockout returns the configured lockout policy.
func (c Config) Lockout() auth.LockoutPolicy {
	return auth.LockoutPolicy{
		Threshold: c.Security.MaxFailedAttempts,
		Duration:  c.Security.LockDuration,
	}
}

// PasswordPolicy returns the configured generated-password policy.
func (c Config) PasswordPolicy() auth.PasswordPolicy {
	p := c.Security.Password
	return auth.PasswordPolicy{
		Length:        p.Length,
		RequireUpper:  p.RequireUpper,
		RequireLower:  p.RequireLower,
		RequireDigit:  p.RequireDigit,
		RequireSymbol: p.RequireSymbol,
	}
}

// Hasher builds the configured password hasher.
func (c Config) Hasher() (*auth.MultiHasher, error) {
	h := c.Security.Hash
	//nolint:wrapcheck // constructor errors carry their own code
	return auth.NewMultiHasher(h.Algorithm, auth.Argon2Params{
		Time:    h.Argon2Time,
		Memory:  h.Argon2MemoryKiB,
		Threads: h.Argon2Threads,
	}, h.BcryptCost)
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Token.SigningKey != "" {
		c.Token.SigningKey = "[REDACTED]"
	}
	c.Store.DatabaseURL = redactURL(c.Store.DatabaseURL)
	c.Store.RedisURL = redactURL(c.Store.RedisURL)
	return c
}

// YAML renders the configuration. Secrets are not removed; call Redacted
// first when printing.
func (c Config) YAML() ([]byte, error) {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return nil, oops.Code("CONFIG_MARSHAL_FAILED").Wrap(err)
	}
	return data, nil
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[REDACTED]"
	}
	return u.Redacted()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package config loads gateway configuration from a YAML file, environment
// overrides for secrets, and command-line flags. Configuration is loaded
// once at startup, validated, and passed explicitly into component
// constructors; nothing reads it ambiently afterwards.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Supported store backends.
const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendMongo     = "mongo"
	BackendCassandra = "cassandra"
)

// Environment variables that override file-based secrets so they can stay
// out of config files in deployments.
const (
	EnvJWTSecret   = "AUTHGATE_JWT_SECRET"
	EnvMasterKey   = "AUTHGATE_MASTER_KEY"
	EnvDatabaseURL = "DATABASE_URL"
)

// Config is the full gateway configuration.
type Config struct {
	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	LogFormat   string `koanf:"log_format"`

	JWTSecret       string        `koanf:"jwt_secret"`
	AccessTokenTTL  time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL time.Duration `koanf:"refresh_token_ttl"`
	MasterKey       string        `koanf:"master_key"`

	RateLimit RateLimit `koanf:"rate_limit"`
	Hasher    Hasher    `koanf:"hasher"`
	Store     Store     `koanf:"store"`
}

// RateLimit tunes the admission-control gates. Login and creation use
// separate thresholds over one shared window duration.
type RateLimit struct {
	Window          time.Duration `koanf:"window"`
	LoginThreshold  int           `koanf:"login_threshold"`
	CreateThreshold int           `koanf:"create_threshold"`
}

// Hasher tunes the argon2id work factor. Zero values use the auth
// package defaults.
type Hasher struct {
	Memory  uint32 `koanf:"memory"`
	Time    uint32 `koanf:"time"`
	Threads uint8  `koanf:"threads"`
}

// Store selects and parameterizes the credential-store backend.
type Store struct {
	Backend           string        `koanf:"backend"`
	Timeout           time.Duration `koanf:"timeout"`
	PostgresDSN       string        `koanf:"postgres_dsn"`
	MongoURI          string        `koanf:"mongo_uri"`
	MongoDatabase     string        `koanf:"mongo_database"`
	CassandraHosts    []string      `koanf:"cassandra_hosts"`
	CassandraKeyspace string        `koanf:"cassandra_keyspace"`
}

// Default returns the configuration defaults. Secrets have no defaults;
// their absence fails Validate.
func Default() Config {
	return Config{
		ListenAddr:      ":8080",
		MetricsAddr:     "127.0.0.1:9100",
		LogFormat:       "json",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		RateLimit: RateLimit{
			Window:          time.Minute,
			LoginThreshold:  10,
			CreateThreshold: 5,
		},
		Store: Store{
			Backend:       BackendMemory,
			Timeout:       5 * time.Second,
			MongoDatabase: "authgate",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then flags (if any), then environment overrides for secrets.
// Flag names mirror config keys (dots for nesting).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "flags").
				Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").
			With("operation", "unmarshal").
			Wrap(err)
	}

	if v := os.Getenv(EnvJWTSecret); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv(EnvMasterKey); v != "" {
		cfg.MasterKey = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.Store.PostgresDSN = v
	}

	return &cfg, nil
}

// Validate checks that required configuration is present. Any error here
// is startup-fatal; missing configuration is never a per-request error.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("listen_addr is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if c.JWTSecret == "" {
		return oops.Code("CONFIG_INVALID").Errorf("jwt_secret is required (set %s or jwt_secret)", EnvJWTSecret)
	}
	if c.MasterKey == "" {
		return oops.Code("CONFIG_INVALID").Errorf("master_key is required (set %s or master_key)", EnvMasterKey)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("token TTLs must be positive")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return oops.Code("CONFIG_INVALID").Errorf("refresh_token_ttl must exceed access_token_ttl")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.LoginThreshold <= 0 || c.RateLimit.CreateThreshold <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("rate_limit window and thresholds must be positive")
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return oops.Code("CONFIG_INVALID").Errorf("store.postgres_dsn is required for the postgres backend (or set %s)", EnvDatabaseURL)
		}
	case BackendMongo:
		if c.Store.MongoURI == "" {
			return oops.Code("CONFIG_INVALID").Errorf("store.mongo_uri is required for the mongo backend")
		}
		if c.Store.MongoDatabase == "" {
			return oops.Code("CONFIG_INVALID").Errorf("store.mongo_database is required for the mongo backend")
		}
	case BackendCassandra:
		if len(c.Store.CassandraHosts) == 0 {
			return oops.Code("CONFIG_INVALID").Errorf("store.cassandra_hosts is required for the cassandra backend")
		}
		if c.Store.CassandraKeyspace == "" {
			return oops.Code("CONFIG_INVALID").Errorf("store.cassandra_keyspace is required for the cassandra backend")
		}
	default:
		return oops.Code("CONFIG_INVALID").Errorf("unknown store backend %q", c.Store.Backend)
	}

	return nil
}

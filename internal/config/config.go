// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads sqlab settings from defaults, the YAML file in the XDG
// config dir, SQLAB_ environment variables and command-line flags, in
// increasing order of precedence.
//
// DSNs may be set here, but the CLI stores them in the OS keychain; the
// config file written by Save never contains them.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"sqlab/engine/internal/dsn"
	apperrors "sqlab/engine/internal/errors"
	"sqlab/engine/internal/statement"
	"sqlab/engine/internal/tenant"
	"sqlab/engine/internal/xdg"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SQLAB_"

// Config holds every engine and CLI setting.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Engine   EngineConfig   `koanf:"engine"`
	Database DatabaseConfig `koanf:"database"`
	Pool     PoolConfig     `koanf:"pool"`
	Splitter SplitterConfig `koanf:"splitter"`
	History  HistoryConfig  `koanf:"history"`

	// File is the config file that was read, empty when none existed.
	File string `koanf:"-"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	File  string `koanf:"file"`
}

type EngineConfig struct {
	Backend string `koanf:"backend"`
}

type DatabaseConfig struct {
	AdminDSN  string `koanf:"admin_dsn"`
	RunnerDSN string `koanf:"runner_dsn"`
}

type PoolConfig struct {
	IdleTimeout      time.Duration `koanf:"idle_timeout"`
	ReapInterval     time.Duration `koanf:"reap_interval"`
	Autocommit       bool          `koanf:"autocommit"`
	StatementTimeout time.Duration `koanf:"statement_timeout"`
}

type SplitterConfig struct {
	StripLimit int `koanf:"strip_limit"`
}

type HistoryConfig struct {
	Path string `koanf:"path"`
	// Disabled turns result logging off.
	Disabled bool `koanf:"disabled"`
}

func defaults() map[string]any {
	return map[string]any{
		"log.level":              "info",
		"log.file":               "",
		"engine.backend":         "postgres",
		"pool.idle_timeout":      tenant.DefaultIdleTimeout.String(),
		"pool.reap_interval":     tenant.DefaultReapInterval.String(),
		"pool.autocommit":        true,
		"pool.statement_timeout": "0s",
		"splitter.strip_limit":   statement.StripLimit,
		"history.path":           "",
		"history.disabled":       false,
	}
}

// flagKeys maps flag names to config keys. Flags not listed are ignored.
var flagKeys = map[string]string{
	"log-level":         "log.level",
	"log-file":          "log.file",
	"backend":           "engine.backend",
	"admin-dsn":         "database.admin_dsn",
	"runner-dsn":        "database.runner_dsn",
	"idle-timeout":      "pool.idle_timeout",
	"autocommit":        "pool.autocommit",
	"statement-timeout": "pool.statement_timeout",
	"history-db":        "history.path",
	"no-history":        "history.disabled",
}

// envKey turns SQLAB_POOL_IDLE_TIMEOUT into pool.idle_timeout. SQLAB_DSN is
// shorthand for the admin DSN.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if key == "dsn" {
		return "database.admin_dsn"
	}
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + rest
}

// Load reads configuration. An empty path means the default file in the XDG
// config dir; a missing file is not an error. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		if p, err := xdg.ConfigFile(); err == nil {
			path = p
		}
	}
	used := ""
	if path != "" {
		_, statErr := os.Stat(path)
		switch {
		case statErr == nil:
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, apperrors.Wrap(apperrors.ConfigInvalid, "error reading config file "+path, err)
			}
			used = path
		case explicit:
			return nil, apperrors.Wrap(apperrors.ConfigInvalid, "config file "+path+" not found", statErr)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ConfigInvalid, "unable to decode config", err)
	}
	cfg.File = used

	if cfg.History.Path == "" && !cfg.History.Disabled {
		if p, err := xdg.HistoryFile(); err == nil {
			cfg.History.Path = p
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return apperrors.New(apperrors.ConfigInvalid, fmt.Sprintf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	if c.Pool.IdleTimeout <= 0 {
		return apperrors.New(apperrors.ConfigInvalid, "pool.idle_timeout must be positive")
	}
	if c.Pool.ReapInterval <= 0 {
		return apperrors.New(apperrors.ConfigInvalid, "pool.reap_interval must be positive")
	}
	if c.Pool.StatementTimeout < 0 {
		return apperrors.New(apperrors.ConfigInvalid, "pool.statement_timeout must not be negative")
	}
	if c.Splitter.StripLimit <= 0 {
		return apperrors.New(apperrors.ConfigInvalid, "splitter.strip_limit must be positive")
	}
	for key, value := range map[string]string{
		"database.admin_dsn":  c.Database.AdminDSN,
		"database.runner_dsn": c.Database.RunnerDSN,
	} {
		if value == "" {
			continue
		}
		if err := dsn.Validate(value); err != nil {
			return apperrors.Wrap(apperrors.ConfigInvalid, key, err)
		}
	}
	return nil
}

// Save writes the non-secret settings of c as YAML with 0600 permissions.
func Save(path string, c *Config) error {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(map[string]any{
		"log.level":              c.Log.Level,
		"log.file":               c.Log.File,
		"engine.backend":         c.Engine.Backend,
		"pool.idle_timeout":      c.Pool.IdleTimeout.String(),
		"pool.reap_interval":     c.Pool.ReapInterval.String(),
		"pool.autocommit":        c.Pool.Autocommit,
		"pool.statement_timeout": c.Pool.StatementTimeout.String(),
		"splitter.strip_limit":   c.Splitter.StripLimit,
		"history.path":           c.History.Path,
		"history.disabled":       c.History.Disabled,
	}, "."), nil); err != nil {
		return err
	}
	b, err := k.Marshal(yaml.Parser())
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// SecretStore reads DSNs kept outside the config file.
type SecretStore interface {
	LoadAdminDSN() (string, error)
	LoadRunnerDSN() (string, error)
}

// AdminDSN resolves the administrative DSN: config (including SQLAB_DSN and
// --admin-dsn), then DATABASE_URL, then the secret store.
func (c *Config) AdminDSN(store SecretStore) (string, error) {
	if c.Database.AdminDSN != "" {
		return c.Database.AdminDSN, nil
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v, nil
	}
	if store != nil {
		if v, err := store.LoadAdminDSN(); err == nil && v != "" {
			return v, nil
		}
	}
	return "", apperrors.New(apperrors.ConfigInvalid, "no admin DSN configured; run 'sqlab connect' or set SQLAB_DSN")
}

// RunnerDSN resolves the DSN tenant connections log in with, falling back to
// the admin DSN when no dedicated runner login is configured.
func (c *Config) RunnerDSN(store SecretStore) (string, error) {
	if c.Database.RunnerDSN != "" {
		return c.Database.RunnerDSN, nil
	}
	if store != nil {
		if v, err := store.LoadRunnerDSN(); err == nil && v != "" {
			return v, nil
		}
	}
	return c.AdminDSN(store)
}

// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

// Package config loads layered configuration: built-in defaults, then an
// optional YAML file, then ROLLCALL_* environment variables, highest last.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/jmorrell/rollcall/internal/database"
	"github.com/jmorrell/rollcall/internal/logging"
	"github.com/jmorrell/rollcall/internal/logsheet"
	"github.com/jmorrell/rollcall/internal/models"
	"github.com/jmorrell/rollcall/internal/quota"
	"github.com/jmorrell/rollcall/internal/queue"
	"github.com/jmorrell/rollcall/internal/source"
	syncengine "github.com/jmorrell/rollcall/internal/sync"
)

// DefaultConfigPaths lists where config files are searched, first hit wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/rollcall/config.yaml",
	"/etc/rollcall/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "ROLLCALL_CONFIG"

// envPrefix namespaces Rollcall's environment variables.
const envPrefix = "ROLLCALL_"

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig      `koanf:"server"`
	Database DatabaseConfig    `koanf:"database"`
	Quota    QuotaConfig       `koanf:"quota"`
	Queue    queue.Config      `koanf:"queue"`
	Sources  source.Config     `koanf:"sources"`
	LogSheet logsheet.Config   `koanf:"logsheet"`
	Sync     syncengine.Config `koanf:"sync"`
	Logging  LoggingConfig     `koanf:"logging"`
	API      APIConfig         `koanf:"api"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path         string        `koanf:"path"`
	Threads      int           `koanf:"threads" validate:"min=0"`
	QueryTimeout time.Duration `koanf:"query_timeout"`
}

// Database converts to the database package's config.
func (c DatabaseConfig) Database() database.Config {
	return database.Config{Path: c.Path, Threads: c.Threads, QueryTimeout: c.QueryTimeout}
}

// QuotaConfig holds quota store settings.
type QuotaConfig struct {
	// Path is the Badger directory for quota documents.
	Path string `koanf:"path"`

	RefreshInterval   time.Duration    `koanf:"refresh_interval"`
	TroupeDefaults    map[string]int64 `koanf:"troupe_defaults"`
	GlobalDefaults    map[string]int64 `koanf:"global_defaults"`
	RenewableCounters []string         `koanf:"renewable_counters"`
}

// Service converts to the quota package's config.
func (c QuotaConfig) Service() quota.Config {
	return quota.Config{
		TroupeDefaults:    c.TroupeDefaults,
		GlobalDefaults:    c.GlobalDefaults,
		RefreshInterval:   c.RefreshInterval,
		RenewableCounters: c.RenewableCounters,
	}
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Logging converts to the logging package's config.
func (c LoggingConfig) Logging() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format, Caller: c.Caller, Timestamp: true}
}

// APIConfig holds read API paging settings.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size" validate:"min=1"`
	MaxPageSize     int `koanf:"max_page_size" validate:"min=1"`
}

// defaultConfig returns built-in defaults; file and environment layers
// override them.
func defaultConfig() *Config {
	quotaDefaults := quota.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8484,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Database: DatabaseConfig{
			Path:         "/data/rollcall.duckdb",
			QueryTimeout: 30 * time.Second,
		},
		Quota: QuotaConfig{
			Path:              "/data/quota",
			RefreshInterval:   quotaDefaults.RefreshInterval,
			TroupeDefaults:    quotaDefaults.TroupeDefaults,
			GlobalDefaults:    quotaDefaults.GlobalDefaults,
			RenewableCounters: quotaDefaults.RenewableCounters,
		},
		Queue:    queue.DefaultConfig(),
		Sources:  source.DefaultConfig(),
		LogSheet: logsheet.DefaultConfig(),
		Sync:     syncengine.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
	}
}

// Load builds the configuration from defaults, the optional config file,
// and environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envTransform maps ROLLCALL_DATABASE_QUERY_TIMEOUT to
// database.query_timeout: the first underscore after the prefix separates
// the section, the rest is the key.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(s, "_", 2)
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + "." + parts[1]
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks structural constraints and cross-field consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api.max_page_size (%d) below api.default_page_size (%d)",
			c.API.MaxPageSize, c.API.DefaultPageSize)
	}
	if c.Queue.Enabled && !c.Queue.Embedded && c.Queue.URL == "" {
		return fmt.Errorf("queue.url required when the queue is enabled without an embedded server")
	}
	if c.LogSheet.Enabled && c.LogSheet.BaseURL == "" {
		return fmt.Errorf("logsheet.base_url required when the log sheet is enabled")
	}
	for _, name := range c.Quota.RenewableCounters {
		if _, ok := c.Quota.TroupeDefaults[name]; !ok {
			return fmt.Errorf("quota.renewable_counters names %q which has no troupe default", name)
		}
	}
	if _, ok := c.Quota.TroupeDefaults[models.CounterModifyOps]; !ok {
		return fmt.Errorf("quota.troupe_defaults must include %s", models.CounterModifyOps)
	}
	return nil
}

// Package config loads and validates the server configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (OBSYNC_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// The loaded Config is an immutable value passed through constructors; there
// are no process-wide configuration singletons.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/youngmoe/obsync/pkg/store"
)

const gib = int64(1073741824)

// Config represents the obsync server configuration.
type Config struct {
	// Host is the bind address in host:port form.
	Host string `mapstructure:"host" validate:"required" yaml:"host"`

	// SignupKey, when non-empty, must be presented on signup.
	SignupKey string `mapstructure:"signup_key" yaml:"signup_key"`

	// DataDir holds the database and the token signing secret.
	DataDir string `mapstructure:"data_dir" validate:"required" yaml:"data_dir"`

	// MaxStorageGB is the per-vault storage quota in gigabytes.
	MaxStorageGB int64 `mapstructure:"max_storage_gb" validate:"gt=0" yaml:"max_storage_gb"`

	// MaxSitesPerUser caps how many publish sites one user may own.
	MaxSitesPerUser int `mapstructure:"max_sites_per_user" validate:"gt=0" yaml:"max_sites_per_user"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Database configures the relational backend (SQLite or PostgreSQL).
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Sync configures the WebSocket session engine.
	Sync SyncConfig `mapstructure:"sync" yaml:"sync"`

	// Metrics controls the Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is "text" or "json".
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is "stdout", "stderr", or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// SyncConfig configures the session protocol engine.
type SyncConfig struct {
	// SnapshotOnConnect runs vault history compaction on every session
	// initialization. This mirrors the historical client-driven compaction
	// trigger; disable it to retain full version history across reconnects.
	SnapshotOnConnect *bool `mapstructure:"snapshot_on_connect" yaml:"snapshot_on_connect"`

	// MaxFrameBytes bounds a single text or binary frame.
	MaxFrameBytes int64 `mapstructure:"max_frame_bytes" validate:"gt=0" yaml:"max_frame_bytes"`

	// IdleTimeout closes sessions with no inbound frames for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gt=0" yaml:"idle_timeout"`
}

// SnapshotEnabled reports whether snapshot-on-connect is active.
func (c *SyncConfig) SnapshotEnabled() bool {
	return c.SnapshotOnConnect == nil || *c.SnapshotOnConnect
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled exposes /metrics on the main listener.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// MaxStorageBytes returns the per-vault quota in bytes.
func (c *Config) MaxStorageBytes() int64 {
	return c.MaxStorageGB * gib
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in missing configuration with default values.
func ApplyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "localhost:3000"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}
	if cfg.MaxStorageGB == 0 {
		cfg.MaxStorageGB = 10
	}
	if cfg.MaxSitesPerUser == 0 {
		cfg.MaxSitesPerUser = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Sync.MaxFrameBytes == 0 {
		cfg.Sync.MaxFrameBytes = 64 * 1024 * 1024
	}
	if cfg.Sync.IdleTimeout == 0 {
		cfg.Sync.IdleTimeout = 10 * time.Minute
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = store.DatabaseTypeSQLite
	}
	if cfg.Database.Type == store.DatabaseTypeSQLite && cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = filepath.Join(cfg.DataDir, "vaults.db")
	}
	cfg.Database.ApplyDefaults()
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}
	return cfg.Database.Validate()
}

// Load reads the configuration from the given path, applies environment
// overrides, defaults, and validation. An empty path falls back to
// ./config.yaml and then to pure defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found && configPath == "" {
		cfg := Default()
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// InitFile writes a default configuration file to path.
// Fails if the file exists unless force is set.
func InitFile(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}

	out, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to render default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	// OBSYNC_SIGNUP_KEY, OBSYNC_LOGGING_LEVEL, ...
	v.SetEnvPrefix("OBSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		databaseTypeDecodeHook(),
	)
}

// databaseTypeDecodeHook converts plain strings to store.DatabaseType.
func databaseTypeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(store.DatabaseType("")) {
			return data, nil
		}
		return store.DatabaseType(strings.ToLower(data.(string))), nil
	}
}

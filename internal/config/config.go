// Package config loads locknote's process configuration.
//
// Precedence, highest first: environment variables, the YAML config file,
// defaults. A .env file in the working directory is loaded into the
// environment first and never overrides variables that are already set.
// User preferences such as the auto-lock timeout are not configuration;
// they live encrypted inside the vault.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JackyZhang8/locknote/pkg/crypto"
	"github.com/JackyZhang8/locknote/pkg/notes"
	"github.com/JackyZhang8/locknote/pkg/session"
)

// Environment variables read by Load.
const (
	EnvDataDir   = "LOCKNOTE_DATA_DIR"
	EnvLogLevel  = "LOCKNOTE_LOG_LEVEL"
	EnvLogFormat = "LOCKNOTE_LOG_FORMAT"
)

// FileName is the config file looked up in the data directory.
const FileName = "config.yaml"

// Config is the process configuration.
type Config struct {
	DataDir string        `yaml:"data_dir" validate:"required"`
	Log     LogConfig     `yaml:"log"`
	KDF     KDFConfig     `yaml:"kdf"`
	History HistoryConfig `yaml:"history"`
	Session SessionConfig `yaml:"session"`
	Backup  BackupConfig  `yaml:"backup"`

	// Path is the config file that was read, empty when none existed.
	Path string `yaml:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// KDFConfig are the Argon2id parameters for new key wraps.
type KDFConfig struct {
	MemoryKiB   uint32 `yaml:"memory_kib" validate:"gte=8192,lte=4194304"`
	Iterations  uint32 `yaml:"iterations" validate:"gte=1,lte=64"`
	Parallelism uint8  `yaml:"parallelism" validate:"gte=1"`
}

type HistoryConfig struct {
	MaxVersions int           `yaml:"max_versions" validate:"gte=1,lte=1000"`
	MinInterval time.Duration `yaml:"min_interval" validate:"gte=0"`
}

type SessionConfig struct {
	Tick     time.Duration `yaml:"tick" validate:"gte=1s"`
	SleepGap time.Duration `yaml:"sleep_gap" validate:"gte=1s"`
}

type BackupConfig struct {
	// Dir defaults to <data_dir>/backups when empty.
	Dir string `yaml:"dir"`
	// Keep is the number of archives kept after a backup. 0 keeps all.
	Keep int `yaml:"keep" validate:"gte=0"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		DataDir: filepath.Join(home, ".locknote"),
		Log:     LogConfig{Level: "warn", Format: "console"},
		KDF: KDFConfig{
			MemoryKiB:   crypto.DefaultKDFParams.Memory,
			Iterations:  crypto.DefaultKDFParams.Iterations,
			Parallelism: crypto.DefaultKDFParams.Parallelism,
		},
		History: HistoryConfig{MaxVersions: notes.DefaultMaxVersions},
		Session: SessionConfig{Tick: session.DefaultTick, SleepGap: session.DefaultSleepGap},
		Backup:  BackupConfig{Keep: 0},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds the configuration. An empty path means FileName inside the
// data directory; a missing file there is not an error, a missing file at
// an explicit path is.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := Default()
	if dir := os.Getenv(EnvDataDir); dir != "" {
		cfg.DataDir = dir
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.DataDir, FileName)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
		cfg.Path = path
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}

// decode rejects unknown keys so a typo does not silently fall back to a
// default.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		cfg.DataDir = dir
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Log.Level = level
	}
	if format := os.Getenv(EnvLogFormat); format != "" {
		cfg.Log.Format = format
	}
}

// Validate checks every field against its range.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}
	return nil
}

// KDFParams returns the Argon2id parameters for new key wraps.
func (c *Config) KDFParams() crypto.KDFParams {
	return crypto.KDFParams{
		Memory:      c.KDF.MemoryKiB,
		Iterations:  c.KDF.Iterations,
		Parallelism: c.KDF.Parallelism,
	}
}

// BackupDir returns the backup directory, defaulting to <data_dir>/backups.
func (c *Config) BackupDir() string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(c.DataDir, "backups")
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

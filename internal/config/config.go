// Package config loads daemon settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "RENCFS_DESKTOP_"

// EnvConfigPath names the config file when no --config flag is given.
const EnvConfigPath = EnvPrefix + "CONFIG"

const appDir = "rencfs-desktop"

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreBolt   = "bbolt"
)

// ErrInvalid is returned for settings that cannot be used.
var ErrInvalid = errors.New("invalid config")

// Config holds the daemon settings.
type Config struct {
	ListenAddr        string        `yaml:"listen_addr"`
	DataDir           string        `yaml:"data_dir"`
	LogsDir           string        `yaml:"logs_dir"`
	Store             string        `yaml:"store"`
	RencfsBinary      string        `yaml:"rencfs_binary"`
	PasswordEnv       string        `yaml:"password_env"`
	GracePeriod       time.Duration `yaml:"grace_period"`
	StopTimeout       time.Duration `yaml:"stop_timeout"`
	UnmountCommand    []string      `yaml:"unmount_command"`
	LogLevel          string        `yaml:"log_level"`
	WebhookURL        string        `yaml:"webhook_url"`
	WebhookAuthHeader string        `yaml:"webhook_auth_header"`
	// Debug moves the data and logs directories under the temp dir.
	Debug bool `yaml:"debug"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		ListenAddr:   "127.0.0.1:50051",
		DataDir:      defaultDataDir(),
		Store:        StoreSQLite,
		RencfsBinary: "rencfs",
		PasswordEnv:  "RENCFS_PASSWORD",
		GracePeriod:  8 * time.Second,
		StopTimeout:  5 * time.Second,
		LogLevel:     "info",
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appDir)
	}
	return filepath.Join(os.TempDir(), appDir)
}

// DefaultPath is where the config file lives when neither the flag nor
// EnvConfigPath name one.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load builds a Config from defaults, the YAML file and the environment, in
// that order. When path is empty it falls back to EnvConfigPath and then
// DefaultPath. A missing file is not an error.
func Load(path string, lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if path == "" {
		if p, ok := lookup(EnvConfigPath); ok && p != "" {
			path = p
		} else {
			path = DefaultPath()
		}
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	str := map[string]*string{
		"LISTEN_ADDR":         &c.ListenAddr,
		"DATA_DIR":            &c.DataDir,
		"LOGS_DIR":            &c.LogsDir,
		"STORE":               &c.Store,
		"RENCFS_BINARY":       &c.RencfsBinary,
		"PASSWORD_ENV":        &c.PasswordEnv,
		"LOG_LEVEL":           &c.LogLevel,
		"WEBHOOK_URL":         &c.WebhookURL,
		"WEBHOOK_AUTH_HEADER": &c.WebhookAuthHeader,
	}
	for key, dst := range str {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	dur := map[string]*time.Duration{
		"GRACE_PERIOD": &c.GracePeriod,
		"STOP_TIMEOUT": &c.StopTimeout,
	}
	for key, dst := range dur {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s: %w", ErrInvalid, EnvPrefix, key, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup(EnvPrefix + "UNMOUNT_COMMAND"); ok {
		c.UnmountCommand = strings.Fields(v)
	}
	if v, ok := lookup(EnvPrefix + "DEBUG"); ok {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sDEBUG: %w", ErrInvalid, EnvPrefix, err)
		}
		c.Debug = debug
	}
	return nil
}

// Resolve applies dev mode, fills derived paths and validates the result.
// Call it after command-line flags have been applied.
func (c *Config) Resolve() error {
	if c.Debug {
		base := filepath.Join(os.TempDir(), appDir)
		c.DataDir = filepath.Join(base, "data")
		c.LogsDir = filepath.Join(base, "logs")
	}
	if c.LogsDir == "" {
		c.LogsDir = filepath.Join(c.DataDir, "logs")
	}
	switch c.Store {
	case StoreSQLite, StoreBolt:
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalid, c.Store)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr is required", ErrInvalid)
	}
	if c.GracePeriod < 0 || c.StopTimeout <= 0 {
		return fmt.Errorf("%w: grace_period must be >= 0 and stop_timeout > 0", ErrInvalid)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level: %w", ErrInvalid, err)
	}
	return level, nil
}

// StorePath is the database file for the configured backend.
func (c *Config) StorePath() string {
	if c.Store == StoreBolt {
		return filepath.Join(c.DataDir, "vaults.bolt")
	}
	return filepath.Join(c.DataDir, "vaults.sqlite")
}

// LockPath is the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "daemon.lock")
}

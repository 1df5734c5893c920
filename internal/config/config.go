// Package config loads runtime settings: defaults, then the TOML file, then
// OPTIX_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sandeepkv93/optixflow/internal/storage"
)

const (
	DriverCGO  = storage.DriverCGO
	DriverPure = storage.DriverPure
)

type Config struct {
	// DataDir holds the guest record, the session token and the default
	// database file.
	DataDir   string    `toml:"data-dir"`
	Database  Database  `toml:"database"`
	Log       Log       `toml:"log"`
	Notify    Notify    `toml:"notify"`
	Session   Session   `toml:"session"`
	Migration Migration `toml:"migration"`
	Scheduler Scheduler `toml:"scheduler"`
	Dashboard Dashboard `toml:"dashboard"`
}

type Database struct {
	Driver string `toml:"driver"`
	// Path defaults to optixflow.db inside DataDir.
	Path string `toml:"path"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// File receives logs; empty means stderr.
	File string `toml:"file"`
}

type Notify struct {
	UndoWindowSeconds int `toml:"undo-window-seconds"`
}

type Session struct {
	TTLHours int `toml:"ttl-hours"`
}

type Migration struct {
	RetainOnFailure bool `toml:"retain-on-failure"`
}

type Scheduler struct {
	Buffer int `toml:"buffer"`
}

type Dashboard struct {
	AvailableMinutes int `toml:"available-minutes"`
}

func Default() Config {
	return Config{
		DataDir:   defaultDataDir(),
		Database:  Database{Driver: DriverCGO},
		Log:       Log{Level: "info", Format: "text"},
		Notify:    Notify{UndoWindowSeconds: 4},
		Session:   Session{TTLHours: 24 * 7},
		Scheduler: Scheduler{Buffer: 64},
		Dashboard: Dashboard{AvailableMinutes: 60},
	}
}

func defaultDataDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); dir != "" {
		return filepath.Join(dir, "optixflow")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".optixflow"
	}
	return filepath.Join(home, ".local", "share", "optixflow")
}

// DefaultPath is $XDG_CONFIG_HOME/optixflow/config.toml, falling back to
// ~/.config.
func DefaultPath() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); dir != "" {
		return filepath.Join(dir, "optixflow", "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "optixflow", "config.toml"), nil
}

// Load reads path (DefaultPath when empty) over the defaults and applies the
// environment. A missing file is not an error.
func Load(path string) (Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	default:
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	cfg = FromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv applies OPTIX_* overrides to base. Unparseable values are ignored.
func FromEnv(base Config) Config {
	cfg := base
	if v, ok := getEnvString("OPTIX_DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := getEnvString("OPTIX_DB_DRIVER"); ok {
		cfg.Database.Driver = v
	}
	if v, ok := getEnvString("OPTIX_DB_PATH"); ok {
		cfg.Database.Path = v
	}
	if v, ok := getEnvString("OPTIX_LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := getEnvString("OPTIX_LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
	if v, ok := getEnvString("OPTIX_LOG_FILE"); ok {
		cfg.Log.File = v
	}
	if v, ok := getEnvInt("OPTIX_UNDO_WINDOW_SECONDS"); ok && v > 0 {
		cfg.Notify.UndoWindowSeconds = v
	}
	if v, ok := getEnvInt("OPTIX_SESSION_TTL_HOURS"); ok && v > 0 {
		cfg.Session.TTLHours = v
	}
	if v, ok := getEnvBool("OPTIX_MIGRATION_RETAIN_ON_FAILURE"); ok {
		cfg.Migration.RetainOnFailure = v
	}
	if v, ok := getEnvInt("OPTIX_SCHEDULER_BUFFER"); ok && v > 0 {
		cfg.Scheduler.Buffer = v
	}
	if v, ok := getEnvInt("OPTIX_AVAILABLE_MINUTES"); ok && v > 0 {
		cfg.Dashboard.AvailableMinutes = v
	}
	return cfg
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverCGO, DriverPure:
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: data dir is required")
	}
	return nil
}

// DatabasePath resolves the database file.
func (c Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, "optixflow.db")
}

func (c Config) UndoWindow() time.Duration {
	return time.Duration(c.Notify.UndoWindowSeconds) * time.Second
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLHours) * time.Hour
}

func getEnvString(name string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	return raw, raw != ""
}

func getEnvInt(name string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getEnvBool(name string) (bool, bool) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return false, false
	}
	switch raw {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}

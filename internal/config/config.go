package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config holds all costroll configuration.
type Config struct {
	General GeneralConfig `toml:"general"`
	Rollup  RollupConfig  `toml:"rollup"`
	Server  ServerConfig  `toml:"server"`
}

// GeneralConfig holds storage and display preferences.
type GeneralConfig struct {
	Database string `toml:"database,omitempty" env:"COSTROLL_DB"`
	Currency string `toml:"currency" env:"COSTROLL_CURRENCY"`
	Actor    string `toml:"actor,omitempty" env:"COSTROLL_ACTOR"`
}

// RollupConfig controls how the aggregator reads and attributes ledgers.
type RollupConfig struct {
	Attribution    string   `toml:"attribution" env:"COSTROLL_ATTRIBUTION"`
	SourceTimeout  Duration `toml:"source_timeout" env:"COSTROLL_SOURCE_TIMEOUT"`
	MaxAttempts    int      `toml:"max_attempts" env:"COSTROLL_MAX_ATTEMPTS"`
	InitialBackoff Duration `toml:"initial_backoff" env:"COSTROLL_INITIAL_BACKOFF"`
	BestEffort     bool     `toml:"best_effort" env:"COSTROLL_BEST_EFFORT"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string   `toml:"addr" env:"COSTROLL_ADDR"`
	RefreshInterval Duration `toml:"refresh_interval" env:"COSTROLL_REFRESH_INTERVAL"`
	EventsBuffer    int      `toml:"events_buffer" env:"COSTROLL_EVENTS_BUFFER"`
}

// Duration is a time.Duration written as "5s" in TOML and env vars.
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			Currency: "USD",
		},
		Rollup: RollupConfig{
			Attribution:    "primary",
			SourceTimeout:  Duration{5 * time.Second},
			MaxAttempts:    3,
			InitialBackoff: Duration{100 * time.Millisecond},
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8788",
			RefreshInterval: Duration{15 * time.Second},
			EventsBuffer:    200,
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "costroll")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "costroll")
}

// DataDir returns the XDG-compliant data directory holding the database.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "costroll")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "costroll")
}

// Path returns the full path to the config file.
func Path() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DatabasePath returns the configured database, or the default location.
func (c Config) DatabasePath() string {
	if c.General.Database != "" {
		return c.General.Database
	}
	return filepath.Join(DataDir(), "costroll.db")
}

// Load reads the config file, returning defaults if it doesn't exist,
// then applies environment overrides.
func Load() (Config, error) {
	return LoadFile(Path())
}

// LoadFile is Load for an explicit path.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays COSTROLL_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	return SaveFile(Path(), cfg)
}

// SaveFile is Save for an explicit path.
func SaveFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(Path())
	return err == nil
}

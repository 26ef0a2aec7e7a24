// Package config loads the cloud115 CLI configuration: the credential
// triplet plus transport tuning, from a TOML file with environment-variable
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk configuration schema.
type Config struct {
	UID  string `toml:"uid"`
	CID  string `toml:"cid"`
	SEID string `toml:"seid"`

	Network NetworkConfig `toml:"network"`
}

// NetworkConfig holds transport tuning. Zero values keep library defaults.
type NetworkConfig struct {
	UserAgent   string  `toml:"user_agent"`
	RateLimit   float64 `toml:"rate_limit"` // requests per second
	CallTimeout string  `toml:"call_timeout"`
	PageSize    int     `toml:"page_size"`
}

// configFileMode keeps the credential file private to the owner.
const configFileMode = 0o600

// DefaultPath returns the default config file location,
// $XDG_CONFIG_HOME/cloud115/config.toml.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}

	return filepath.Join(base, "cloud115", "config.toml")
}

// Load reads and parses a TOML config file. A missing file is not an error;
// it returns an empty Config so env overrides alone can supply credentials.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the config to path, creating parent directories as needed.
// The file is owner-only: it holds session cookies.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, configFileMode)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}

	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Resolve loads the config file and applies environment overrides:
// defaults -> file -> env. Env always wins, matching user expectations for
// one-off overrides without editing the file.
func Resolve(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg)

	return cfg, nil
}

package config

import "os"

// Environment variable names. The credential trio mirrors the config file
// keys; useful for CI and one-off runs without a config file on disk.
const (
	EnvUID       = "CLOUD115_UID"
	EnvCID       = "CLOUD115_CID"
	EnvSEID      = "CLOUD115_SEID"
	EnvConfig    = "CLOUD115_CONFIG"
	EnvUserAgent = "CLOUD115_USER_AGENT"
)

// applyEnv overlays environment variables onto cfg. Unset variables leave
// the existing values untouched.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvUID); v != "" {
		cfg.UID = v
	}

	if v := os.Getenv(EnvCID); v != "" {
		cfg.CID = v
	}

	if v := os.Getenv(EnvSEID); v != "" {
		cfg.SEID = v
	}

	if v := os.Getenv(EnvUserAgent); v != "" {
		cfg.Network.UserAgent = v
	}
}

// PathFromEnv returns the config path override from the environment, or
// empty when unset.
func PathFromEnv() string {
	return os.Getenv(EnvConfig)
}

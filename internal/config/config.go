// Package config loads application configuration from defaults, an
// optional .env file, and CIVICPULSE_* environment variables, in that
// order of precedence (environment wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env     string
	Server  ServerConfig
	Storage StorageConfig
	Cache   CacheConfig
	Agent   AgentConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type CacheConfig struct {
	// SummaryTTL is how long cached summaries stay fresh.
	SummaryTTL time.Duration
	// PurgeInterval is how often the server sweeps expired entries.
	PurgeInterval time.Duration
}

type AgentConfig struct {
	PollInterval time.Duration
}

func defaults() Config {
	return Config{
		Env: "development",
		Server: ServerConfig{
			Port: 4000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Cache: CacheConfig{
			SummaryTTL:    15 * time.Minute,
			PurgeInterval: 5 * time.Minute,
		},
		Agent: AgentConfig{
			PollInterval: 500 * time.Millisecond,
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "civicpulse")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".local", "share", "civicpulse")
}

// Load reads configuration. A .env file in the working directory is
// applied first if present; explicit environment variables always win.
func Load() (Config, error) {
	// Missing .env is fine; it only exists in development setups.
	_ = godotenv.Load()
	return loadFromEnv(os.Getenv)
}

func loadFromEnv(getenv func(string) string) (Config, error) {
	cfg := defaults()

	if v := getenv("CIVICPULSE_ENV"); v != "" {
		cfg.Env = v
	}
	if v := getenv("CIVICPULSE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid CIVICPULSE_PORT %q", v)
		}
		cfg.Server.Port = port
	}
	if v := getenv("CIVICPULSE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := getenv("CIVICPULSE_SUMMARY_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid CIVICPULSE_SUMMARY_TTL %q", v)
		}
		cfg.Cache.SummaryTTL = d
	}
	if v := getenv("CIVICPULSE_PURGE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid CIVICPULSE_PURGE_INTERVAL %q", v)
		}
		cfg.Cache.PurgeInterval = d
	}
	if v := getenv("CIVICPULSE_AGENT_POLL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid CIVICPULSE_AGENT_POLL %q", v)
		}
		cfg.Agent.PollInterval = d
	}

	return cfg, nil
}

// IsProduction reports whether the environment gates destructive
// operations like a database reset.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

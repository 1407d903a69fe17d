// Package config loads settings for the shopmate client and server.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// YAML file, an optional .env file, and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SHOPMATE_"

type Config struct {
	ServerURL   string `yaml:"server_url"`
	HouseholdID string `yaml:"household_id"`
	UserID      string `yaml:"user_id"`

	DBPath             string `yaml:"db_path"`
	SnapshotName       string `yaml:"snapshot_name"`
	SnapshotPassphrase string `yaml:"snapshot_passphrase"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Debounce          time.Duration `yaml:"debounce"`
	MaxRetries        int           `yaml:"max_retries"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffCap        time.Duration `yaml:"backoff_cap"`
	RecurringInterval time.Duration `yaml:"recurring_interval"`

	Port            string        `yaml:"port"`
	ServerDBPath    string        `yaml:"server_db_path"`
	SubscribeRate   int           `yaml:"subscribe_rate"`
	SubscribeWindow time.Duration `yaml:"subscribe_window"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ServerURL:         "http://localhost:8080",
		DBPath:            "shopmate.db",
		SnapshotName:      "shopmate-storage",
		LogLevel:          "info",
		LogFormat:         "text",
		Debounce:          250 * time.Millisecond,
		MaxRetries:        8,
		BackoffBase:       2 * time.Second,
		BackoffCap:        5 * time.Minute,
		RecurringInterval: time.Hour,
		Port:              "8080",
		ServerDBPath:      "shopmate-server.db",
		SubscribeRate:     30,
		SubscribeWindow:   time.Minute,
	}
}

// Load builds a Config. path names an optional YAML file; a missing .env is
// not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("SERVER_URL", &c.ServerURL)
	str("HOUSEHOLD", &c.HouseholdID)
	str("USER", &c.UserID)
	str("DB_PATH", &c.DBPath)
	str("SNAPSHOT_NAME", &c.SnapshotName)
	str("SNAPSHOT_PASSPHRASE", &c.SnapshotPassphrase)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("PORT", &c.Port)
	str("SERVER_DB_PATH", &c.ServerDBPath)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"DEBOUNCE", &c.Debounce},
		{"BACKOFF_BASE", &c.BackoffBase},
		{"BACKOFF_CAP", &c.BackoffCap},
		{"RECURRING_INTERVAL", &c.RecurringInterval},
		{"SUBSCRIBE_WINDOW", &c.SubscribeWindow},
	}
	for _, d := range durations {
		v, ok := lookup(envPrefix + d.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, d.key, err)
		}
		*d.dst = parsed
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_RETRIES", &c.MaxRetries},
		{"SUBSCRIBE_RATE", &c.SubscribeRate},
	}
	for _, n := range ints {
		v, ok := lookup(envPrefix + n.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, n.key, err)
		}
		*n.dst = parsed
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var problems []string
	if c.ServerURL == "" {
		problems = append(problems, "server_url is required")
	}
	if c.Debounce < 0 {
		problems = append(problems, "debounce must not be negative")
	}
	if c.MaxRetries < 1 {
		problems = append(problems, "max_retries must be at least 1")
	}
	if c.BackoffBase <= 0 {
		problems = append(problems, "backoff_base must be positive")
	}
	if c.BackoffCap < c.BackoffBase {
		problems = append(problems, "backoff_cap must be at least backoff_base")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q must be text or json", c.LogFormat))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the server's tunables. Intervals are plain milliseconds so
// the YAML stays readable; accessor methods convert to durations.
type Config struct {
	Port                int    `yaml:"port"`
	LogLevel            string `yaml:"log_level"`
	BroadcastIntervalMS int    `yaml:"broadcast_interval_ms"`
	SessionTimeoutMS    int    `yaml:"session_timeout_ms"`
	ReapIntervalMS      int    `yaml:"reap_interval_ms"`
	RateLimit           int    `yaml:"rate_limit"`
	RateWindowMS        int    `yaml:"rate_window_ms"`
}

// Load reads a config file, falling back to defaults for an empty path.
// Values absent from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Defaults returns the stock configuration: 10 Hz broadcast, 10 s liveness
// timeout swept at half that, and 15 messages per second per session.
func Defaults() Config {
	return Config{
		Port:                8080,
		LogLevel:            "info",
		BroadcastIntervalMS: 100,
		SessionTimeoutMS:    10000,
		ReapIntervalMS:      5000,
		RateLimit:           15,
		RateWindowMS:        1000,
	}
}

// Validate rejects values the relay cannot run with.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.BroadcastIntervalMS <= 0 {
		return fmt.Errorf("broadcast_interval_ms must be positive")
	}
	if c.SessionTimeoutMS <= 0 {
		return fmt.Errorf("session_timeout_ms must be positive")
	}
	if c.ReapIntervalMS <= 0 || c.ReapIntervalMS > c.SessionTimeoutMS {
		return fmt.Errorf("reap_interval_ms must be positive and no larger than session_timeout_ms")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive")
	}
	if c.RateWindowMS <= 0 {
		return fmt.Errorf("rate_window_ms must be positive")
	}
	return nil
}

func (c Config) BroadcastInterval() time.Duration {
	return time.Duration(c.BroadcastIntervalMS) * time.Millisecond
}

func (c Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMS) * time.Millisecond
}

func (c Config) ReapInterval() time.Duration {
	return time.Duration(c.ReapIntervalMS) * time.Millisecond
}

func (c Config) RateWindow() time.Duration {
	return time.Duration(c.RateWindowMS) * time.Millisecond
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, 100*time.Millisecond, cfg.BroadcastInterval())
	assert.Equal(t, 10*time.Second, cfg.SessionTimeout())
	assert.Equal(t, 5*time.Second, cfg.ReapInterval())
	assert.Equal(t, time.Second, cfg.RateWindow())
}

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	path := writeTempConfig(t, "port: 9000\nlog_level: debug\nrate_limit: 30\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30, cfg.RateLimit)

	// Everything else keeps its default.
	assert.Equal(t, 100, cfg.BroadcastIntervalMS)
	assert.Equal(t, 10000, cfg.SessionTimeoutMS)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeTempConfig(t, "port: [")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"port too low", func(c *Config) { c.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Port = 70000 }, true},
		{"zero broadcast interval", func(c *Config) { c.BroadcastIntervalMS = 0 }, true},
		{"zero session timeout", func(c *Config) { c.SessionTimeoutMS = 0 }, true},
		{"reap slower than timeout", func(c *Config) { c.ReapIntervalMS = 20000 }, true},
		{"zero rate limit", func(c *Config) { c.RateLimit = 0 }, true},
		{"zero rate window", func(c *Config) { c.RateWindowMS = 0 }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

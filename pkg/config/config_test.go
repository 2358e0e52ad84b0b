package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.ScanInterval)
	assert.Equal(t, 30*time.Second, cfg.ScanWindow)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, "local", cfg.DefaultUser)
	assert.Empty(t, cfg.Devices)
	require.NoError(t, cfg.Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
log_level: debug
scan_interval: 2m
scan_window: 20s
timezone_offset_minutes: -300
devices:
  - address: "AA:BB:CC:DD:EE:01"
    name: "bedroom cuff"
    profile: blood_pressure
    owner: alice
  - address: "aa-bb-cc-dd-ee-02"
    profile: environmental
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Minute, cfg.ScanInterval)
	assert.Equal(t, 20*time.Second, cfg.ScanWindow)
	assert.Equal(t, -300, cfg.TimezoneOffsetMinutes)
	// Untouched fields keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, "alice", cfg.Devices[0].Owner)
}

func TestParseRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad log level", "log_level: chatty"},
		{"window exceeds interval", "scan_interval: 10s\nscan_window: 30s"},
		{"bad profile", "devices:\n  - address: \"AA:BB:CC:DD:EE:01\"\n    profile: toaster"},
		{"empty address", "devices:\n  - address: \"\"\n    profile: environmental"},
		{"not yaml", ": ["},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	logger := cfg.NewLogger()
	assert.Equal(t, "debug", logger.GetLevel().String())
}

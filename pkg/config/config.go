// Package config loads and validates the hub configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/vitalink/internal/device"
	"github.com/srg/vitalink/internal/profile"
)

// Device is one pre-registered peripheral from the config file.
type Device struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
	Profile string `yaml:"profile"`
	Owner   string `yaml:"owner"`
}

// Config holds the hub configuration.
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	// AdapterID selects the HCI adapter on Linux ("hci0" is 0).
	AdapterID int `yaml:"adapter_id" default:"0"`

	ScanInterval time.Duration `yaml:"scan_interval" default:"45s"`
	ScanWindow   time.Duration `yaml:"scan_window" default:"30s"`
	PollInterval time.Duration `yaml:"poll_interval" default:"5s"`

	// TimezoneOffsetMinutes shifts UTC timestamps into local calendar
	// days for activity bucketing.
	TimezoneOffsetMinutes int    `yaml:"timezone_offset_minutes" default:"0"`
	DefaultUser           string `yaml:"default_user" default:"local"`

	// ListenAddr serves the websocket event feed. Empty disables it.
	ListenAddr string `yaml:"listen_addr" default:":8080"`

	// StorePath is the sqlite database file. Empty disables persistence.
	StorePath string `yaml:"store_path" default:"vitalink.db"`

	Devices []Device `yaml:"devices"`
}

// Default returns a Config with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path. Missing fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and the device list.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scan_interval must be positive, got %s", c.ScanInterval)
	}
	if c.ScanWindow <= 0 || c.ScanWindow > c.ScanInterval {
		return fmt.Errorf("scan_window must be positive and at most scan_interval, got %s", c.ScanWindow)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	for i, d := range c.Devices {
		if _, err := device.ParseAddress(d.Address); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
		if _, err := profile.ParseKind(d.Profile); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
	}
	return nil
}

// NewLogger creates a logger configured from LogLevel.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}

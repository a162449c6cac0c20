package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"tinygo.org/x/bluetooth"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string          `yaml:"log_level"`
	BLE      BLEConfig       `yaml:"ble"`
	Fixtures []FixtureConfig `yaml:"fixtures"`
}

// BLEConfig holds connection and discovery settings shared by all fixtures.
type BLEConfig struct {
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	SettleDelay        time.Duration `yaml:"settle_delay"`    // wait after connecting before the first write
	ConnectRetries     int           `yaml:"connect_retries"` // retries after a connect timeout
	RetryBackoffMax    time.Duration `yaml:"retry_backoff_max"`
	ScanTimeout        time.Duration `yaml:"scan_timeout"`
	NamePrefix         string        `yaml:"name_prefix"`
	MinCommandInterval time.Duration `yaml:"min_command_interval"`
}

// FixtureConfig identifies one physical light.
type FixtureConfig struct {
	Name      string `yaml:"name"`
	MAC       string `yaml:"mac"`        // MAC address (Linux) or CoreBluetooth UUID (macOS)
	WriteUUID string `yaml:"write_uuid"` // GATT write characteristic
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "godox-ble")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		BLE: BLEConfig{
			ConnectTimeout:     20 * time.Second,
			SettleDelay:        1 * time.Second,
			ConnectRetries:     0,
			RetryBackoffMax:    30 * time.Second,
			ScanTimeout:        10 * time.Second,
			NamePrefix:         "GD_LED",
			MinCommandInterval: 0,
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.BLE.ConnectTimeout <= 0 {
		return fmt.Errorf("ble.connect_timeout must be > 0")
	}
	if c.BLE.SettleDelay < 0 {
		return fmt.Errorf("ble.settle_delay must be >= 0")
	}
	if c.BLE.ConnectRetries < 0 {
		return fmt.Errorf("ble.connect_retries must be >= 0")
	}
	if c.BLE.RetryBackoffMax <= 0 {
		return fmt.Errorf("ble.retry_backoff_max must be > 0")
	}
	if c.BLE.ScanTimeout <= 0 {
		return fmt.Errorf("ble.scan_timeout must be > 0")
	}
	if c.BLE.MinCommandInterval < 0 {
		return fmt.Errorf("ble.min_command_interval must be >= 0")
	}

	seen := make(map[string]bool)
	for i, f := range c.Fixtures {
		if f.Name == "" {
			return fmt.Errorf("fixtures[%d].name must not be empty", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("fixtures[%d].name %q is duplicated", i, f.Name)
		}
		seen[f.Name] = true
		if strings.TrimSpace(f.MAC) == "" {
			return fmt.Errorf("fixtures[%d].mac must not be empty", i)
		}
		if _, err := bluetooth.ParseUUID(f.WriteUUID); err != nil {
			return fmt.Errorf("fixtures[%d].write_uuid %q is not a valid UUID", i, f.WriteUUID)
		}
	}

	return nil
}

// Fixture returns the fixture with the given name.
func (c *Config) Fixture(name string) (FixtureConfig, bool) {
	for _, f := range c.Fixtures {
		if f.Name == name {
			return f, true
		}
	}
	return FixtureConfig{}, false
}

// ParseLogLevel maps a log_level value to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# godox-ble configuration
#
# Add one entry per light under fixtures, for example:
#
# fixtures:
#   - name: key
#     mac: A4:C1:38:00:B6:0D
#     write_uuid: dad0215c-9754-4264-9174-4736e23ef493
#
# Run "godoxctl scan" to list nearby fixtures.

`

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there. It returns the path written, or "" if a config already
// existed.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(defaultHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Default()); err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

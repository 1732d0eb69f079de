// Package config loads timereports configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for the daemon and the command-line tools.
type Config struct {
	// DataDir holds the database, the alarm file and the sound asset.
	DataDir string `yaml:"data_dir"`
	// Storage selects where alarms are persisted: file or kv.
	Storage string `yaml:"storage"`
	// Listen is the loopback address of the lifecycle API.
	Listen string `yaml:"listen"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Platform     PlatformConfig     `yaml:"platform"`
	Notification NotificationConfig `yaml:"notification"`
	Poller       PollerConfig       `yaml:"poller"`

	// LockTTL bounds how long a crashed daemon keeps the instance lock.
	LockTTL         time.Duration `yaml:"lock_ttl"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PlatformConfig selects the native integrations used for wake-ups and delivery.
type PlatformConfig struct {
	// Capability is one of auto, systemd, timer, none.
	Capability string `yaml:"capability"`
	// Notifier is one of desktop, webhook, log.
	Notifier   string `yaml:"notifier"`
	WebhookURL string `yaml:"webhook_url,omitempty"`
	// SoundAsset defaults to <data_dir>/assets/alarm.mp3.
	SoundAsset string `yaml:"sound_asset,omitempty"`
	// FireCommand overrides the executable systemd timers start on expiry.
	FireCommand string `yaml:"fire_command,omitempty"`
}

// NotificationConfig holds the text/template sources for notification alarms.
type NotificationConfig struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

// PollerConfig controls the in-process minute poller.
type PollerConfig struct {
	Enabled bool `yaml:"enabled"`
}

const (
	StorageFile = "file"
	StorageKV   = "kv"
)

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:   defaultDataDir(),
		Storage:   StorageFile,
		Listen:    "127.0.0.1:7467",
		LogLevel:  "info",
		LogFormat: "text",
		Platform: PlatformConfig{
			Capability: "auto",
			Notifier:   "desktop",
		},
		Notification: NotificationConfig{
			Title: "Report alarm",
			Body:  "Time to send the {{.Time}} report.",
		},
		Poller:          PollerConfig{Enabled: true},
		LockTTL:         60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".timereports"
	}
	return filepath.Join(home, ".timereports")
}

// DefaultPath returns ~/.timereports/config.yaml.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// LoadConfig loads configuration from a YAML file and applies environment
// overrides. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfigFromHome loads configuration from ~/.timereports/config.yaml.
func LoadConfigFromHome() (*Config, error) {
	return LoadConfig(DefaultPath())
}

// SaveConfig saves configuration to a YAML file, creating parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TIMEREPORTS_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("TIMEREPORTS_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("TIMEREPORTS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TIMEREPORTS_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("TIMEREPORTS_CAPABILITY"); v != "" {
		c.Platform.Capability = v
	}
	if v := os.Getenv("TIMEREPORTS_WEBHOOK_URL"); v != "" {
		c.Platform.WebhookURL = v
		c.Platform.Notifier = "webhook"
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.Storage != StorageFile && c.Storage != StorageKV {
		return fmt.Errorf("invalid storage %q, must be: file or kv", c.Storage)
	}
	if c.Listen == "" {
		return fmt.Errorf("listen must be set")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log_format %q, must be: text or json", c.LogFormat)
	}

	validCapabilities := map[string]bool{
		"auto":    true,
		"systemd": true,
		"timer":   true,
		"none":    true,
	}
	if !validCapabilities[c.Platform.Capability] {
		return fmt.Errorf("invalid platform.capability %q, must be: auto, systemd, timer, or none", c.Platform.Capability)
	}

	switch c.Platform.Notifier {
	case "desktop", "log":
	case "webhook":
		if c.Platform.WebhookURL == "" {
			return fmt.Errorf("platform.webhook_url is required for the webhook notifier")
		}
	default:
		return fmt.Errorf("invalid platform.notifier %q, must be: desktop, webhook, or log", c.Platform.Notifier)
	}

	if c.LockTTL < 5*time.Second {
		return fmt.Errorf("lock_ttl must be at least 5s")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	return nil
}

// DBPath is the SQLite database inside the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "timereports.db")
}

// AlarmsPath is the JSON alarm file used by the file storage backend.
func (c *Config) AlarmsPath() string {
	return filepath.Join(c.DataDir, "alarms.json")
}

// SoundAsset resolves the audio file played by sound alarms.
func (c *Config) SoundAsset() string {
	if c.Platform.SoundAsset != "" {
		return c.Platform.SoundAsset
	}
	return filepath.Join(c.DataDir, "assets", "alarm.mp3")
}

// APIURL is the base URL clients use to reach the daemon.
func (c *Config) APIURL() string {
	if strings.HasPrefix(c.Listen, "http://") || strings.HasPrefix(c.Listen, "https://") {
		return c.Listen
	}
	return "http://" + c.Listen
}

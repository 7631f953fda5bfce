package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Camera types understood by the capture provider factory.
const (
	CameraCommand     = "command"      // external still-capture command
	CameraSnapshot    = "snapshot"     // HTTP snapshot URL (IP camera)
	CameraGPIOTrigger = "gpio_trigger" // DSLR triggered over GPIO, file picked up from a directory
	CameraStatic      = "static"       // fixed image file (dev/demo)
)

// ServerConfig describes the upload endpoint.
type ServerConfig struct {
	BaseURL   string `yaml:"base_url"`   // e.g., "http://10.0.2.2/ups/"
	Endpoint  string `yaml:"endpoint"`   // path relative to base_url (default "index.php")
	FieldName string `yaml:"field_name"` // multipart field holding the image (default "ruta")
	TimeoutMs int    `yaml:"timeout_ms"` // whole-request timeout (default 30000)
}

// CaptureConfig describes how images are produced and how often.
// Type selects a concrete camera implementation.
type CaptureConfig struct {
	Type       string `yaml:"type"`        // see Camera* constants
	IntervalMs int    `yaml:"interval_ms"` // wait between cycles (default 5000)
	OutputDir  string `yaml:"output_dir"`  // where the command camera writes files
	KeepFiles  bool   `yaml:"keep_files"`  // keep captured files on disk after upload

	Command     []string `yaml:"command"`      // argv; "{file}" is replaced by the output path
	SnapshotURL string   `yaml:"snapshot_url"` // for type "snapshot"
	ImagePath   string   `yaml:"image_path"`   // for type "static"

	FocusPin        int    `yaml:"focus_pin"`         // GPIO pin for FOCUS line
	ShutterPin      int    `yaml:"shutter_pin"`       // GPIO pin for SHUTTER line
	FocusDelayMs    int    `yaml:"focus_delay_ms"`    // autofocus delay (ms)
	ShutterDelayMs  int    `yaml:"shutter_delay_ms"`  // shutter hold time (ms)
	WatchDir        string `yaml:"watch_dir"`         // directory the tethered camera writes into
	SettleTimeoutMs int    `yaml:"settle_timeout_ms"` // max wait for the new file (ms)
}

// BackoffConfig enables a bounded exponential delay after failed cycles.
// Disabled by default: failures are retried every interval forever.
type BackoffConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxIntervalMs int  `yaml:"max_interval_ms"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Capture  CaptureConfig  `yaml:"capture"`
	Backoff  BackoffConfig  `yaml:"backoff"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// MaxConfigFileBytes caps the size of a config file accepted by Load.
const MaxConfigFileBytes = 64 * 1024

// ValidateConfigPath accepts only .yaml files located directly in a
// directory named "configs", without ".." segments.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path must not contain '..': %q", path)
		}
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension: %q", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must be in a configs/ directory: %q", path)
	}
	return nil
}

// Load reads a YAML file and returns the validated configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse unmarshals YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values with the defaults the upload server expects.
func (c *Config) ApplyDefaults() {
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://10.0.2.2/ups/"
	}
	if c.Server.Endpoint == "" {
		c.Server.Endpoint = "index.php"
	}
	if c.Server.FieldName == "" {
		c.Server.FieldName = "ruta"
	}
	if c.Server.TimeoutMs <= 0 {
		c.Server.TimeoutMs = 30000
	}

	if c.Capture.Type == "" {
		c.Capture.Type = CameraCommand
	}
	if c.Capture.IntervalMs <= 0 {
		c.Capture.IntervalMs = 5000
	}
	if c.Capture.OutputDir == "" {
		c.Capture.OutputDir = "captures"
	}
	if c.Capture.Type == CameraCommand && len(c.Capture.Command) == 0 {
		c.Capture.Command = []string{"libcamera-still", "-n", "-t", "1", "-o", "{file}"}
	}

	// Default values for trigger delays
	if c.Capture.FocusDelayMs <= 0 {
		c.Capture.FocusDelayMs = 500 // 500ms for autofocus
	}
	if c.Capture.ShutterDelayMs <= 0 {
		c.Capture.ShutterDelayMs = 200 // 200ms shutter hold
	}
	if c.Capture.SettleTimeoutMs <= 0 {
		c.Capture.SettleTimeoutMs = 10000
	}

	if c.Backoff.MaxIntervalMs <= 0 {
		c.Backoff.MaxIntervalMs = 60000
	}
}

// Validate checks the configuration after defaults have been applied.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.base_url must be http or https, got %q", c.Server.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("server.base_url has no host: %q", c.Server.BaseURL)
	}

	switch c.Capture.Type {
	case CameraCommand:
		if len(c.Capture.Command) == 0 {
			return fmt.Errorf("capture.command is required for type %q", CameraCommand)
		}
	case CameraSnapshot:
		if c.Capture.SnapshotURL == "" {
			return fmt.Errorf("capture.snapshot_url is required for type %q", CameraSnapshot)
		}
	case CameraGPIOTrigger:
		if c.Capture.FocusPin <= 0 || c.Capture.ShutterPin <= 0 {
			return fmt.Errorf("capture.focus_pin and capture.shutter_pin are required for type %q", CameraGPIOTrigger)
		}
		if c.Capture.FocusPin == c.Capture.ShutterPin {
			return fmt.Errorf("capture.focus_pin and capture.shutter_pin must differ, both are %d", c.Capture.FocusPin)
		}
		if c.Capture.WatchDir == "" {
			return fmt.Errorf("capture.watch_dir is required for type %q", CameraGPIOTrigger)
		}
	case CameraStatic:
		if c.Capture.ImagePath == "" {
			return fmt.Errorf("capture.image_path is required for type %q", CameraStatic)
		}
	default:
		return fmt.Errorf("unsupported capture.type: %s", c.Capture.Type)
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if c.Backoff.Enabled && c.Backoff.MaxIntervalMs < c.Capture.IntervalMs {
		return fmt.Errorf("backoff.max_interval_ms (%d) must be >= capture.interval_ms (%d)",
			c.Backoff.MaxIntervalMs, c.Capture.IntervalMs)
	}
	return nil
}

// Interval returns the wait between two capture-upload cycles.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Capture.IntervalMs) * time.Millisecond
}

// UploadTimeout returns the whole-request timeout for an upload.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutMs) * time.Millisecond
}

// MaxBackoff returns the upper bound of the backoff delay.
func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.Backoff.MaxIntervalMs) * time.Millisecond
}

// FocusDelay returns the autofocus delay duration.
func (c *Config) FocusDelay() time.Duration {
	return time.Duration(c.Capture.FocusDelayMs) * time.Millisecond
}

// ShutterDelay returns the shutter hold duration.
func (c *Config) ShutterDelay() time.Duration {
	return time.Duration(c.Capture.ShutterDelayMs) * time.Millisecond
}

// SettleTimeout returns how long the trigger camera waits for its file.
func (c *Config) SettleTimeout() time.Duration {
	return time.Duration(c.Capture.SettleTimeoutMs) * time.Millisecond
}

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cjeanneret/KatanaPush/internal/config"
	"github.com/cjeanneret/KatanaPush/internal/hw/camera"
	"github.com/cjeanneret/KatanaPush/internal/hw/gpio"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cfg
}

// ---------- validateCLIOverrides ----------

func TestValidateCLIOverrides_Valid(t *testing.T) {
	cases := []struct {
		name string
		o    cliOverrides
	}{
		{"none", cliOverrides{DebugLevel: -1}},
		{"url", cliOverrides{BaseURL: "http://192.168.1.10/ups/", DebugLevel: -1}},
		{"https", cliOverrides{BaseURL: "https://example.org/", DebugLevel: -1}},
		{"interval", cliOverrides{IntervalMs: 1000, DebugLevel: -1}},
		{"debug_min", cliOverrides{DebugLevel: 0}},
		{"debug_max", cliOverrides{DebugLevel: 4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateCLIOverrides(tc.o); err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
		})
	}
}

func TestValidateCLIOverrides_Invalid(t *testing.T) {
	cases := []struct {
		name string
		o    cliOverrides
	}{
		{"relative_url", cliOverrides{BaseURL: "ups/", DebugLevel: -1}},
		{"ftp_url", cliOverrides{BaseURL: "ftp://host/", DebugLevel: -1}},
		{"no_host", cliOverrides{BaseURL: "http://", DebugLevel: -1}},
		{"negative_interval", cliOverrides{IntervalMs: -5, DebugLevel: -1}},
		{"debug_too_high", cliOverrides{DebugLevel: 5}},
		{"debug_too_low", cliOverrides{DebugLevel: -2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateCLIOverrides(tc.o); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// ---------- applyOverrides ----------

func TestApplyOverrides_ZeroKeepsConfig(t *testing.T) {
	cfg := defaultConfig(t)
	applyOverrides(cfg, cliOverrides{DebugLevel: -1})

	if cfg.Server.BaseURL != "http://10.0.2.2/ups/" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Capture.IntervalMs != 5000 {
		t.Errorf("IntervalMs = %d, want 5000", cfg.Capture.IntervalMs)
	}
	if cfg.Defaults.DebugLevel != 0 {
		t.Errorf("DebugLevel = %d, want 0", cfg.Defaults.DebugLevel)
	}
}

func TestApplyOverrides_Applied(t *testing.T) {
	cfg := defaultConfig(t)
	applyOverrides(cfg, cliOverrides{
		BaseURL:    "http://192.168.1.10/ups/",
		IntervalMs: 1500,
		DebugLevel: 3,
	})

	if cfg.Server.BaseURL != "http://192.168.1.10/ups/" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Capture.IntervalMs != 1500 {
		t.Errorf("IntervalMs = %d, want 1500", cfg.Capture.IntervalMs)
	}
	if cfg.Defaults.DebugLevel != 3 {
		t.Errorf("DebugLevel = %d, want 3", cfg.Defaults.DebugLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config should stay valid: %v", err)
	}
}

// ---------- settingsFromConfig ----------

func TestSettingsFromConfig(t *testing.T) {
	cfg := defaultConfig(t)
	s := settingsFromConfig(cfg, "http://10.0.2.2/ups/index.php")

	if s.UploadURL != "http://10.0.2.2/ups/index.php" || s.FieldName != "ruta" {
		t.Errorf("settings = %+v", s)
	}
	if s.IntervalMs != 5000 || s.CameraType != config.CameraCommand {
		t.Errorf("settings = %+v", s)
	}
	if s.UploadTimeout != "30s" {
		t.Errorf("UploadTimeout = %q, want 30s", s.UploadTimeout)
	}
	if s.BackoffEnabled || s.MaxBackoffMs != 0 {
		t.Errorf("backoff should be off by default: %+v", s)
	}

	cfg.Backoff.Enabled = true
	if s := settingsFromConfig(cfg, ""); s.MaxBackoffMs != 60000 {
		t.Errorf("MaxBackoffMs = %d, want 60000", s.MaxBackoffMs)
	}
}

// ---------- newCameraFromConfig ----------

func TestNewCameraFromConfig_Types(t *testing.T) {
	dir := t.TempDir()
	g := &gpio.MockDriver{}

	cases := []struct {
		name  string
		setup func(c *config.CaptureConfig)
		check func(camera.Camera) bool
	}{
		{"command", func(c *config.CaptureConfig) {
			c.Type = config.CameraCommand
			c.OutputDir = dir
		}, func(cam camera.Camera) bool { _, ok := cam.(*camera.CommandCamera); return ok }},
		{"snapshot", func(c *config.CaptureConfig) {
			c.Type = config.CameraSnapshot
			c.SnapshotURL = "http://192.168.1.20/snap.jpg"
		}, func(cam camera.Camera) bool { _, ok := cam.(*camera.SnapshotCamera); return ok }},
		{"gpio_trigger", func(c *config.CaptureConfig) {
			c.Type = config.CameraGPIOTrigger
			c.FocusPin = 23
			c.ShutterPin = 24
			c.WatchDir = dir
		}, func(cam camera.Camera) bool { _, ok := cam.(*camera.TriggerCamera); return ok }},
		{"static", func(c *config.CaptureConfig) {
			c.Type = config.CameraStatic
			c.ImagePath = filepath.Join(dir, "x.jpg")
		}, func(cam camera.Camera) bool { _, ok := cam.(*camera.StaticCamera); return ok }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tc.setup(&cfg.Capture)
			cam, err := newCameraFromConfig(g, cfg)
			if err != nil {
				t.Fatalf("newCameraFromConfig: %v", err)
			}
			if !tc.check(cam) {
				t.Errorf("unexpected camera type %T", cam)
			}
		})
	}
}

func TestNewCameraFromConfig_Unsupported(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Capture.Type = "polaroid"
	if _, err := newCameraFromConfig(&gpio.MockDriver{}, cfg); err == nil {
		t.Error("expected error for unsupported camera type")
	}
}

// ---------- run ----------

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "configs")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_InvalidConfigPath(t *testing.T) {
	err := run(context.Background(), options{configPath: "../etc/passwd", overrides: cliOverrides{DebugLevel: -1}})
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Errorf("err = %v, want load config error", err)
	}
}

func TestRun_InvalidOverride(t *testing.T) {
	path := writeConfig(t, "capture:\n  type: static\n  image_path: x.jpg\n")
	err := run(context.Background(), options{configPath: path, overrides: cliOverrides{DebugLevel: 9}})
	if err == nil || !strings.Contains(err.Error(), "invalid CLI override") {
		t.Errorf("err = %v, want override error", err)
	}
}

func TestRun_OnceReportsCaptureFailure(t *testing.T) {
	path := writeConfig(t, "capture:\n  type: static\n  image_path: "+filepath.Join(t.TempDir(), "missing.jpg")+"\n")
	err := run(context.Background(), options{configPath: path, once: true, overrides: cliOverrides{DebugLevel: -1}})
	if err == nil || !strings.HasPrefix(err.Error(), "capture failed:") {
		t.Errorf("err = %v, want capture failure", err)
	}
}

func TestRun_HeadlessStopsOnCancel(t *testing.T) {
	path := writeConfig(t, "capture:\n  type: static\n  image_path: "+filepath.Join(t.TempDir(), "missing.jpg")+"\n  interval_ms: 10000\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(ctx, options{configPath: path, overrides: cliOverrides{DebugLevel: -1}}); err != nil {
		t.Errorf("run: %v", err)
	}
}

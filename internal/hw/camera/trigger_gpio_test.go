package camera

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/KatanaPush/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
// onWrite, if set, runs after each write (outside the lock).
type recordingDriver struct {
	mu       sync.Mutex
	calls    []gpioCall
	onWrite  func(pin int, level gpio.Level)
	failPin  int
	failWith error
}

type gpioCall struct {
	op    string
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.mu.Lock()
	if d.failWith != nil && pin == d.failPin && level == gpio.Low {
		d.mu.Unlock()
		return d.failWith
	}
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	hook := d.onWrite
	d.mu.Unlock()
	if hook != nil {
		hook(pin, level)
	}
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) writeCalls() []gpioCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

func (d *recordingDriver) reset() {
	d.mu.Lock()
	d.calls = nil
	d.mu.Unlock()
}

func testTriggerConfig(dir string) TriggerConfig {
	return TriggerConfig{
		FocusPin:      24,
		ShutterPin:    25,
		FocusDelay:    time.Microsecond,
		ShutterDelay:  time.Microsecond,
		WatchDir:      dir,
		SettleTimeout: 2 * time.Second,
	}
}

func TestTriggerCamera_PinsInitializedHigh(t *testing.T) {
	drv := &recordingDriver{}
	if _, err := NewTriggerCamera(drv, testTriggerConfig(t.TempDir())); err != nil {
		t.Fatalf("NewTriggerCamera: %v", err)
	}

	// After construction, both pins should have been set to HIGH (inactive)
	focusHigh := false
	shutterHigh := false
	for _, c := range drv.writeCalls() {
		if c.pin == 24 && c.level == gpio.High {
			focusHigh = true
		}
		if c.pin == 25 && c.level == gpio.High {
			shutterHigh = true
		}
	}
	if !focusHigh {
		t.Error("focus pin should be initialized to HIGH")
	}
	if !shutterHigh {
		t.Error("shutter pin should be initialized to HIGH")
	}
}

func TestTriggerCamera_ShootSequenceAndPickup(t *testing.T) {
	dir := t.TempDir()
	// A file already present must never be picked up.
	if err := os.WriteFile(filepath.Join(dir, "DSC_0001.JPG"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	drv := &recordingDriver{}
	cam, err := NewTriggerCamera(drv, testTriggerConfig(dir))
	if err != nil {
		t.Fatalf("NewTriggerCamera: %v", err)
	}
	drv.reset()

	// The "camera" writes its file when the shutter is pressed.
	drv.onWrite = func(pin int, level gpio.Level) {
		if pin == 25 && level == gpio.Low {
			_ = os.WriteFile(filepath.Join(dir, "DSC_0002.JPG"), []byte("new-image"), 0o644)
		}
	}

	img, err := cam.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if string(img.Data) != "new-image" {
		t.Errorf("data = %q, want new-image", img.Data)
	}
	if img.CapturedAt.IsZero() || img.Name != FileName(img.CapturedAt) {
		t.Errorf("name = %q, captured at %v", img.Name, img.CapturedAt)
	}

	expected := []struct {
		pin   int
		level gpio.Level
		desc  string
	}{
		{24, gpio.Low, "focus LOW (activate AF)"},
		{25, gpio.Low, "shutter LOW (trigger)"},
		{25, gpio.High, "shutter HIGH (release)"},
		{24, gpio.High, "focus HIGH (release)"},
	}
	writes := drv.writeCalls()
	if len(writes) != len(expected) {
		t.Fatalf("expected %d writes, got %d: %v", len(expected), len(writes), writes)
	}
	for i, exp := range expected {
		if writes[i].pin != exp.pin || writes[i].level != exp.level {
			t.Errorf("step %d (%s): pin=%d level=%v, want pin=%d level=%v",
				i, exp.desc, writes[i].pin, writes[i].level, exp.pin, exp.level)
		}
	}
}

func TestTriggerCamera_NoFileTimesOut(t *testing.T) {
	drv := &recordingDriver{}
	cfg := testTriggerConfig(t.TempDir())
	cfg.SettleTimeout = 250 * time.Millisecond
	cam, err := NewTriggerCamera(drv, cfg)
	if err != nil {
		t.Fatalf("NewTriggerCamera: %v", err)
	}

	if _, err := cam.Capture(context.Background()); err == nil {
		t.Error("expected timeout error, got nil")
	}
}

func TestTriggerCamera_ShutterFailureReleasesFocus(t *testing.T) {
	drv := &recordingDriver{}
	cam, err := NewTriggerCamera(drv, testTriggerConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("NewTriggerCamera: %v", err)
	}
	drv.reset()
	drv.failPin = 25
	drv.failWith = errors.New("bus error")

	if _, err := cam.Capture(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
	writes := drv.writeCalls()
	last := writes[len(writes)-1]
	if last.pin != 24 || last.level != gpio.High {
		t.Errorf("last write = %+v, want focus released HIGH", last)
	}
}

func TestTriggerCamera_MissingWatchDir(t *testing.T) {
	drv := &recordingDriver{}
	cam, err := NewTriggerCamera(drv, testTriggerConfig(filepath.Join(t.TempDir(), "absent")))
	if err != nil {
		t.Fatalf("NewTriggerCamera: %v", err)
	}
	if _, err := cam.Capture(context.Background()); err == nil {
		t.Error("expected error for missing watch dir, got nil")
	}
	if len(drv.writeCalls()) != 2 {
		t.Errorf("shutter should not fire when the watch dir is unreadable, writes=%v", drv.writeCalls())
	}
}

func TestTriggerCamera_ImplementsCamera(t *testing.T) {
	drv := &recordingDriver{}
	cam, _ := NewTriggerCamera(drv, testTriggerConfig(t.TempDir()))
	var _ Camera = cam // compile-time check
}

package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cjeanneret/KatanaPush/internal/debug"
	"github.com/cjeanneret/KatanaPush/internal/hw/gpio"
)

// pollInterval is how often the watch directory is scanned.
const pollInterval = 100 * time.Millisecond

// TriggerCamera fires a DSLR through its wired remote connector and picks up
// the JPEG the camera (or its tethering/Wi-Fi card) drops into a directory.
//
// Remote connector (e.g. Nikon D90 3-pin):
// - GND: connected to Raspberry Pi ground
// - FOCUS: autofocus (activate by setting to LOW)
// - SHUTTER: trigger (activate by setting to LOW)
//
// Trigger sequence:
// 1. FOCUS to LOW (activates autofocus)
// 2. Wait for autofocus to complete
// 3. SHUTTER to LOW (triggers the shot)
// 4. Hold for a moment
// 5. Set SHUTTER and FOCUS back to HIGH
// 6. Wait for a new, size-stable JPEG in the watch directory
type TriggerCamera struct {
	gpio          gpio.Driver
	focusPin      int
	shutterPin    int
	focusDelay    time.Duration // time for autofocus
	shutterDelay  time.Duration // shutter hold time
	watchDir      string
	settleTimeout time.Duration
}

// TriggerConfig holds the wiring and timings of a TriggerCamera.
type TriggerConfig struct {
	FocusPin      int
	ShutterPin    int
	FocusDelay    time.Duration
	ShutterDelay  time.Duration
	WatchDir      string
	SettleTimeout time.Duration
}

// NewTriggerCamera configures both lines as outputs, idle HIGH.
func NewTriggerCamera(g gpio.Driver, cfg TriggerConfig) (*TriggerCamera, error) {
	for _, pin := range []int{cfg.FocusPin, cfg.ShutterPin} {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup pin %d: %w", pin, err)
		}
		// By default, lines are HIGH (inactive)
		if err := g.WritePin(pin, gpio.High); err != nil {
			return nil, fmt.Errorf("idle pin %d: %w", pin, err)
		}
	}
	return &TriggerCamera{
		gpio:          g,
		focusPin:      cfg.FocusPin,
		shutterPin:    cfg.ShutterPin,
		focusDelay:    cfg.FocusDelay,
		shutterDelay:  cfg.ShutterDelay,
		watchDir:      cfg.WatchDir,
		settleTimeout: cfg.SettleTimeout,
	}, nil
}

// Capture fires the shutter and waits for the resulting file.
func (t *TriggerCamera) Capture(ctx context.Context) (*Image, error) {
	before, err := listJPEGs(t.watchDir)
	if err != nil {
		return nil, err
	}

	at := time.Now()
	if err := t.shoot(); err != nil {
		return nil, err
	}

	path, err := t.awaitNewFile(ctx, before)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	debug.Verbose("Camera: picked up %s (%d bytes)", path, len(data))
	return NewImage(data, at), nil
}

// shoot runs the FOCUS -> wait for AF -> SHUTTER -> hold -> release sequence.
func (t *TriggerCamera) shoot() error {
	debug.Printf("Camera: triggering shot (focus=%d, shutter=%d)", t.focusPin, t.shutterPin)

	debug.Verbose("Camera: activating FOCUS (pin %d -> LOW)", t.focusPin)
	if err := t.gpio.WritePin(t.focusPin, gpio.Low); err != nil {
		return fmt.Errorf("focus: %w", err)
	}
	time.Sleep(t.focusDelay)

	debug.Verbose("Camera: activating SHUTTER (pin %d -> LOW)", t.shutterPin)
	if err := t.gpio.WritePin(t.shutterPin, gpio.Low); err != nil {
		// Release FOCUS on error
		_ = t.gpio.WritePin(t.focusPin, gpio.High)
		return fmt.Errorf("shutter: %w", err)
	}
	time.Sleep(t.shutterDelay)

	if err := t.gpio.WritePin(t.shutterPin, gpio.High); err != nil {
		return fmt.Errorf("release shutter: %w", err)
	}
	if err := t.gpio.WritePin(t.focusPin, gpio.High); err != nil {
		return fmt.Errorf("release focus: %w", err)
	}
	return nil
}

// awaitNewFile polls the watch directory until a JPEG absent from before
// shows up with the same non-zero size on two consecutive scans.
func (t *TriggerCamera) awaitNewFile(ctx context.Context, before map[string]int64) (string, error) {
	deadline := time.NewTimer(t.settleTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastSize := map[string]int64{}
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("no new image in %s after %v", t.watchDir, t.settleTimeout)
		case <-ticker.C:
		}

		now, err := listJPEGs(t.watchDir)
		if err != nil {
			return "", err
		}
		var fresh []string
		for name, size := range now {
			if _, seen := before[name]; seen || size == 0 {
				continue
			}
			if prev, ok := lastSize[name]; ok && prev == size {
				fresh = append(fresh, name)
			}
			lastSize[name] = size
		}
		if len(fresh) > 0 {
			sort.Strings(fresh)
			return filepath.Join(t.watchDir, fresh[len(fresh)-1]), nil
		}
	}
}

// listJPEGs returns the regular .jpg/.jpeg files of dir with their sizes.
func listJPEGs(dir string) (map[string]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list watch directory: %w", err)
	}
	out := make(map[string]int64, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".jpg" && ext != ".jpeg" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out[e.Name()] = info.Size()
	}
	return out, nil
}

package debug

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestInit_OffProducesNoOutput(t *testing.T) {
	Init(LevelOff)
	defer Init(LevelOff)

	var buf bytes.Buffer
	SetOutput(&buf) // no-op while off
	Info("hidden %d", 1)
	if buf.Len() != 0 {
		t.Errorf("expected no output at level 0, got %q", buf.String())
	}
	if IsEnabled(LevelInfo) {
		t.Error("IsEnabled(LevelInfo) should be false at level 0")
	}
}

func TestInit_LevelGating(t *testing.T) {
	Init(LevelLive)
	defer Init(LevelOff)

	var buf bytes.Buffer
	SetOutput(&buf)

	Info("info line")
	Captured("20261019-101500.jpg", 42)
	Verbose("verbose line")
	GPIO("WritePin", 24, true)

	out := buf.String()
	if !strings.Contains(out, "info line") {
		t.Errorf("missing info line in %q", out)
	}
	if !strings.Contains(out, "20261019-101500.jpg") {
		t.Errorf("missing capture line in %q", out)
	}
	if strings.Contains(out, "verbose line") {
		t.Errorf("verbose line should be filtered at level 2: %q", out)
	}
	if strings.Contains(out, "WritePin") {
		t.Errorf("gpio trace should be filtered at level 2: %q", out)
	}
	if Level() != LevelLive {
		t.Errorf("Level() = %d, want %d", Level(), LevelLive)
	}
}

func TestLevelOneHelpers(t *testing.T) {
	Init(LevelInfo)
	defer Init(LevelOff)

	var buf bytes.Buffer
	SetOutput(&buf)

	Summary("KatanaPush ready")
	Error(errors.New("lens cap on"))
	Live("cycle %d uploaded", 7)

	out := buf.String()
	if !strings.Contains(out, "KatanaPush ready") {
		t.Errorf("missing summary in %q", out)
	}
	if !strings.Contains(out, "lens cap on") || !strings.Contains(out, "level=error") {
		t.Errorf("missing error entry in %q", out)
	}
	if strings.Contains(out, "cycle 7 uploaded") {
		t.Errorf("live line should be filtered at level 1: %q", out)
	}
	if !IsEnabled(LevelInfo) || IsEnabled(LevelLive) {
		t.Errorf("IsEnabled wrong at level %d", Level())
	}
}

func TestLive_ShownAtLevelTwo(t *testing.T) {
	Init(LevelLive)
	defer Init(LevelOff)

	var buf bytes.Buffer
	SetOutput(&buf)
	Live("cycle %d uploaded", 7)

	if !strings.Contains(buf.String(), "cycle 7 uploaded") {
		t.Errorf("missing live line in %q", buf.String())
	}
}

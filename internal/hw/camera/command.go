package camera

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cjeanneret/KatanaPush/internal/debug"
)

// FilePlaceholder in a command's arguments is replaced by the output path.
const FilePlaceholder = "{file}"

// CommandCamera runs an external still-capture tool (libcamera-still,
// fswebcam, gphoto2...) that writes a JPEG to a path, then reads the file.
type CommandCamera struct {
	args      []string
	outputDir string
	keepFiles bool
	now       func() time.Time
}

// NewCommandCamera creates a command camera. args[0] is the program; every
// argument containing "{file}" gets the output path substituted.
func NewCommandCamera(args []string, outputDir string, keepFiles bool) (*CommandCamera, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("command camera: empty command")
	}
	found := false
	for _, a := range args {
		if strings.Contains(a, FilePlaceholder) {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("command camera: no %s placeholder in %v", FilePlaceholder, args)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &CommandCamera{
		args:      args,
		outputDir: outputDir,
		keepFiles: keepFiles,
		now:       time.Now,
	}, nil
}

// Capture runs the command and returns the file it produced.
func (c *CommandCamera) Capture(ctx context.Context) (*Image, error) {
	at := c.now()
	path := filepath.Join(c.outputDir, FileName(at))

	argv := make([]string, len(c.args))
	for i, a := range c.args {
		argv[i] = strings.ReplaceAll(a, FilePlaceholder, path)
	}

	debug.Verbose("Camera: running %v", argv)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", filepath.Base(argv[0]), err, msg)
		}
		return nil, fmt.Errorf("%s: %w", filepath.Base(argv[0]), err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	if !c.keepFiles {
		if err := os.Remove(path); err != nil {
			debug.Warn(err, "could not remove capture file")
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("capture %s is empty", filepath.Base(path))
	}
	return NewImage(data, at), nil
}

package camera

import (
	"context"
	"fmt"
	"os"
	"time"
)

// StaticCamera returns the same image file on every capture.
// Used for development and for exercising the upload server without hardware.
type StaticCamera struct {
	path string
	now  func() time.Time
}

func NewStaticCamera(path string) *StaticCamera {
	return &StaticCamera{path: path, now: time.Now}
}

func (s *StaticCamera) Capture(ctx context.Context) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image %s is empty", s.path)
	}
	return NewImage(data, s.now()), nil
}

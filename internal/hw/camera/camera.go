package camera

import (
	"context"
	"time"
)

// ContentType is the content type cameras are asked for.
const ContentType = "image/jpeg"

// fileNameLayout names captures after their timestamp, e.g. 20261019-101500.jpg.
const fileNameLayout = "20060102-150405"

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract "camera", regardless of how it's controlled
// (GPIO, external command, network snapshot, etc.).
type Camera interface {
	// Capture takes one still image. It blocks until the image is
	// available or the capture failed.
	Capture(ctx context.Context) (*Image, error)
}

// Image is one captured still.
type Image struct {
	Data       []byte
	Name       string // file-name hint for the upload
	CapturedAt time.Time
}

// NewImage wraps captured bytes with a timestamp file name.
func NewImage(data []byte, at time.Time) *Image {
	return &Image{
		Data:       data,
		Name:       FileName(at),
		CapturedAt: at,
	}
}

// FileName returns the capture file name for the given time.
func FileName(at time.Time) string {
	return at.Format(fileNameLayout) + ".jpg"
}

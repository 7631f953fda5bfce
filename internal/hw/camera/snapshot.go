package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cjeanneret/KatanaPush/internal/debug"
)

// maxSnapshotBytes bounds a snapshot body (8MB).
const maxSnapshotBytes = 8 << 20

// SnapshotCamera fetches a still from an IP camera's snapshot URL.
type SnapshotCamera struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewSnapshotCamera creates a snapshot camera using the given HTTP client.
func NewSnapshotCamera(url string, client *http.Client) *SnapshotCamera {
	return &SnapshotCamera{url: url, client: client, now: time.Now}
}

// Capture performs one GET on the snapshot URL.
func (s *SnapshotCamera) Capture(ctx context.Context) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	req.Header.Set("Accept", ContentType)

	debug.Verbose("Camera: GET %s", s.url)
	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot: HTTP %d %s", res.StatusCode, http.StatusText(res.StatusCode))
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxSnapshotBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("snapshot: empty body")
	}
	if len(data) > maxSnapshotBytes {
		return nil, fmt.Errorf("snapshot: larger than %d bytes", maxSnapshotBytes)
	}
	return NewImage(data, s.now()), nil
}

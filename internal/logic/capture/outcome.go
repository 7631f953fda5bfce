package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/KatanaPush/internal/upload"
)

// CaptureError is a failed capture. The loop reports it and moves on.
type CaptureError struct {
	Reason string
	Err    error
}

func (e *CaptureError) Error() string { return "capture failed: " + e.Reason }
func (e *CaptureError) Unwrap() error { return e.Err }

// TransportError is a failed upload. The loop reports it and moves on.
type TransportError struct {
	Reason string
	Err    error
}

func (e *TransportError) Error() string { return "upload failed: " + e.Reason }
func (e *TransportError) Unwrap() error { return e.Err }

// Cycle results, as reported by Outcome.Result.
const (
	ResultOK           = "ok"
	ResultCaptureError = "capture_error"
	ResultUploadError  = "upload_error"
)

// Outcome is the record of one capture-upload cycle.
type Outcome struct {
	Cycle     uint64
	ID        string
	StartedAt time.Time
	Duration  time.Duration

	ImageName  string
	ImageBytes int
	CapturedAt time.Time // zero if the capture failed

	Response *upload.Response // nil unless the upload succeeded
	Err      error            // *CaptureError or *TransportError, nil on success
	Status   string
}

// OK reports whether the cycle ended with a server response.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Response != nil
}

// Result classifies the outcome by its typed failure.
func (o Outcome) Result() string {
	var ce *CaptureError
	var te *TransportError
	switch {
	case errors.As(o.Err, &ce):
		return ResultCaptureError
	case errors.As(o.Err, &te):
		return ResultUploadError
	default:
		return ResultOK
	}
}

// FormatResponse renders the server's four fields in their fixed order.
func FormatResponse(r *upload.Response) string {
	return fmt.Sprintf("Message: %s, File path: %s, Command: %s, Distance: %s",
		r.Message, r.FilePath, r.Command, r.Distance)
}

// statusOf renders the human-readable status of an outcome.
func statusOf(o Outcome) string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return FormatResponse(o.Response)
}

func captureFailure(err error) *CaptureError {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce
	}
	return &CaptureError{Reason: err.Error(), Err: err}
}

func transportFailure(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return &TransportError{Reason: err.Error(), Err: err}
}

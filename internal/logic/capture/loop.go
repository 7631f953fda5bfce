package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/KatanaPush/internal/debug"
	"github.com/cjeanneret/KatanaPush/internal/hw/camera"
	"github.com/cjeanneret/KatanaPush/internal/upload"
)

// DefaultInterval is the wait between two cycles when none is configured.
const DefaultInterval = 5 * time.Second

// State is the lifecycle state of a Loop.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrBusy is returned by RunOnce while the loop is not idle.
	ErrBusy = errors.New("capture loop is busy")
	// ErrClosed is returned by RunOnce after Close.
	ErrClosed = errors.New("capture loop is closed")
)

// Backoff stretches the wait after consecutive failed cycles:
// Interval * 2^failures, capped at Max. Disabled by default.
type Backoff struct {
	Enabled bool
	Max     time.Duration
}

// LoopParams defines the timing of a Loop.
type LoopParams struct {
	Interval time.Duration // wait between cycles (DefaultInterval if zero)
	Backoff  Backoff
}

// Loop periodically captures an image and uploads it, publishing the
// server's answer (or the failure) as a status string.
//
// Stopping is cooperative: Stop never aborts a capture or an upload in
// flight; the loop halts at the next scheduling boundary. At most one cycle
// runs at any time.
type Loop struct {
	camera    camera.Camera
	transport upload.Transport
	interval  time.Duration
	backoff   Backoff

	// ctx is cancelled only by Close (process shutdown).
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	stop     chan struct{} // closed by Stop
	done     chan struct{} // closed when the run returns to idle
	observer func(status string)
	onResult func(Outcome)
	status   string
	cycles   uint64
	failures int
	last     *Outcome
}

// NewLoop creates an idle loop.
func NewLoop(cam camera.Camera, tr upload.Transport, p LoopParams) *Loop {
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.Backoff.Max < p.Interval {
		p.Backoff.Max = p.Interval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		camera:    cam,
		transport: tr,
		interval:  p.Interval,
		backoff:   p.Backoff,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the loop if it is idle; the first capture fires immediately.
// It is a no-op while running or stopping, and after Close.
func (l *Loop) Start() {
	stop, done, err := l.begin()
	if err != nil {
		debug.Verbose("Loop: start ignored: %v (%s)", err, l.State())
		return
	}
	debug.Info("Loop: started (interval %v)", l.interval)
	loopRunning.Set(1)
	go l.run(stop, done)
}

// Stop asks a running loop to halt at its next scheduling boundary.
// It is a no-op unless the loop is running.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateRunning {
		return
	}
	l.state = StateStopping
	close(l.stop)
	debug.Info("Loop: stopping")
}

// Close stops the loop and cancels any capture or upload in flight.
// The loop cannot be started again. Used at process shutdown only.
func (l *Loop) Close() {
	l.Stop()
	l.cancel()
}

// Wait blocks until the loop is idle or ctx is done.
func (l *Loop) Wait(ctx context.Context) error {
	l.mu.Lock()
	if l.state == StateIdle {
		l.mu.Unlock()
		return nil
	}
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnStatusChanged registers the observer called after every cycle with the
// latest status. It replaces any previous observer; nil unregisters.
func (l *Loop) OnStatusChanged(fn func(status string)) {
	l.mu.Lock()
	l.observer = fn
	l.mu.Unlock()
}

// OnOutcome registers a second observer receiving the full record of every
// cycle, for callers that branch on the typed failure. nil unregisters.
func (l *Loop) OnOutcome(fn func(Outcome)) {
	l.mu.Lock()
	l.onResult = fn
	l.mu.Unlock()
}

// Status returns the latest published status ("" before the first cycle).
func (l *Loop) Status() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Interval returns the configured wait between cycles.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// RunOnce runs a single cycle synchronously. It fails with ErrBusy unless
// the loop is idle, and with ErrClosed after Close. While it runs the loop
// reports itself as running.
func (l *Loop) RunOnce(ctx context.Context) (Outcome, error) {
	_, done, err := l.begin()
	if err != nil {
		return Outcome{}, err
	}
	defer l.finish(done)
	return l.cycle(ctx), nil
}

// begin moves Idle -> Running and allocates the run's channels.
func (l *Loop) begin() (stop, done chan struct{}, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return nil, nil, ErrClosed
	}
	if l.state != StateIdle {
		return nil, nil, ErrBusy
	}
	l.state = StateRunning
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	return l.stop, l.done, nil
}

// finish returns the loop to idle and releases waiters.
func (l *Loop) finish(done chan struct{}) {
	l.mu.Lock()
	l.state = StateIdle
	l.stop = nil
	l.done = nil
	l.mu.Unlock()
	close(done)
}

func (l *Loop) run(stop, done chan struct{}) {
	defer func() {
		loopRunning.Set(0)
		l.finish(done)
		debug.Info("Loop: stopped")
	}()

	for {
		if l.State() != StateRunning {
			return
		}

		l.cycle(l.ctx)

		// The wait is a cancellation point: a Stop issued during the cycle
		// (or during the wait) ends the loop without sleeping it out.
		timer := time.NewTimer(l.delay())
		select {
		case <-stop:
			timer.Stop()
			return
		case <-l.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// cycle captures, uploads and publishes exactly once.
func (l *Loop) cycle(ctx context.Context) Outcome {
	l.mu.Lock()
	l.cycles++
	n := l.cycles
	l.mu.Unlock()

	out := Outcome{Cycle: n, ID: uuid.NewString(), StartedAt: time.Now()}
	debug.Cycle(n, out.ID)

	img, err := l.camera.Capture(ctx)
	switch {
	case err != nil:
		out.Err = captureFailure(err)
	case img == nil || len(img.Data) == 0:
		out.Err = &CaptureError{Reason: "empty image"}
	default:
		out.ImageName = img.Name
		out.ImageBytes = len(img.Data)
		out.CapturedAt = img.CapturedAt
		debug.Captured(img.Name, len(img.Data))

		resp, err := l.transport.Upload(ctx, img.Data, img.Name)
		switch {
		case err != nil:
			out.Err = transportFailure(err)
		case resp == nil:
			out.Err = &TransportError{Reason: "empty response"}
		default:
			out.Response = resp
		}
	}

	out.Duration = time.Since(out.StartedAt)
	out.Status = statusOf(out)
	l.publish(out)
	return out
}

// publish records the outcome and notifies the observer outside the lock.
func (l *Loop) publish(out Outcome) {
	l.mu.Lock()
	l.status = out.Status
	l.last = &out
	if out.Err != nil {
		l.failures++
	} else {
		l.failures = 0
	}
	fn, onResult := l.observer, l.onResult
	l.mu.Unlock()

	observe(out)
	if out.Err != nil {
		debug.Error(out.Err)
	} else {
		debug.Live("Loop: cycle %d uploaded %s (%d bytes) in %v",
			out.Cycle, out.ImageName, out.ImageBytes, out.Duration.Round(time.Millisecond))
	}
	debug.Published(out.Status)
	if fn != nil {
		fn(out.Status)
	}
	if onResult != nil {
		onResult(out)
	}
}

// delay returns the wait before the next cycle.
func (l *Loop) delay() time.Duration {
	if !l.backoff.Enabled {
		return l.interval
	}
	l.mu.Lock()
	failures := l.failures
	l.mu.Unlock()
	return backoffDelay(l.interval, l.backoff.Max, failures)
}

// backoffDelay returns interval * 2^failures, capped at max.
func backoffDelay(interval, max time.Duration, failures int) time.Duration {
	d := interval
	for i := 0; i < failures; i++ {
		if d >= max/2 {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}

// Snapshot is a point-in-time view of the loop for the web layer.
type Snapshot struct {
	State               string `json:"state"`
	Status              string `json:"status"`
	Result              string `json:"result,omitempty"` // see Result* constants
	Cycles              uint64 `json:"cycles"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Interval            string `json:"interval"`
	LastCycleID         string `json:"last_cycle_id,omitempty"`
	LastCycleAt         string `json:"last_cycle_at,omitempty"`
	LastCaptureAt       string `json:"last_capture_at,omitempty"`
	LastError           string `json:"last_error,omitempty"`
}

// Snapshot returns the current state and latest status.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Snapshot{
		State:               l.state.String(),
		Status:              l.status,
		Cycles:              l.cycles,
		ConsecutiveFailures: l.failures,
		Interval:            l.interval.String(),
	}
	if l.last != nil {
		s.Result = l.last.Result()
		s.LastCycleID = l.last.ID
		s.LastCycleAt = l.last.StartedAt.Format(time.RFC3339)
		if !l.last.CapturedAt.IsZero() {
			s.LastCaptureAt = l.last.CapturedAt.Format(time.RFC3339)
		}
		if l.last.Err != nil {
			s.LastError = l.last.Err.Error()
		}
	}
	return s
}

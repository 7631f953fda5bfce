package web

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/KatanaPush/internal/logic/capture"
)

// Event levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
	LevelLog   = "log"
)

// StatusEvent is a single message pushed to SSE and websocket clients.
type StatusEvent struct {
	Time  string `json:"t"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg"`
}

// StatusBroadcaster fans out status messages to every connected client.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a broadcaster with no subscribers.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel of JSON-encoded events and its cleanup function.
// The caller must call cleanup when the client goes away.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of subscribers.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends {"t":...,"l":level,"msg":msg} to all subscribers.
// Slow clients miss messages rather than block the sender.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	data, err := json.Marshal(newEvent(level, msg))
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// PublishOutcome broadcasts the status of a finished cycle, flagged as an
// error when the capture or the upload failed.
func (b *StatusBroadcaster) PublishOutcome(o capture.Outcome) {
	b.Broadcast(outcomeLevel(o.Err), o.Status)
}

func newEvent(level, msg string) StatusEvent {
	return StatusEvent{
		Time:  time.Now().Format(time.RFC3339),
		Level: level,
		Msg:   msg,
	}
}

func outcomeLevel(err error) string {
	var ce *capture.CaptureError
	var te *capture.TransportError
	if errors.As(err, &ce) || errors.As(err, &te) {
		return LevelError
	}
	return LevelInfo
}

// resultLevel maps a snapshot result onto an event level.
func resultLevel(result string) string {
	switch result {
	case capture.ResultCaptureError, capture.ResultUploadError:
		return LevelError
	default:
		return LevelInfo
	}
}

// BroadcastWriter adapts the broadcaster to io.Writer so log output can be
// mirrored to the browser.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.Broadcast(LevelLog, msg)
	}
	return len(p), nil
}

package web

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/KatanaPush/internal/debug"
	"github.com/cjeanneret/KatanaPush/internal/logic/capture"
)

const (
	heartbeatInterval = 30 * time.Second

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// Controller is the part of the capture loop the HTTP layer drives.
type Controller interface {
	Start()
	Stop()
	State() capture.State
	Snapshot() capture.Snapshot
}

// Settings is the effective, non-secret configuration shown by GET /config.
type Settings struct {
	UploadURL      string `json:"upload_url"`
	FieldName      string `json:"field_name"`
	UploadTimeout  string `json:"upload_timeout"`
	CameraType     string `json:"camera_type"`
	IntervalMs     int    `json:"interval_ms"`
	BackoffEnabled bool   `json:"backoff_enabled"`
	MaxBackoffMs   int    `json:"max_backoff_ms,omitempty"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Loop        Controller
	Settings    Settings
	staticFS    fs.FS
	upgrader    websocket.Upgrader
}

// NewHandlers creates handlers with the given dependencies.
// If loop is nil, the control routes answer 503.
func NewHandlers(broadcaster *StatusBroadcaster, loop Controller, settings Settings, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Loop:        loop,
		Settings:    settings,
		staticFS:    staticFS,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string, state capture.State) {
	writeJSON(w, code, map[string]string{"error": msg, "state": state.String()})
}

// ServeIndex serves the main HTML page.
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleConfig returns the effective settings as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Settings)
}

// HandleStart handles POST /start.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	if h.Loop == nil {
		http.Error(w, "capture loop not configured", http.StatusServiceUnavailable)
		return
	}
	if st := h.Loop.State(); st != capture.StateIdle {
		writeError(w, http.StatusConflict, "capture loop is not idle", st)
		return
	}
	h.Loop.Start()
	debug.Info("Web: start requested from %s", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// HandleStop handles POST /stop. The loop halts after the cycle in flight.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	if h.Loop == nil {
		http.Error(w, "capture loop not configured", http.StatusServiceUnavailable)
		return
	}
	if st := h.Loop.State(); st != capture.StateRunning {
		writeError(w, http.StatusConflict, "capture loop is not running", st)
		return
	}
	h.Loop.Stop()
	debug.Info("Web: stop requested from %s", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// HandleStatus returns the loop snapshot as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Loop == nil {
		http.Error(w, "capture loop not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.Loop.Snapshot())
}

// initialEvent replays the latest status to a new client, if there is one.
func (h *Handlers) initialEvent() (string, bool) {
	if h.Loop == nil {
		return "", false
	}
	snap := h.Loop.Snapshot()
	if snap.Status == "" {
		return "", false
	}
	data, err := json.Marshal(newEvent(resultLevel(snap.Result), snap.Status))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	if msg, ok := h.initialEvent(); ok {
		w.Write([]byte("data: " + msg + "\n\n"))
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// HandleStatusWS handles GET /status/ws, streaming the same events as
// text frames.
func (h *Handlers) HandleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Warn(err, "websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// The read side only handles control frames; it ends on close or error.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(msgType int, data []byte) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteMessage(msgType, data)
	}

	if msg, ok := h.initialEvent(); ok {
		if err := write(websocket.TextMessage, []byte(msg)); err != nil {
			return
		}
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := write(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}

		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-closed:
			return

		case <-r.Context().Done():
			return
		}
	}
}

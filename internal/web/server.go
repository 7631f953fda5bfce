package web

import (
	"context"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cjeanneret/KatanaPush/internal/debug"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server for the given address and capture loop.
func NewServer(addr string, broadcaster *StatusBroadcaster, loop Controller, settings Settings) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, err
	}
	return &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, loop, settings, subFS),
	}, nil
}

// Router returns a handler with all routes registered.
func (s *Server) Router() *mux.Router {
	h := s.handlers
	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/start", h.HandleStart).Methods(http.MethodPost)
	r.HandleFunc("/stop", h.HandleStop).Methods(http.MethodPost)
	r.HandleFunc("/status", h.HandleStatus).Methods(http.MethodGet)
	r.HandleFunc("/status/stream", h.HandleStatusStream).Methods(http.MethodGet)
	r.HandleFunc("/status/ws", h.HandleStatusWS).Methods(http.MethodGet)
	r.HandleFunc("/config", h.HandleConfig).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))
	r.HandleFunc("/", h.ServeIndex).Methods(http.MethodGet)

	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		debug.Trace("Web: %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Router(),
		// Streaming handlers end with the request context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Web: listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

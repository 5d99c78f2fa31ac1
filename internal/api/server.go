package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	visionnav "github.com/menta2k/vision-nav"
	"github.com/menta2k/vision-nav/internal/config"
	"github.com/menta2k/vision-nav/internal/monitoring"
)

// Server exposes the assistant over HTTP
type Server struct {
	assistant *visionnav.Assistant
	cfg       config.ServerConfig
	upgrader  websocket.Upgrader
	now       func() time.Time
}

// NewServer creates a server for the assistant
func NewServer(a *visionnav.Assistant, cfg config.ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = config.Default().Server.MaxBodyBytes
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	s := &Server{assistant: a, cfg: cfg, now: time.Now}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 << 10,
		WriteBufferSize: 64 << 10,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// ServeMux registers every route
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.home)
	mux.HandleFunc("/status", s.status)
	mux.HandleFunc("/health", s.health)
	mux.HandleFunc("/test_detection", s.testDetection)
	mux.HandleFunc("/detect_objects", s.detectObjects)
	mux.HandleFunc("/navigate", s.navigate)
	mux.HandleFunc("/ws/detect", s.streamDetect)
	return mux
}

// Handler returns the mux wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.ServeMux()
	h = BodyLimitMiddleware(s.cfg.MaxBodyBytes)(h)
	h = CORSMiddleware(s.cfg.AllowedOrigin)(h)
	h = LoggingMiddleware(h)
	h = RequestIDMiddleware(h)
	return h
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout.Std(),
		WriteTimeout: s.cfg.WriteTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("listening on %s", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout.Std()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	monitoring.Logf("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.cfg.AllowedOrigin == "*" || origin == s.cfg.AllowedOrigin
}

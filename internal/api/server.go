// Package api is the outbound HTTP surface: send endpoints, pairing
// token retrieval, session status and logout.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"wabridge/internal/domain"
	"wabridge/internal/metrics"
)

const maxBodySize = 1 << 20 // 1MB for JSON bodies; media has its own cap

// Options configures the HTTP server.
type Options struct {
	Host string
	Port int

	BulkDelay  time.Duration // pause between bulk sends
	BulkJitter time.Duration // random extra pause on top of BulkDelay

	MetricsEnabled  bool
	MetricsEndpoint string
}

// Server serves the outbound API against one shared session.
type Server struct {
	opts    Options
	session domain.Session
	media   *MediaStore
	logger  *slog.Logger
	server  *http.Server
}

func NewServer(opts Options, session domain.Session, media *MediaStore, logger *slog.Logger) *Server {
	return &Server{
		opts:    opts,
		session: session,
		media:   media,
		logger:  logger,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/send-message", s.handleSendMessage)
	mux.HandleFunc("POST /api/send-media", s.handleSendMedia)
	mux.HandleFunc("POST /api/send-poll", s.handleSendPoll)
	mux.HandleFunc("POST /api/send-buttons", s.handleSendButtons)
	mux.HandleFunc("POST /api/send-bulk", s.handleSendBulk)
	mux.HandleFunc("GET /api/qr-code", s.handleQRCode)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	if s.opts.MetricsEnabled {
		endpoint := s.opts.MetricsEndpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		mux.HandleFunc("GET "+endpoint, metrics.Collector.Handler())
	}
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("API server started", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}

func (s *Server) fail(rw http.ResponseWriter, status int, msg string) {
	s.writeJSON(rw, status, map[string]any{"success": false, "error": msg})
}

// requireReady rejects the request with 503 unless the session is paired
// and connected. All send endpoints check this before touching payloads.
func (s *Server) requireReady(rw http.ResponseWriter) bool {
	if s.session.CurrentState() != domain.StateReady {
		s.fail(rw, http.StatusServiceUnavailable, "client is not ready, scan the pairing code first")
		return false
	}
	return true
}

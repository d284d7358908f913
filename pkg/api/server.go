// Package api exposes radio status and on-demand selection over HTTP, and
// per-radio health over gRPC.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/markus-lassfolk/acsd/pkg/acs"
	"github.com/markus-lassfolk/acsd/pkg/logx"
	"github.com/markus-lassfolk/acsd/pkg/wifi"
)

// RadioService is the part of the radio manager the API serves
type RadioService interface {
	Radios() []wifi.RadioStatus
	Radio(name string) (wifi.RadioStatus, error)
	Select(ctx context.Context, name string) (acs.Status, error)
}

// SchedulerStatusProvider reports nightly scheduler state
type SchedulerStatusProvider interface {
	Status() wifi.SchedulerStatus
}

// Config holds API server configuration
type Config struct {
	Listen  string `json:"listen"`
	AuthKey string `json:"-"` // Optional X-API-Key
}

// Server is the acsd HTTP API
type Server struct {
	radios    RadioService
	metrics   http.Handler
	scheduler SchedulerStatusProvider
	config    *Config
	logger    *logx.Logger
	startTime time.Time

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithMetricsHandler serves h on /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// WithScheduler includes scheduler state in /api/v1/status
func WithScheduler(p SchedulerStatusProvider) ServerOption {
	return func(s *Server) { s.scheduler = p }
}

// NewServer creates an API server
func NewServer(radios RadioService, config *Config, logger *logx.Logger, opts ...ServerOption) *Server {
	if config == nil {
		config = &Config{}
	}
	s := &Server{
		radios:    radios,
		config:    config,
		logger:    logger,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the request router
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.authMiddleware(s.handleStatus))
	mux.HandleFunc("GET /api/v1/radios", s.authMiddleware(s.handleRadios))
	mux.HandleFunc("GET /api/v1/radios/{name}", s.authMiddleware(s.handleRadio))
	mux.HandleFunc("POST /api/v1/radios/{name}/select", s.authMiddleware(s.handleSelect))

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// authMiddleware enforces the API key when one is configured
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.AuthKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get("X-API-Key") != s.config.AuthKey {
			s.logger.Warn("Invalid authentication attempt", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			s.sendErrorResponse(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	if s.config.Listen == "" {
		s.logger.Info("HTTP API disabled")
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.srv = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Starting HTTP API", "address", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP API failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, empty before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.logger.Info("HTTP API stopped")
	return srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	response := map[string]interface{}{
		"status":         "operational",
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"radios":         len(s.radios.Radios()),
		"timestamp":      time.Now().Format(time.RFC3339),
	}
	if s.scheduler != nil {
		response["scheduler"] = s.scheduler.Status()
	}
	s.sendJSONResponse(w, http.StatusOK, response)
}

func (s *Server) handleRadios(w http.ResponseWriter, _ *http.Request) {
	radios := s.radios.Radios()
	s.sendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"radios": radios,
		"count":  len(radios),
	})
}

func (s *Server) handleRadio(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	status, err := s.radios.Radio(name)
	if err != nil {
		s.sendErrorResponse(w, statusFor(err), "radio not found", err)
		return
	}
	s.sendJSONResponse(w, http.StatusOK, status)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.logger.Info("Channel selection requested", "radio", name, "remote_addr", r.RemoteAddr)

	status, err := s.radios.Select(r.Context(), name)
	if err != nil {
		s.sendErrorResponse(w, statusFor(err), "selection not started", err)
		return
	}
	s.sendJSONResponse(w, http.StatusAccepted, map[string]interface{}{
		"radio":  name,
		"status": status.String(),
	})
}

// statusFor maps manager and engine errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, wifi.ErrUnknownRadio):
		return http.StatusNotFound
	case errors.Is(err, acs.ErrSelectionInProgress):
		return http.StatusConflict
	case errors.Is(err, acs.ErrScanIssuance):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendJSONResponse(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) sendErrorResponse(w http.ResponseWriter, code int, message string, err error) {
	response := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	if err != nil {
		response["details"] = err.Error()
		response["reason"] = acs.Reason(err)
	}
	s.sendJSONResponse(w, code, response)
}

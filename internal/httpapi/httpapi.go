// Package httpapi exposes the execution engine over HTTP: POST /api/run,
// GET /health, GET /api/stats, and GET /metrics.
//
// The server shape (a stdlib net/http.ServeMux, promhttp.Handler mounted
// at /metrics, a ReadHeaderTimeout on the http.Server, graceful
// Shutdown(ctx)) follows internal/gateway/http_server.go's
// startHTTPServer/stopHTTPServer; the manual json.NewEncoder response
// writing follows that same package's handleHealthz.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coderunner/execgw/internal/engine"
)

// Server wraps the engine in an HTTP API.
type Server struct {
	engine *engine.Engine
	log    *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// New builds a Server for eng, logging with log (or slog.Default if nil).
func New(eng *engine.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: eng, log: log}
}

// Handler returns the server's route mux, useful for tests that don't
// need a bound listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/run", s.handleRun)
	return mux
}

// Start binds addr and begins serving in the background.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen: %w", err)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpServer = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", "error", err)
		}
	}()
	s.log.Info("starting http server", "addr", addr)
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type runRequest struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Code     string `json:"code"`
}

type runResponse struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exitCode"`
	DurationMs int64  `json:"durationMs"`
	Cached     bool   `json:"cached"`
}

type errorResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if req.Language == "" || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "language and code are required"})
		return
	}

	res, err := s.engine.Execute(r.Context(), req.Language, req.Version, req.Code)
	if err != nil {
		var execErr *engine.Error
		if errors.As(err, &execErr) {
			switch execErr.Kind {
			case engine.KindUnsupported, engine.KindInputTooLarge:
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(execErr.Kind)})
			case engine.KindCapacity, engine.KindCircuitOpen:
				writeJSON(w, http.StatusServiceUnavailable, errorResponse{
					Error:      string(execErr.Kind),
					RetryAfter: int(execErr.RetryAfter.Seconds()),
				})
			default:
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: string(execErr.Kind)})
			}
			return
		}
		s.log.Error("execute failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, runResponse{
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ExitCode:   res.ExitCode,
		DurationMs: res.DurationMs,
		Cached:     res.Cached,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

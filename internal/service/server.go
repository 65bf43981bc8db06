// Package service exposes instruction runs over HTTP. One endpoint,
// POST /interact, accepts a natural language command and blocks until
// the run finishes.
package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/knrv/webpilot/api/schemas"
	"github.com/knrv/webpilot/internal/config"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Executor runs one instruction end to end. *runner.Driver satisfies
// it.
type Executor interface {
	Execute(ctx context.Context, instruction string) schemas.RunResult
}

// InteractRequest is the POST /interact body.
type InteractRequest struct {
	Command string `json:"command"`
}

// Server wraps the HTTP front end. Runs execute serially per request;
// each gets its own browser, so concurrent requests are independent.
type Server struct {
	executor Executor
	cfg      config.ServiceConfig
	logger   *zap.Logger
	http     *http.Server
}

func NewServer(executor Executor, cfg config.ServiceConfig, logger *zap.Logger) *Server {
	s := &Server{
		executor: executor,
		cfg:      cfg,
		logger:   logger.Named("service"),
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Post("/interact", s.handleInteract)
	return r
}

// ListenAndServe blocks until ctx is canceled or the listener fails,
// then drains in-flight requests within the shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP service listening.", zap.String("addr", s.cfg.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("Shutting down HTTP service.")
	return s.http.Shutdown(shutdownCtx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	var req InteractRequest
	if err := jsonAPI.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "command is required"})
		return
	}

	s.logger.Info("Accepted interact request.",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("command", req.Command))

	result := s.executor.Execute(r.Context(), req.Command)

	status := http.StatusOK
	if result.Status == schemas.StatusError {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encode failures at this point can only be logged by middleware;
	// headers are already gone.
	_ = jsonAPI.NewEncoder(w).Encode(body)
}

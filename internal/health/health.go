// Package health serves the liveness and readiness HTTP endpoints a
// process orchestrator polls: /healthz always answers once the server
// is up, /readyz defers to a caller-supplied readiness predicate.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// ReadinessCheck reports whether the process is ready to accept work.
type ReadinessCheck func() bool

// Server is an HTTP server exposing /healthz and /readyz. A Server
// with Port == 0 is disabled: Start is a no-op.
type Server struct {
	Port           int
	ReadinessCheck ReadinessCheck

	startedAt time.Time
	srv       *http.Server
}

// Start begins serving in the background. A zero Port disables the
// server entirely, matching the "0 = disabled" config contract.
func (s *Server) Start() {
	if s.Port == 0 {
		return
	}
	s.startedAt = time.Now()

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: r,
	}
	go func() {
		_ = s.srv.ListenAndServe()
	}()
}

// Stop shuts the server down, if it was started.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	ready := s.ReadinessCheck != nil && s.ReadinessCheck()
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"ready": ready})
}

func writeJSON(w http.ResponseWriter, code int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/interfaces"
)

// Server exposes a read-only status surface for unattended runs: a JSON
// status endpoint and a websocket stream of run events. It never mutates run
// state.
type Server struct {
	cfg    *common.Config
	logger arbor.ILogger
	store  interfaces.ResultStorage
	ws     *WebSocketHandler
	server *http.Server

	mu       sync.RWMutex
	progress *interfaces.ProgressPayload
	summary  *interfaces.SummaryPayload
}

// New creates the status server and subscribes it to run events
func New(cfg *common.Config, store interfaces.ResultStorage, events interfaces.EventService, logger arbor.ILogger) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  store,
		ws:     NewWebSocketHandler(events, logger),
	}

	if err := events.Subscribe(interfaces.EventBatchProgress, s.onProgress); err != nil {
		return nil, err
	}
	for _, t := range []interfaces.EventType{interfaces.EventRunCompleted, interfaces.EventRunFailed} {
		if err := events.Subscribe(t, s.onSummary); err != nil {
			return nil, err
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/runs/", s.handleRun)
	mux.HandleFunc("/ws", s.ws.HandleWS)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start blocks serving HTTP until Shutdown
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Msg("Status server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.ws.CloseAll()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("status server shutdown failed: %w", err)
	}
	s.logger.Info().Msg("Status server stopped")
	return nil
}

func (s *Server) onProgress(ctx context.Context, event interfaces.Event) error {
	if p, ok := event.Payload.(interfaces.ProgressPayload); ok {
		s.mu.Lock()
		s.progress = &p
		s.mu.Unlock()
	}
	return nil
}

func (s *Server) onSummary(ctx context.Context, event interfaces.Event) error {
	if p, ok := event.Payload.(interfaces.SummaryPayload); ok {
		s.mu.Lock()
		s.summary = &p
		s.mu.Unlock()
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	status := map[string]interface{}{
		"service":     "probo",
		"version":     common.GetVersion(),
		"environment": s.cfg.Environment,
		"target":      s.cfg.Target.BaseURL,
	}
	if s.progress != nil {
		status["progress"] = s.progress
	}
	if s.summary != nil {
		status["lastRun"] = s.summary
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, status)
}

// handleRun serves a persisted run with its suites by id:
// GET /api/runs/{id}
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Path[len("/api/runs/"):]
	if id == "" {
		http.Error(w, "run id required", http.StatusBadRequest)
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	suites, err := s.store.SuitesByRun(r.Context(), run.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to load suites")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":    run,
		"suites": suites,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

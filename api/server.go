// Package api exposes the reconciliation engine over HTTP.
// This is a capability module that can be enabled via the CLI or used programmatically.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/aqlanhadi/rekon/engine"
	"github.com/aqlanhadi/rekon/engine/session"
)

// Config holds the API server configuration
type Config struct {
	Port      string
	LogPrefix string
}

// DefaultConfig returns the default API configuration
func DefaultConfig() Config {
	return Config{
		Port:      ":8080",
		LogPrefix: "API: ",
	}
}

// Server represents the HTTP API server. Each mounted session gets its own
// lock: the engine handlers are synchronous and must not interleave.
type Server struct {
	config Config
	bus    *engine.Bus
	mux    *http.ServeMux

	mu       sync.Mutex
	sessions map[int64]*sessionEntry
}

type sessionEntry struct {
	mu   sync.Mutex
	sess *session.Session
}

// New creates a new API server with the given configuration
func New(cfg Config, bus *engine.Bus) *Server {
	s := &Server{
		config:   cfg,
		bus:      bus,
		mux:      http.NewServeMux(),
		sessions: map[int64]*sessionEntry{},
	}
	s.registerRoutes()
	return s
}

// registerRoutes sets up the API endpoints
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/sessions", s.handleMount)
	s.mux.HandleFunc("/sessions/", s.handleSession)
	s.mux.HandleFunc("/health", s.handleHealth)
}

// Handler returns the http.Handler for the server
// This allows the server to be used with custom http.Server configurations
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server (blocking)
func (s *Server) Start() error {
	log.Printf("%sStarting server on %s", s.config.LogPrefix, s.config.Port)
	return http.ListenAndServe(s.config.Port, s.mux)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type mountRequest struct {
	StLineID int64 `json:"st_line_id"`
}

// handleMount mounts a session on a statement line.
// POST /sessions {"st_line_id": 42}
func (s *Server) handleMount(w http.ResponseWriter, r *http.Request) {
	log.Printf("%sReceived mount request from %s", s.config.LogPrefix, r.RemoteAddr)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req mountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Could not parse request: "+err.Error(), http.StatusBadRequest)
		return
	}

	sess, ret, err := s.bus.Mount(r.Context(), req.StLineID)
	if err != nil {
		log.Printf("%sError mounting statement line %d: %v", s.config.LogPrefix, req.StLineID, err)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	s.mu.Lock()
	s.sessions[req.StLineID] = &sessionEntry{sess: sess}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"st_line_id": req.StLineID, "return": ret})
}

// handleSession routes /sessions/{id} and /sessions/{id}/dispatch
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.SplitN(rest, "/", 2)

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "Invalid session id", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	entry, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if len(parts) == 2 && parts[1] == "dispatch" {
		s.handleDispatch(w, r, entry)
		return
	}
	if len(parts) == 1 && r.Method == http.MethodGet {
		entry.mu.Lock()
		lines := entry.sess.Lines()
		state := entry.sess.State()
		entry.mu.Unlock()
		writeJSON(w, map[string]any{"state": state, "lines": lines})
		return
	}
	http.Error(w, "Not found", http.StatusNotFound)
}

// handleDispatch executes one intent against a mounted session.
// POST /sessions/{id}/dispatch {"method": "...", "args": {...}}
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request, entry *sessionEntry) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd engine.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Could not parse command: "+err.Error(), http.StatusBadRequest)
		return
	}

	entry.mu.Lock()
	ret, err := s.bus.Dispatch(r.Context(), entry.sess, cmd)
	entry.mu.Unlock()
	if err != nil {
		log.Printf("%sError dispatching %s: %v", s.config.LogPrefix, cmd.Method, err)
		http.Error(w, err.Error(), dispatchStatus(err))
		return
	}
	writeJSON(w, ret)
}

// dispatchStatus maps engine errors to HTTP statuses
func dispatchStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrLineNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidState),
		errors.Is(err, session.ErrAlreadyReconciled),
		errors.Is(err, session.ErrSealedReconciled),
		errors.Is(err, session.ErrSealedUnreconciled),
		errors.Is(err, session.ErrZeroResidual),
		errors.Is(err, session.ErrLineNotRemovable),
		errors.Is(err, session.ErrNotReconciled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

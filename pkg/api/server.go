// Package api exposes the operator-facing HTTP control plane: four
// bearer-authenticated POST endpoints that drive the command
// orchestrator, plus an unauthenticated health check and a
// bearer-authenticated telemetry websocket upgrade.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/scootergw/gateway/pkg/audit"
	"github.com/scootergw/gateway/pkg/opauth"
	"github.com/scootergw/gateway/pkg/ophealth"
	"github.com/scootergw/gateway/pkg/orchestrator"
	"github.com/scootergw/gateway/pkg/telemetry"
)

// Server is the operator HTTP control plane.
type Server struct {
	orch    *orchestrator.Orchestrator
	auth    *opauth.Service
	health  *ophealth.Checker
	hub     *telemetry.Hub
	audit   *audit.Store
	userID  string
	logger  zerolog.Logger

	httpServer *http.Server
}

// Config bundles the collaborators a Server is built from. Hub and
// Audit may be nil: telemetry and audit logging are both optional,
// toggled independently in the gateway's configuration.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Auth         *opauth.Service
	Health       *ophealth.Checker
	Hub          *telemetry.Hub
	Audit        *audit.Store
	OperatorID   string
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       zerolog.Logger
}

// New builds a Server and its underlying http.Server, not yet listening.
func New(cfg Config) *Server {
	s := &Server{
		orch:   cfg.Orchestrator,
		auth:   cfg.Auth,
		health: cfg.Health,
		hub:    cfg.Hub,
		audit:  cfg.Audit,
		userID: cfg.OperatorID,
		logger: cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/unlock", s.auth.Middleware(http.HandlerFunc(s.handleUnlock)).ServeHTTP)
	mux.HandleFunc("/lock", s.auth.Middleware(http.HandlerFunc(s.handleLock)).ServeHTTP)
	mux.HandleFunc("/change-gear", s.auth.Middleware(http.HandlerFunc(s.handleChangeGear)).ServeHTTP)
	mux.HandleFunc("/toggle-headlight", s.auth.Middleware(http.HandlerFunc(s.handleToggleHeadlight)).ServeHTTP)
	if s.hub != nil {
		mux.HandleFunc("/ws/telemetry", s.auth.Middleware(http.HandlerFunc(s.hub.ServeWS)).ServeHTTP)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.corsMiddleware(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// ListenAndServe starts serving until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting operator api")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.health.ServeHTTP(w, r)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		s.sendError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}

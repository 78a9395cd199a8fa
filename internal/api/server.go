// Package api exposes the core runtime over REST/JSON and a websocket
// event stream for the web frontend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semptify/backend/internal/cache"
	"github.com/semptify/backend/internal/contextloop"
	"github.com/semptify/backend/internal/events"
	"github.com/semptify/backend/internal/intake"
	"github.com/semptify/backend/internal/laws"
	"github.com/semptify/backend/internal/middleware"
	"github.com/semptify/backend/internal/storage"
	"github.com/semptify/backend/internal/vault"
)

// Server wires the HTTP surface over the core services.
type Server struct {
	bus    *events.Bus
	loop   *contextloop.Loop
	vault  *vault.Engine
	audit  *vault.AuditLog
	intake *intake.Pipeline
	laws   *laws.Engine
	cache  cache.Store
	logger *slog.Logger

	cacheTTL time.Duration
	httpSrv  *http.Server
}

// NewServer builds the router and handler set.
func NewServer(bus *events.Bus, loop *contextloop.Loop, v *vault.Engine, audit *vault.AuditLog,
	pipeline *intake.Pipeline, lawEngine *laws.Engine, store cache.Store, cacheTTL time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Server{
		bus:      bus,
		loop:     loop,
		vault:    v,
		audit:    audit,
		intake:   pipeline,
		laws:     lawEngine,
		cache:    store,
		cacheTTL: cacheTTL,
		logger:   logger.With("component", "api"),
	}
}

// Router builds the gorilla/mux router with all routes registered.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.Use(middleware.NewRateLimiter(middleware.RateLimitConfig{}).Middleware)

	// Health and metrics
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Context loop state
	r.HandleFunc("/api/v1/state/{userID}", s.handleGetState).Methods("GET")
	r.HandleFunc("/api/v1/intensity/{userID}", s.handleGetIntensity).Methods("GET")
	r.HandleFunc("/api/v1/events/{userID}", s.handleEmitEvent).Methods("POST")

	// Vault
	r.HandleFunc("/api/v1/vault/{userID}/documents", s.handleUpload).Methods("POST")
	r.HandleFunc("/api/v1/vault/{userID}/documents", s.handleListDocuments).Methods("GET")
	r.HandleFunc("/api/v1/vault/{userID}/documents/{docID}", s.handleDownload).Methods("GET")
	r.HandleFunc("/api/v1/vault/{userID}/documents/{docID}", s.handleDelete).Methods("DELETE")
	r.HandleFunc("/api/v1/vault/{userID}/documents/{docID}/share", s.handleShare).Methods("POST")

	// Audit query
	r.HandleFunc("/api/v1/audit/logs", s.handleQueryAudit).Methods("GET")

	// Law library
	r.HandleFunc("/api/v1/laws", s.handleListLaws).Methods("GET")

	// Event history + websocket stream
	r.HandleFunc("/api/v1/history", s.handleHistory).Methods("GET")
	r.HandleFunc("/ws/events", s.handleWebsocket)
	r.HandleFunc("/ws/status", s.handleWSStatus).Methods("GET")

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("http server listening", "addr", addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID, X-User-Role")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"bus":    s.bus.Statistics(),
	})
}

// actorFrom builds the vault actor from request headers. The transport
// authentication layer upstream is out of scope here; the headers are
// trusted the way the original deployment trusts its session layer.
func actorFrom(r *http.Request, fallbackUser string) vault.Actor {
	actorID := r.Header.Get("X-User-ID")
	if actorID == "" {
		actorID = fallbackUser
	}
	role := vault.Role(r.Header.Get("X-User-Role"))
	if role == "" {
		role = vault.RoleUser
	}
	return vault.Actor{
		ID:        actorID,
		Role:      role,
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vault.ErrDenied):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied"})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, storage.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable"})
	case errors.Is(err, events.ErrBusClosed):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "shutting down"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// Package api serves the Plinko web client: static assets, board geometry,
// interactive sessions, provably-fair replay and batch simulation history.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/plinko-drop/internal/config"
	"github.com/MJE43/plinko-drop/internal/scan"
	"github.com/MJE43/plinko-drop/internal/sound"
	"github.com/MJE43/plinko-drop/internal/store"
)

const maxBodyBytes = 1 << 20

// Server handles HTTP requests
type Server struct {
	cfg          config.Config
	db           store.DB
	scanner      *scan.Scanner
	sessions     *sessionStore
	errorHandler *ErrorHandler
	logger       *log.Logger
	audit        *AuditLogger
	metrics      *opMetricsSet
	webRoot      string
	soundFiles   []string
	startTime    time.Time
	httpServer   *http.Server
}

// Option configures a Server
type Option func(*Server)

// WithLogOutput redirects the request and audit logs.
func WithLogOutput(w io.Writer) Option {
	return func(s *Server) {
		s.logger.SetOutput(w)
		s.audit.logger.SetOutput(w)
	}
}

// NewServer creates a new API server. db may be nil, which disables run
// history.
func NewServer(cfg config.Config, db store.DB, opts ...Option) *Server {
	logger := log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile)
	audit := NewAuditLogger(os.Stdout)

	s := &Server{
		cfg:          cfg,
		db:           db,
		scanner:      scan.NewScanner(cfg.Scan.Workers),
		sessions:     newSessionStore(defaultMaxSessions, defaultSessionTTL),
		errorHandler: NewErrorHandler(logger, audit),
		logger:       logger,
		audit:        audit,
		metrics:      newOpMetricsSet(),
		webRoot:      cfg.Server.WebRoot,
		startTime:    time.Now(),
	}
	if cfg.SoundEnabled() {
		for _, e := range sound.Effects {
			s.soundFiles = append(s.soundFiles, e.File)
		}
	}
	for _, opt := range opts {
		opt(s)
	}

	s.audit.LogSystemStartup(map[string]interface{}{
		"web_root":         s.webRoot,
		"risk":             cfg.Game.Risk,
		"scan_workers":     s.scanner.Workers(),
		"database_enabled": s.db != nil,
		"sound_enabled":    cfg.SoundEnabled(),
	})

	return s
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(s.requestTimeout()))
	r.Use(s.CORSMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) { s.notFound(w) })

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/board", s.handleBoard)
		r.Post("/replay", s.handleReplay)
		r.Post("/scan", s.handleScan)

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.handleCreateRun)
			r.Get("/", s.handleListRuns)
			r.Get("/{id}", s.handleGetRun)
			r.Get("/{id}/hits", s.handleGetHits)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/{id}", s.handleGetSession)
			r.Delete("/{id}", s.handleDeleteSession)
			r.Post("/{id}/drop", s.handleDrop)
			r.Post("/{id}/reset", s.handleResetSession)
		})
	})

	r.Get("/*", s.handleAsset)
	r.Head("/*", s.handleAsset)

	return r
}

// Start binds addr and serves in a goroutine. It returns the bound address
// once the socket is listening.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.httpServer = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("server_stopped err=%v", err)
		}
	}()
	return ln.Addr(), nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestTimeout() time.Duration {
	if s.cfg.Server.RequestTimeoutMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.cfg.Server.RequestTimeoutMs) * time.Millisecond
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed status=%d err=%v", status, err)
	}
}

// decodeJSON reads a bounded JSON body into v, reporting a validation error
// on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		s.errorHandler.HandleValidationError(w, r, ErrTypeValidation, "body", "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}

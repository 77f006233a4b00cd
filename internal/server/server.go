package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kaigo-labs/omoide/internal/classify"
	"github.com/kaigo-labs/omoide/internal/graph"
	"github.com/kaigo-labs/omoide/internal/preprocess"
	"github.com/kaigo-labs/omoide/internal/service/embedding"
	"github.com/kaigo-labs/omoide/internal/session"
	"github.com/kaigo-labs/omoide/internal/storage"
)

// Server is the HTTP server fronting both conversation flows and the
// caregiver endpoints.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	// Required dependencies.
	DB           *storage.DB
	Session      *session.Context
	GraphConfig  graph.Config
	Router       *classify.Router
	Preprocessor preprocess.Preprocessor
	Embedder     embedding.Provider
	Logger       *slog.Logger

	// Optional dependencies (nil = disabled).
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:           cfg.DB,
		Session:      cfg.Session,
		GraphConfig:  cfg.GraphConfig,
		Router:       cfg.Router,
		Preprocessor: cfg.Preprocessor,
		Embedder:     cfg.Embedder,
		Logger:       cfg.Logger,
		Version:      cfg.Version,
	})

	mux := http.NewServeMux()

	// Conversational entrypoint.
	mux.HandleFunc("POST /invoke", h.HandleInvoke)

	// Caregiver endpoints.
	mux.HandleFunc("POST /v1/profiles", h.HandleCreateProfile)
	mux.HandleFunc("GET /v1/profiles/{profile_id}", h.HandleGetProfile)
	mux.HandleFunc("POST /v1/memories/long-term", h.HandleInsertLongTerm)
	mux.HandleFunc("POST /v1/memories/healthcare", h.HandleInsertHealthcare)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Health (no body limits needed, but harmless).
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → body limit → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = maxBodyMiddleware(cfg.MaxRequestBodyBytes, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

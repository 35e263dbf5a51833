// Package webui serves the JSON API and the websocket status stream.
package webui

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"pixelbatch/core"
	"pixelbatch/generation"
	"pixelbatch/logging"
)

// ServerConfig configures the Server.
type ServerConfig struct {
	// Port to listen on (default: 3000)
	Port int

	// Host to bind to (default: "localhost")
	Host string

	// ReadTimeout for HTTP requests (default: 30s)
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses (default: 60s)
	WriteTimeout time.Duration

	// IdleTimeout for keep-alive connections (default: 120s)
	IdleTimeout time.Duration

	// ShutdownTimeout for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration

	// LogSkipPaths are not request-logged.
	LogSkipPaths []string
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:            core.DefaultPort,
		Host:            "localhost",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		LogSkipPaths:    []string{"/healthz", "/api/status"},
	}
}

// Dependencies are the collaborators the server exposes.
type Dependencies struct {
	Runs   RunStarter
	Status *generation.StatusBoard
	Images core.ImageStore
	Keys   KeyStore
	// Hub is shared with the orchestrator's image listener. Created
	// when nil.
	Hub    *Broadcaster
	Health Pinger
}

// Server is the HTTP server.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	config     ServerConfig
	log        *logging.Logger
	api        *API
	hub        *Broadcaster
	board      *generation.StatusBoard
}

// NewServer wires routes and middleware.
func NewServer(config ServerConfig, deps Dependencies, log *logging.Logger) (*Server, error) {
	if deps.Runs == nil || deps.Status == nil || deps.Images == nil || deps.Keys == nil {
		return nil, errors.New("webui: runs, status, images and keys are required")
	}
	if log == nil {
		log = logging.NewNop()
	}
	def := DefaultServerConfig()
	if config.Port == 0 {
		config.Port = def.Port
	}
	if config.Host == "" {
		config.Host = def.Host
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewBroadcaster(DefaultBroadcasterConfig(), log)
	}

	api := &API{
		runs:   deps.Runs,
		board:  deps.Status,
		images: deps.Images,
		keys:   deps.Keys,
		hub:    hub,
		health: deps.Health,
		log:    log.Named("api"),
	}

	s := &Server{
		config: config,
		log:    log.Named("server"),
		api:    api,
		hub:    hub,
		board:  deps.Status,
	}
	hub.SetInitialState(s.initialState)
	s.router = s.routes()

	addr := net.JoinHostPort(config.Host, fmt.Sprint(config.Port))
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(RequestLogger(s.log, s.config.LogSkipPaths...))

	s.api.RegisterRoutes(r)
	r.Get("/ws", s.hub.HandleConnection)
	return r
}

// initialState is the snapshot sent to each new websocket client.
func (s *Server) initialState() InitialData {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data := InitialData{
		Status:  s.board.Latest(),
		Running: s.api.runs.Running(),
	}
	if images, err := s.api.images.GetAll(ctx); err == nil {
		data.ImageCount = len(images)
	}
	if keys, err := s.api.keys.LoadCredentials(ctx); err == nil {
		data.KeyCount = len(keys)
	}
	return data
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Broadcaster returns the websocket hub.
func (s *Server) Broadcaster() *Broadcaster {
	return s.hub
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the hub, forwards status writes to it and serves HTTP until
// Shutdown. It blocks.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Start(ctx)
	unsubscribe := s.board.Subscribe(s.hub.BroadcastStatus)
	defer unsubscribe()

	s.log.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webui: http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones, bounded
// by the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webui: shutdown: %w", err)
	}
	s.hub.Close()
	s.log.Info("server stopped")
	return nil
}

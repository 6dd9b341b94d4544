// Package web provides the RadioCalico HTTP server: the rating API,
// health checks, the users table, and the embedded player page.
package web

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/shaynemeyer/radio-calico/internal/ratings"
)

// DefaultAddr is the default server address.
const DefaultAddr = ":3000"

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr     string
	Store    ratings.Store
	Logger   *log.Logger
	StaticFS fs.FS

	// RateLimit bounds rating submissions per second; zero applies
	// defaultRateLimit.
	RateLimit rate.Limit
}

const (
	defaultRateLimit = rate.Limit(20)
	defaultBurst     = 40
)

// Server is the RadioCalico HTTP server.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	logger   *log.Logger
}

// NewServer creates a new server around the given rating store.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("server requires a rating store")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}

	limiter := rate.NewLimiter(cfg.RateLimit, defaultBurst)
	handlers := NewHandlers(cfg.Store, cfg.Logger, limiter)

	router := chi.NewRouter()

	s := &Server{
		router:   router,
		handlers: handlers,
		logger:   cfg.Logger,
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.StaticFS)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes(staticFS fs.FS) {
	s.router.Get("/health", s.handlers.Health)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/users", s.handlers.ListUsers)
		r.Post("/users", s.handlers.CreateUser)

		r.Post("/songs/rate", s.handlers.RateSong)
		r.Get("/songs/{songId}/ratings", s.handlers.SongRatings)
		r.Get("/songs/{songId}/user-rating/{userSession}", s.handlers.UserRating)
	})

	if staticFS != nil {
		fileServer := http.FileServer(http.FS(staticFS))
		s.router.Handle("/*", fileServer)
	}
}

// Handler returns the root handler, useful for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt signals.
func (s *Server) Run() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
		s.logger.Info("shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

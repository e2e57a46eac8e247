// Package server wires configuration, the database connection, the models,
// the services and the handlers into one HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/activerecord/internal/auth"
	"github.com/sakif/activerecord/internal/database"
	"github.com/sakif/activerecord/internal/handler"
	"github.com/sakif/activerecord/internal/middleware"
	"github.com/sakif/activerecord/internal/model"
	"github.com/sakif/activerecord/internal/orm"
	"github.com/sakif/activerecord/internal/service"
)

type Config struct {
	Port int
	// PasswordCost is the bcrypt cost for user passwords; 0 uses the default.
	PasswordCost int
}

// Server owns the router and the database connection. The connection is
// closed when Start returns.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	conn   *database.Connection
	tokens *auth.TokenService
}

// New builds the server on conn. tokens signs and checks the bearer tokens
// issued at login.
func New(cfg Config, conn *database.Connection, tokens *auth.TokenService, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		conn:   conn,
		tokens: tokens,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes mounts:
//
//	GET  /healthz
//	     /api/snippets/...  (see handler.SnippetHandler.Routes)
//	     /api/users/...     (see handler.UserHandler.Routes)
//
// Everything under /api recognizes an optional bearer token.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	db := orm.New(s.conn, orm.WithLogger(s.logger))
	passwords := model.NewPasswords(s.config.PasswordCost)

	snippetHandler := handler.NewSnippetHandler(
		service.NewSnippetService(model.Snippet(db), s.logger), s.logger)
	userHandler := handler.NewUserHandler(
		service.NewUserService(model.User(db, passwords), passwords, s.tokens, s.logger), s.tokens, s.logger)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.OptionalAuth(s.tokens))
		r.Route("/snippets", snippetHandler.Routes)
		r.Route("/users", userHandler.Routes)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.conn.DB.PingContext(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	defer func() {
		if err := s.conn.Close(); err != nil {
			s.logger.Error("closing database", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("driver", s.conn.Driver()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

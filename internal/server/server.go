// Package server provides the HTTP server for arstage.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ayusman/arstage/internal/server/api"
	"github.com/ayusman/arstage/internal/session"
	"github.com/ayusman/arstage/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Session   *session.Session
	Logger    *slog.Logger
}

// Server represents the HTTP server for arstage.
type Server struct {
	config Config
	router chi.Router
	logger *slog.Logger
	start  time.Time
}

// New creates a new Server with the given configuration. Routes whose
// backing component is missing from config are not registered.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		config: config,
		router: chi.NewRouter(),
		logger: logger,
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		if s.config.Store != nil {
			r.Route("/gestures", api.NewGestureHandler(s.config.Store, s.logger).Routes)
		}

		if sess := s.config.Session; sess != nil {
			api.NewSessionHandler(sess, s.config.Store, s.logger).Routes(r)
			r.Handle("/stream", NewStreamHandler(sess.Feed(), s.logger))
			r.Handle("/events", NewEventsHandler(sess, s.logger))
		}
	})

	if sess := s.config.Session; sess != nil {
		r.Handle("/metrics", sess.Metrics().Handler())
	}

	if s.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Session != nil {
		response["running"] = s.config.Session.Running()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("encode health", "err", err)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hintquest/apiserver/config"
	"github.com/hintquest/apiserver/internal/handlers"
	"github.com/hintquest/apiserver/internal/scheduler"
)

// Server wraps the HTTP server, its router and background jobs.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	app        *App
	jobs       *scheduler.Scheduler
	logger     *slog.Logger
}

// New connects the backends, loads the stored catalog when object storage is
// configured, and builds the command API router.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if app.Objects != nil {
		if count, err := app.Catalog.Load(ctx); err != nil {
			logger.Warn("catalog not loaded at startup", "error", err)
		} else {
			logger.Info("catalog loaded", "challenges", count)
		}
	}

	jobs := scheduler.Jobs{Confirmations: app.Confirmations, Index: app.Index}
	if app.Objects != nil {
		jobs.Catalog = app.Catalog
	}
	sched, err := scheduler.New(cfg.Scheduler, jobs, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	router := newRouter(app, cfg.Auth, logger)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		app:        app,
		jobs:       sched,
		logger:     logger,
	}, nil
}

func newRouter(app *App, auth config.AuthConfig, logger *slog.Logger) *chi.Mux {
	authHandler := handlers.NewAuthHandler(app.Users, handlers.AuthOptions{
		JWTSecret:     auth.JWTSecret,
		BotAPIKeyHash: auth.BotAPIKeyHash,
		TokenTTL:      auth.TokenTTL,
	}, logger)
	authMiddleware := authHandler.RequireAuth

	challengeHandler := handlers.NewChallengeHandler(app.Users, app.Challenges, app.Gameplay, app.Progress, app.Index, logger)
	progressHandler := handlers.NewProgressHandler(app.Progress, app.Rewards, app.Announcer, logger)
	adminHandler := handlers.NewAdminHandler(handlers.AdminDeps{
		Users:         app.Users,
		Challenges:    app.Challenges,
		Approvals:     app.Approvals,
		Progress:      app.Progress,
		Confirmations: app.Confirmations,
		Catalog:       app.Catalog,
	}, logger)
	confirmationHandler := handlers.NewConfirmationHandler(app.Confirmations, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Route("/challenges", func(r chi.Router) {
		handlers.ChallengeRouter(r, challengeHandler, authMiddleware)
	})
	router.Route("/progress", func(r chi.Router) {
		handlers.ProgressRouter(r, progressHandler, authMiddleware)
	})
	router.Get("/leaderboard", progressHandler.Leaderboard)
	router.Route("/admin", func(r chi.Router) {
		handlers.AdminRouter(r, adminHandler, authMiddleware)
	})
	router.Route("/confirmations", func(r chi.Router) {
		handlers.ConfirmationRouter(r, confirmationHandler, authMiddleware)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs background jobs and the HTTP server. It returns nil after a
// graceful shutdown.
func (s *Server) Start() error {
	s.jobs.Start()
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, stops the jobs and closes backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if jobErr := s.jobs.Shutdown(); jobErr != nil {
		s.logger.Warn("scheduler shutdown failed", "error", jobErr)
	}
	if closeErr := s.app.Close(); closeErr != nil {
		s.logger.Warn("closing backends failed", "error", closeErr)
	}
	return err
}

// Package server sets up the HTTP server, router, and all route definitions.
//
// It is the composition root for the HTTP side: main builds the external
// clients (database, object store, caption model) and hands them over as
// Deps; New wires services and handlers on top and mounts the routes.
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
	"github.com/rs/cors"

	"github.com/sakif/snapcaption/internal/auth"
	"github.com/sakif/snapcaption/internal/handler"
	"github.com/sakif/snapcaption/internal/middleware"
	sqliteRepo "github.com/sakif/snapcaption/internal/repository/sqlite"
	"github.com/sakif/snapcaption/internal/service"
)

// Config holds server configuration.
type Config struct {
	Port          int
	SecureCookies bool
	CORSOrigins   []string // CORS is off when empty
}

// Deps are the external resources the server is built on. GitHub may be nil,
// which leaves the /auth/github routes unmounted.
type Deps struct {
	DB        *sqliteRepo.DB
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	Images    service.ImageStore
	Captions  service.Captioner
	GitHub    *auth.GitHubProvider
}

// Server represents the HTTP server and all its dependencies. It owns the
// database and closes it when Start returns.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New creates a Server and wires every route.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     deps.DB,
	}
	s.setupRoutes(deps)
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and route handlers.
//
// Public:            GET /healthz, /auth/github/*
// Signed-out only:   GET|POST /signup, GET|POST /signin
// Signed-in only:    everything else
//
// Middleware order matters: RequestID must run before the logger so each log
// line carries the ID, and Recoverer sits inside the logger so a panic still
// logs as a 500.
func (s *Server) setupRoutes(deps Deps) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.New(corsOptions(s.config.CORSOrigins)).Handler)
	}

	authService := service.NewAuthService(deps.DB.Users(), deps.Tokens, deps.Passwords, s.logger)
	galleryService := service.NewGalleryService(deps.DB.Media(), deps.Images, deps.Captions, s.logger)

	var github handler.GitHubExchanger
	if deps.GitHub != nil {
		github = deps.GitHub
	}

	authHandler := handler.NewAuthHandler(authService, github, handler.AuthHandlerConfig{
		SessionTTL:    deps.Tokens.TTL(),
		SecureCookies: s.config.SecureCookies,
	}, s.logger)
	imageHandler := handler.NewImageHandler(galleryService, s.logger)

	requireAuth := auth.RequireAuth(deps.Tokens, authService)
	redirectIfAuth := auth.RedirectIfAuth(deps.Tokens, authService)

	s.router.Get("/healthz", handler.HandleHealth(deps.DB, s.logger))

	s.router.Group(func(r chi.Router) {
		r.Use(redirectIfAuth)
		r.Get("/signup", authHandler.HandleSignupForm)
		r.Post("/signup", authHandler.HandleSignup)
		r.Get("/signin", authHandler.HandleSigninForm)
		r.Post("/signin", authHandler.HandleSignin)
	})

	if github != nil {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	s.router.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/signout", authHandler.HandleSignout)
		r.Get("/api/me", authHandler.HandleMe)

		r.Get("/", imageHandler.HandleGallery)
		r.Get("/search", imageHandler.HandleGallery)
		r.Post("/generate-caption", imageHandler.HandleGenerateCaption)
		r.Post("/save-image", imageHandler.HandleSaveImage)
		r.Post("/regenerate-caption/{id}", imageHandler.HandleRegenerateCaption)
	})
}

// corsOptions allows the configured origins to call the API with the session
// cookie.
func corsOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// Start runs the HTTP server until SIGINT or SIGTERM, then shuts down
// gracefully: stop accepting connections, wait up to 30s for in-flight
// requests, close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	// Captioning waits on the model API, so the write timeout is generous.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
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

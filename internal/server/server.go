package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gallery-app/apiserver/config"
	"github.com/gallery-app/apiserver/internal/db"
	"github.com/gallery-app/apiserver/internal/handlers"
	"github.com/gallery-app/apiserver/internal/mq"
	"github.com/gallery-app/apiserver/internal/services"
	"github.com/gallery-app/apiserver/internal/storage"
	"github.com/gallery-app/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	logger     *zap.Logger
}

// New connects to the database, object storage and, when configured, the
// message queue, and builds the router.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	tokens, err := services.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTAlgorithm, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("mq: %w", err)
	}

	var cleaner services.ImageCleaner = services.NewDirectCleaner(objects, logger)
	if queue != nil {
		cleaner = services.NewQueuedCleaner(objects, queue, cfg.MQ.CleanupChannel, logger)
	}

	userRepo := store.NewUserRepository(dbConn)
	postRepo := store.NewPostRepository(dbConn)

	authService := services.NewAuthService(userRepo, tokens, logger)
	userService := services.NewUserService(userRepo, logger)
	postService := services.NewPostService(postRepo, userRepo, cleaner, logger)
	uploadService := services.NewUploadService(objects, postRepo, cfg.Upload.URLExpiry, cfg.Upload.MaxBytes, logger)

	authHandler := handlers.NewAuthHandler(authService, userService, services.NewIdentityVerifier(cfg.Auth.GoogleClientID), logger)
	postHandler := handlers.NewPostHandler(postService, uploadService, logger)
	limiter := handlers.NewIPRateLimiter(cfg.Auth.RateLimit, cfg.Auth.RateBurst)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		handlers.RequestLogger(logger),
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"WWW-Authenticate"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
	)
	router.Get("/", handlers.Root)
	router.Get("/health", handlers.Health(dbConn))
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, limiter.Middleware)
	})
	router.Route("/api/posts", func(r chi.Router) {
		handlers.PostRouter(r, postHandler, handlers.RequireAuth(tokens))
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the database and queue.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}

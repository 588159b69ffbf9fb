// Package server provides the HTTP server setup and routing configuration.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sy264115809/techshow/internal/api"
	"github.com/sy264115809/techshow/internal/config"
	"github.com/sy264115809/techshow/internal/db"
	"github.com/sy264115809/techshow/internal/gateway"
	"github.com/sy264115809/techshow/internal/lifecycle"
	"github.com/sy264115809/techshow/internal/lock"
	"github.com/sy264115809/techshow/internal/logger"
	"github.com/sy264115809/techshow/internal/middleware"
	"github.com/sy264115809/techshow/internal/scheduler"
)

// Server represents the HTTP server
type Server struct {
	config    *config.Config
	db        *db.DB
	repos     *db.Repositories
	scheduler *scheduler.Scheduler
	lifecycle *lifecycle.Service
	redis     *redis.Client
	router    *gin.Engine
	server    *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, database *db.DB) *Server {
	repos := db.NewRepositories(database)
	sched := scheduler.New(cfg.Scheduler.Workers, cfg.Scheduler.QueueSize)
	streamGateway := gateway.NewStreamGateway(cfg.Stream)
	chatGateway := gateway.NewChatRoomGateway(cfg.ChatRoom)

	// The per-stream publishing lock is distributed only when Redis is
	// configured; single-instance deployments use the in-process lock
	var locker lock.Locker
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		locker = lock.NewRedis(redisClient)
	} else {
		locker = lock.NewMemory()
	}

	service := lifecycle.NewService(repos, streamGateway, chatGateway, sched, locker, cfg.Lifecycle)

	return &Server{
		config:    cfg,
		db:        database,
		repos:     repos,
		scheduler: sched,
		lifecycle: service,
		redis:     redisClient,
	}
}

// setupRouter initializes the Gin router with middleware and routes
func (s *Server) setupRouter() {
	// Set Gin mode based on log level
	if s.config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create new Gin router
	s.router = gin.New()

	// Add middleware stack
	s.router.Use(middleware.RequestLogger()) // Custom zerolog request logger
	s.router.Use(gin.Recovery())             // Panic recovery
	s.router.Use(cors.Default())             // CORS support (allows all origins)

	// Prometheus scrape endpoint
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Create API route group
	apiGroup := s.router.Group("/api")

	// Register service routes
	api.SetupHealthRoutes(apiGroup, s.db)
	api.SetupChannelRoutes(apiGroup, s.lifecycle)
	api.SetupMessageRoutes(apiGroup, s.lifecycle)
	api.SetupAdminRoutes(apiGroup, s.lifecycle)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.setupRouter()

	// Start the background task scheduler
	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Re-arm monitors and reconciliations lost with a previous process
	if err := s.lifecycle.RecoverInterrupted(context.Background()); err != nil {
		return fmt.Errorf("failed to recover interrupted channels: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.server = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	logger.Log.Info().
		Str("host", s.config.Server.Host).
		Int("port", s.config.Server.Port).
		Msg("Starting HTTP server")

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Log.Info().Msg("Shutting down server gracefully")

	// Stop accepting new tasks and let running ones finish
	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	// Check if server was started before attempting shutdown
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logger.Log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}

	logger.Log.Info().Msg("Server stopped")
	return nil
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/gameeflow-project/gameeflow/internal/client"
	"github.com/gameeflow-project/gameeflow/internal/config"
	"github.com/gameeflow-project/gameeflow/internal/events"
	"github.com/gameeflow-project/gameeflow/internal/scheduler"
	"github.com/gameeflow-project/gameeflow/internal/transport"
)

// Server is the REST control API for GameeFlow.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus

	session   *transport.Session
	client    *client.Client
	submitter *client.Submitter
	sched     *scheduler.Scheduler

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, eventBus *events.EventBus, session *transport.Session,
	cl *client.Client, submitter *client.Submitter, sched *scheduler.Scheduler) *Server {
	// Set Gin mode based on log level
	if cfg.GetApplicationData().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:       cfg,
		eventBus:  eventBus,
		session:   session,
		client:    cl,
		submitter: submitter,
		sched:     sched,
	}
}

// Start initializes and starts the API server. It blocks until the context
// is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.GetApplicationData().API.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("REST API server starting")

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}

	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	security := s.cfg.GetApplicationData().Security

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	// CORS
	allowedOrigins := security.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	// Rate limiting
	rateLimiter := NewRateLimiter(security.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	// Auth middleware
	auth := NewAuthMiddleware(s.cfg)
	router.Use(auth.IPWhitelist())

	// ---- Public endpoints (no auth required) ----
	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/get_version", s.handleGetVersion)
		public.GET("/get_system_info", s.handleGetSystemInfo)
	}

	// ---- Protected endpoints ----
	protected := router.Group("/api")
	protected.Use(auth.RequireAuth())

	// Monitor endpoints (read-only)
	monitor := protected.Group("/monitor")
	{
		monitor.GET("/get_status", s.handleGetStatus)
		monitor.GET("/get_profile", s.handleGetProfile)
		monitor.GET("/get_leaderboards", s.handleGetLeaderboards)
		monitor.GET("/get_cpu_usage", s.handleGetCPUUsage)
		monitor.GET("/get_memory_usage", s.handleGetMemoryUsage)
		monitor.GET("/get_disk_usage", s.handleGetDiskUsage)
		monitor.GET("/get_log_entries", s.handleGetLogEntries)
	}

	// Control endpoints (mutate backend state)
	control := protected.Group("/control")
	{
		control.POST("/connect", s.handleConnect)
		control.POST("/disconnect", s.handleDisconnect)
		control.POST("/authenticate", s.handleAuthenticate)
		control.POST("/start_endless", s.handleStartEndless)
		control.POST("/stop_endless", s.handleStopEndless)
		control.POST("/submit_score", s.handleSubmitScore)
		control.POST("/collect_reward", s.handleCollectReward)
		control.POST("/refresh_leaderboards", s.handleRefreshLeaderboards)
		control.POST("/collect_bonus/:bonus_id", s.handleCollectBonus)
		control.POST("/payout", s.handlePayout)
		control.POST("/swap", s.handleSwap)
	}

	// Configure endpoints
	configure := protected.Group("/configure")
	{
		configure.GET("/get_config", s.handleGetConfig)
		configure.POST("/set_backend_data", s.handleSetBackendData)
		configure.POST("/set_app_data", s.handleSetAppData)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

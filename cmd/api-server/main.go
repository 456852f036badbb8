package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/finaudit/audit-engine/configs"
	"github.com/finaudit/audit-engine/internal/analysis"
	"github.com/finaudit/audit-engine/internal/analytics"
	"github.com/finaudit/audit-engine/internal/auth"
	"github.com/finaudit/audit-engine/internal/models"
	"github.com/finaudit/audit-engine/internal/queue"
	"github.com/finaudit/audit-engine/internal/records"
	"github.com/finaudit/audit-engine/internal/reports"
	"github.com/finaudit/audit-engine/internal/repositories"
	"github.com/finaudit/audit-engine/internal/services"
	"github.com/finaudit/audit-engine/internal/storage"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := configs.Load()

	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Msg("Starting Audit Engine API Server")

	// Initialize database
	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis
	streamClient, err := queue.NewRedisStreamClient(cfg.Redis, cfg.Worker.DeadLetterStream)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Stream")
	}
	defer streamClient.Close()

	cacheClient, err := queue.NewCacheClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Cache")
	}
	defer cacheClient.Close()

	// Initialize object storage
	store, err := storage.New(context.Background(), cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to object storage")
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	orgRepo := repositories.NewOrganizationRepository(db)
	recordRepo := repositories.NewRecordRepository(db)
	reportRepo := repositories.NewReportRepository(db)
	activityRepo := repositories.NewActivityRepository(db)

	// Initialize services
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiration)
	authService := services.NewAuthService(userRepo, jwtManager)
	adminService := services.NewAdminService(db, orgRepo, userRepo, recordRepo)
	engine := analysis.NewEngine(recordRepo, store, analysis.Config{
		HighValueThreshold: cfg.Analysis.HighValueThreshold,
	})
	recordService := records.NewService(recordRepo, activityRepo, store, streamClient, engine)
	reportService := reports.NewService(reportRepo, recordRepo, activityRepo)
	analyticsService := analytics.NewService(recordRepo, activityRepo, db, cacheClient, streamClient)

	// Setup Gin router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())

	// Rate limiting: 100 requests per minute per IP
	rateLimiter := NewRateLimiter(100, time.Minute)
	router.Use(rateLimitMiddleware(rateLimiter))

	setupRoutes(router, jwtManager, authService, adminService, recordService, reportService, analyticsService, db)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func setupRoutes(
	router *gin.Engine,
	jwtManager *auth.JWTManager,
	authService *services.AuthService,
	adminService *services.AdminService,
	recordService *records.Service,
	reportService *reports.Service,
	analyticsService *analytics.Service,
	db *repositories.Database,
) {
	// Health check
	router.GET("/health", func(c *gin.Context) {
		if err := db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	v1 := router.Group("/api/v1")

	// Auth routes (public)
	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/register", registerHandler(authService))
		authRoutes.POST("/login", loginHandler(authService))
		authRoutes.POST("/refresh", auth.AuthMiddleware(jwtManager), refreshTokenHandler(authService))
		authRoutes.GET("/me", auth.AuthMiddleware(jwtManager), getCurrentUserHandler(authService))
	}

	// Protected routes
	protected := v1.Group("")
	protected.Use(auth.AuthMiddleware(jwtManager))

	// Record routes
	recordRoutes := protected.Group("/records")
	{
		recordRoutes.POST("", uploadRecordHandler(recordService, analyticsService))
		recordRoutes.GET("", listRecordsHandler(recordService))
		recordRoutes.GET("/:id", getRecordHandler(recordService))
		recordRoutes.POST("/:id/flags/:flag/status", updateFlagStatusHandler(recordService))

		staffOnly := recordRoutes.Group("")
		staffOnly.Use(auth.RoleMiddleware(models.RoleAdmin, models.RoleStaff))
		{
			staffOnly.POST("/:id/analyze", analyzeRecordHandler(recordService, analyticsService))
			staffOnly.POST("/:id/reset", resetRecordHandler(recordService, analyticsService))
			staffOnly.DELETE("/:id", deleteRecordHandler(recordService, analyticsService))
		}
	}

	// Report routes
	reportRoutes := protected.Group("/reports")
	{
		reportRoutes.POST("", saveReportHandler(reportService))
		reportRoutes.GET("", listReportsHandler(reportService))
		reportRoutes.GET("/:id", getReportHandler(reportService))
		reportRoutes.POST("/generate", auth.RoleMiddleware(models.RoleAdmin, models.RoleStaff), generateReportHandler(reportService))
		reportRoutes.POST("/:id/finalize", auth.RoleMiddleware(models.RoleAdmin, models.RoleStaff), finalizeReportHandler(reportService))
		reportRoutes.DELETE("/:id", auth.RoleMiddleware(models.RoleAdmin, models.RoleStaff), deleteReportHandler(reportService))
	}

	// Activity feed
	protected.GET("/activities", listActivitiesHandler(recordService))

	// Analytics routes
	analyticsRoutes := protected.Group("/analytics")
	{
		analyticsRoutes.GET("/dashboard", getDashboardHandler(analyticsService))
		analyticsRoutes.GET("/risk-distribution", getRiskDistributionHandler(analyticsService))
		analyticsRoutes.GET("/uploads/daily", getDailyUploadsHandler(analyticsService))
		analyticsRoutes.GET("/live", getLiveFeedHandler(analyticsService))
	}

	// Metrics routes (admin only)
	metricsRoutes := protected.Group("/metrics")
	metricsRoutes.Use(auth.RoleMiddleware(models.RoleAdmin))
	{
		metricsRoutes.GET("/system", getSystemMetricsHandler(analyticsService))
	}

	// Admin routes
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RoleMiddleware(models.RoleAdmin))
	{
		adminRoutes.POST("/organizations", createOrganizationHandler(adminService))
		adminRoutes.GET("/organizations", listOrganizationsHandler(adminService))
		adminRoutes.GET("/organizations/:id", getOrganizationHandler(adminService))
		adminRoutes.GET("/organizations/:id/users", listUsersHandler(adminService))
		adminRoutes.GET("/records", listAllRecordsHandler(adminService))
		adminRoutes.POST("/users/:id/status", setUserStatusHandler(adminService))
		adminRoutes.POST("/users/:id/organization", assignUserHandler(adminService))
	}
}

// Middleware

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("%d", time.Now().UnixNano())
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("request_id", c.GetString("request_id")).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimiter implements a simple in-memory rate limiter using token bucket algorithm
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	// Clean up old visitors periodically
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	now := time.Now()

	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastSeen: now}
		return true
	}

	// Refill tokens based on time elapsed
	elapsed := now.Sub(v.lastSeen)
	refill := int(elapsed / (rl.window / time.Duration(rl.rate)))
	v.tokens += refill
	if v.tokens > rl.rate {
		v.tokens = rl.rate
	}
	v.lastSeen = now

	if v.tokens > 0 {
		v.tokens--
		return true
	}

	return false
}

func rateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.Allow(ip) {
			c.Header("Retry-After", "60")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 60,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	identityapp "github.com/roster/backend/internal/application/identity"
	"github.com/roster/backend/internal/infrastructure/auth"
	"github.com/roster/backend/internal/infrastructure/cache"
	"github.com/roster/backend/internal/infrastructure/config"
	"github.com/roster/backend/internal/infrastructure/logger"
	"github.com/roster/backend/internal/infrastructure/persistence"
	"github.com/roster/backend/internal/interfaces/http/handler"
	"github.com/roster/backend/internal/interfaces/http/middleware"
	"github.com/roster/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Roster Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Redis backs session revocation, upload dedup and report retention.
	// Without it the server falls back to in-process stores, which is fine
	// for a single instance.
	var (
		sessionStore auth.SessionStore
		dedupStore   cache.DedupStore
		reportStore  cache.ReportStore
	)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis unavailable, using in-memory session and batch stores", zap.Error(err))
		sessionStore = auth.NewInMemorySessionStore()
		memDedup := cache.NewInMemoryDedupStore()
		defer func() { _ = memDedup.Close() }()
		dedupStore = memDedup
		reportStore = cache.NewInMemoryReportStore()
	} else {
		log.Info("Redis connected successfully")
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
		sessionStore = auth.NewRedisSessionStore(redisClient)
		dedupStore = cache.NewRedisDedupStore(redisClient, "upload:batch")
		reportStore = cache.NewRedisReportStore(redisClient)
	}
	cancelPing()

	// Initialize repositories
	userRepo := persistence.NewGormUserRepository(db.DB)
	groupRepo := persistence.NewGormGroupRepository(db.DB)
	courseRepo := persistence.NewGormCourseRepository(db.DB)
	roleRepo := persistence.NewGormRoleRepository(db.DB)
	enrolmentRepo := persistence.NewGormEnrolmentRepository(db.DB)
	txRunner := persistence.NewGormTxRunner(db.DB)

	// Identity services
	jwtService := auth.NewJWTService(cfg.JWT)
	capabilityResolver := identityapp.NewRoleCapabilityResolver(enrolmentRepo, log)
	authService := identityapp.NewAuthService(userRepo, capabilityResolver, jwtService, sessionStore, cfg.Tenant.DefaultRealm, log)
	sessionRevoker := auth.NewSessionRevoker(sessionStore, cfg.JWT.AccessTokenExpiration)

	// Scope derivation shared by all scoped handlers
	scopes := handler.NewScopeBuilder(userRepo, cfg.Tenant)

	// Context new groups are created in
	groupContextID := uuid.Nil
	if cfg.Tenant.GroupContextID != "" {
		groupContextID, err = uuid.Parse(cfg.Tenant.GroupContextID)
		if err != nil {
			log.Fatal("Invalid tenant.group_context_id", zap.Error(err))
		}
	}

	// Initialize HTTP handlers
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userRepo, userRepo, capabilityResolver, scopes, log)
	groupHandler := handler.NewGroupHandler(groupRepo, userRepo, scopes, groupContextID, log)
	uploadHandler := handler.NewUploadHandler(
		userRepo,
		groupRepo,
		courseRepo,
		roleRepo,
		enrolmentRepo,
		txRunner,
		sessionRevoker,
		dedupStore,
		reportStore,
		scopes,
		cfg.Upload,
		groupContextID,
		log,
	)
	systemHandler := handler.NewSystemHandler(db.DB)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Tracing - Create request spans
	// 4. Logger - Log requests
	// 5. Security - Add security headers
	// 6. CORS - Handle cross-origin requests
	// 7. BodyLimit - Limit request body size
	// 8. RateLimit - Apply rate limiting (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing())
	engine.Use(middleware.TraceFields())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Rate limiting (if enabled)
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Apply JWT authentication middleware to API routes
	// Configure skip paths for public endpoints
	jwtConfig := middleware.JWTMiddlewareConfig{
		JWTService: jwtService,
		Sessions:   sessionStore,
		SkipPaths: []string{
			"/api/v1/auth/login",
			"/api/v1/auth/refresh",
			"/api/v1/system/ping",
			"/api/v1/system/info",
			"/api/v1/system/health",
		},
		Logger: log,
	}
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	// Register route groups
	r.Register(authHandler).
		Register(userHandler).
		Register(groupHandler).
		Register(uploadHandler).
		Register(systemHandler)

	// Setup routes
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		resp := gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		}
		if stats, err := db.Stats(); err == nil {
			resp["pool"] = stats
		}
		c.JSON(http.StatusOK, resp)
	}
}

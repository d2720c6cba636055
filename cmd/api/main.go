package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"crmaudit/internal/config"
	"crmaudit/internal/database"
	"crmaudit/internal/handlers"
	"crmaudit/internal/hashchain"
	"crmaudit/internal/jobs"
	"crmaudit/internal/logger"
	"crmaudit/internal/metrics"
	"crmaudit/internal/middleware"
	"crmaudit/internal/models"
	"crmaudit/internal/notify"
	"crmaudit/internal/services"
	"crmaudit/internal/tracing"
	"crmaudit/internal/validator"

	_ "crmaudit/internal/docs" // Import swagger docs
)

// @title           CRM Audit Trail API
// @version         1.0
// @description     Tamper-evident audit trail for CRM domain events: hash-chained records, verification, compliance reporting and retention.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

const shutdownTimeout = 30 * time.Second

var adminRoles = []string{"admin", "manager"}

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// A broken hash engine would seal records that can never verify.
	if err := hashchain.SelfTest(); err != nil {
		return fmt.Errorf("hash engine self-test failed: %w", err)
	}

	tracer, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "crmaudit-api",
		Environment:  appConfig.Env,
		Enabled:      appConfig.TracingEnabled,
		OTLPEndpoint: appConfig.TracingEndpoint,
		SamplingRate: appConfig.TracingSamplingRate,
		Insecure:     appConfig.TracingInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Initialize database configuration
	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnw("failed to close database", "error", err)
		}
	}()

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	m := metrics.NewMetrics()
	registry, err := metrics.NewRegistry(m)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	sink, err := buildSink(appConfig)
	if err != nil {
		return err
	}

	fallback, err := logger.NewJSONFile("audit.fallback", appConfig.FallbackPath)
	if err != nil {
		return fmt.Errorf("failed to open audit fallback log: %w", err)
	}

	// Initialize services
	store := services.NewAuditStore(dbManager.DB())
	commands := services.NewAuditCommandService(services.CommandDeps{
		Store:    store,
		Sink:     sink,
		Fallback: fallback,
		Metrics:  m,
	}, services.CommandConfig{
		Workers:   appConfig.AuditWorkers,
		QueueSize: appConfig.AuditQueueSize,
		Retention: appConfig.RetentionPeriod(),
	})
	query := services.NewAuditQueryService(store, services.QueryConfig{ExpiryWarning: appConfig.ExpiryWarning()})
	retention := services.NewAuditRetentionService(store, query, commands, m)

	scheduler, err := jobs.NewScheduler(retention, jobs.Config{VerifySchedule: appConfig.VerifySchedule})
	if err != nil {
		return err
	}

	// Initialize handlers
	auditHandler := handlers.NewAuditHandler(commands, query, retention)
	webhookHandler := handlers.NewWebhookHandler(commands)

	validator.Register()

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.AuditContext())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Session-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := dbManager.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", metrics.Handler(registry))

	// Integration ingestion
	webhook := router.Group("/webhook", middleware.WebhookAuthMiddleware(appConfig.WebhookAPIKey, commands))
	webhook.POST("/audit/events", webhookHandler.IngestEvent)

	// API v1 group
	v1 := router.Group("/api/v1")

	// Protected routes
	admin := v1.Group("/admin/audit")
	admin.Use(middleware.AuthMiddleware(), middleware.RequireRole(commands, adminRoles...))
	auditHandler.RegisterRoutes(admin)

	server := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	scheduler.Start()

	if _, err := commands.LogSync(context.Background(), services.Entry{
		Category:   models.CategorySystemStartup,
		EntityType: "SYSTEM",
		EntityID:   "crmaudit-api",
		After:      map[string]any{"env": appConfig.Env, "workers": appConfig.AuditWorkers},
	}); err != nil {
		log.Errorw("failed to record startup", "error", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting CRM audit server on port %s", appConfig.Port)
		log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		log.Infow("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
	}
	// Drains queued audit events before the database closes.
	if err := commands.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("audit drain: %w", err))
	}
	if err := tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// buildSink always logs escalations and also publishes them to Redis when
// REDIS_URL is set.
func buildSink(cfg *config.Config) (notify.Sink, error) {
	sinks := notify.Multi{notify.NewLogSink(logger.Named("audit.notify"))}
	if cfg.RedisURL == "" {
		return sinks, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := notify.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return append(sinks, notify.NewRedisSink(client, cfg.NotifyChannel)), nil
}

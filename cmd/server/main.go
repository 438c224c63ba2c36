package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	billingapp "github.com/littleloop/backend/internal/application/billing"
	forecastapp "github.com/littleloop/backend/internal/application/forecast"
	householdapp "github.com/littleloop/backend/internal/application/household"
	reorderapp "github.com/littleloop/backend/internal/application/reorder"
	retailapp "github.com/littleloop/backend/internal/application/retail"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/domain/tax"
	"github.com/littleloop/backend/internal/infrastructure/cache"
	"github.com/littleloop/backend/internal/infrastructure/commerce"
	"github.com/littleloop/backend/internal/infrastructure/config"
	"github.com/littleloop/backend/internal/infrastructure/logger"
	"github.com/littleloop/backend/internal/infrastructure/payment"
	"github.com/littleloop/backend/internal/infrastructure/persistence"
	"github.com/littleloop/backend/internal/infrastructure/scheduler"
	"github.com/littleloop/backend/internal/interfaces/http/handler"
	"github.com/littleloop/backend/internal/interfaces/http/middleware"
	"github.com/littleloop/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting LittleLoop Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := db.AutoMigrate(); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize repositories
	householdRepo := persistence.NewGormHouseholdRepository(db.DB)
	predictionRepo := persistence.NewGormPredictionRepository(db.DB)
	usageStore := persistence.NewGormUsageHistoryStore(db.DB)
	inventoryStore := persistence.NewGormInventoryStore(db.DB)
	configRepo := persistence.NewGormRetailerConfigurationRepository(db.DB)
	subscriptionRepo := persistence.NewGormSubscriptionRepository(db.DB)
	transactionRepo := persistence.NewGormTransactionRepository(db.DB)

	// Idempotency store: Redis when configured, in-memory otherwise
	var idempotencyStore shared.IdempotencyStore
	if cfg.Redis.Enabled {
		redisStore, err := cache.NewRedisIdempotencyStore(&cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisStore.Close(); err != nil {
				log.Error("Error closing Redis", zap.Error(err))
			}
		}()
		idempotencyStore = redisStore
		log.Info("Redis idempotency store enabled", zap.String("addr", cfg.Redis.Addr()))
	} else {
		idempotencyStore = cache.NewInMemoryIdempotencyStore()
		log.Info("In-memory idempotency store enabled")
	}

	// Payment gateway
	stripeConfig := payment.DefaultStripeConfig()
	stripeConfig.SecretKey = cfg.Stripe.SecretKey
	stripeConfig.WebhookSecret = cfg.Stripe.WebhookSecret
	if cfg.Stripe.Currency != "" {
		stripeConfig.DefaultCurrency = cfg.Stripe.Currency
	}
	stripeConfig.IsTestMode = cfg.App.Env != "production"
	gateway, err := payment.NewStripeAdapter(stripeConfig, log)
	if err != nil {
		log.Fatal("Failed to initialize payment gateway", zap.Error(err))
	}

	// Retailer backends
	amazonConfig := commerce.NewAmazonConfig()
	amazonConfig.Host = cfg.Amazon.Host
	amazonConfig.Region = cfg.Amazon.Region
	amazonConfig.Marketplace = cfg.Amazon.Marketplace
	amazonConfig.TimeoutSeconds = int(cfg.Amazon.Timeout.Seconds())
	amazonBackend, err := commerce.NewAmazonAdapter(amazonConfig)
	if err != nil {
		log.Fatal("Failed to initialize Amazon backend", zap.Error(err))
	}

	walmartConfig := commerce.NewWalmartConfig()
	walmartConfig.BaseURL = cfg.Walmart.BaseURL
	walmartConfig.TimeoutSeconds = int(cfg.Walmart.Timeout.Seconds())
	walmartBackend, err := commerce.NewWalmartAdapter(walmartConfig)
	if err != nil {
		log.Fatal("Failed to initialize Walmart backend", zap.Error(err))
	}

	registry := commerce.NewBackendRegistry(amazonBackend, walmartBackend)

	// Forecast model cache
	modelCache := cache.NewModelCache(cfg.Forecast.ModelCacheTTL)

	// Tax calculator
	taxes := tax.NewCalculator()

	// Initialize application services
	forecasterService := forecastapp.NewForecasterService(
		householdRepo, usageStore, inventoryStore, predictionRepo,
		modelCache, &cfg.Forecast, log,
	)
	orchestratorService := reorderapp.NewOrchestratorService(
		householdRepo, configRepo, registry, transactionRepo,
		gateway, taxes, &cfg.Order, log,
	)
	subscriptionService := billingapp.NewSubscriptionService(
		householdRepo, subscriptionRepo, gateway, taxes, log,
	)
	webhookService := billingapp.NewWebhookService(
		stripeConfig, subscriptionRepo, transactionRepo, householdRepo,
		idempotencyStore, shared.DefaultIdempotencyConfig(), log,
	)
	householdService := householdapp.NewHouseholdService(
		householdRepo, usageStore, inventoryStore, forecasterService, log,
	)
	configurationService := retailapp.NewConfigurationService(
		householdRepo, configRepo, registry, cfg.Order.CallTimeout, log,
	)

	// Background schedulers
	var reorderScheduler *scheduler.ReorderScheduler
	var pricingScheduler *scheduler.PricingRefreshScheduler
	if cfg.Scheduler.Enabled {
		scanner := scheduler.NewHouseholdRepositoryScanner(householdRepo)
		executor := scheduler.NewForecastReorderExecutor(
			householdRepo, forecasterService, orchestratorService, log,
		)
		reorderScheduler, err = scheduler.NewReorderScheduler(scheduler.ReorderSchedulerConfig{
			Enabled:           cfg.Scheduler.Enabled,
			ScanInterval:      cfg.Scheduler.ScanInterval,
			MaxConcurrentJobs: cfg.Scheduler.MaxConcurrent,
			JobTimeout:        cfg.Scheduler.JobTimeout,
		}, scanner, executor, log)
		if err != nil {
			log.Fatal("Failed to initialize reorder scheduler", zap.Error(err))
		}
		if err := reorderScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start reorder scheduler", zap.Error(err))
		}
		log.Info("Reorder scheduler started",
			zap.Duration("scan_interval", cfg.Scheduler.ScanInterval),
			zap.Int("max_concurrent", cfg.Scheduler.MaxConcurrent),
		)

		pricingScheduler, err = scheduler.NewPricingRefreshScheduler(scheduler.PricingRefreshSchedulerConfig{
			Enabled:     cfg.Scheduler.Enabled,
			Interval:    cfg.Scheduler.PricingInterval,
			CallTimeout: cfg.Order.CallTimeout,
		}, householdRepo, configRepo, transactionRepo, registry, log)
		if err != nil {
			log.Fatal("Failed to initialize pricing scheduler", zap.Error(err))
		}
		if err := pricingScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start pricing scheduler", zap.Error(err))
		}
		log.Info("Pricing refresh scheduler started",
			zap.Duration("interval", cfg.Scheduler.PricingInterval),
		)
	}

	// Gin setup
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
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

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitRequests > 0 {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
	}

	engine.GET("/health", healthHandler(db))

	// Register routes
	r := router.NewRouter(engine)
	r.Register(handler.NewHouseholdHandler(householdService)).
		Register(handler.NewForecastHandler(forecasterService)).
		Register(handler.NewOrderHandler(orchestratorService)).
		Register(handler.NewSubscriptionHandler(subscriptionService)).
		Register(handler.NewRetailerHandler(configurationService)).
		Register(handler.NewWebhookHandler(webhookService)).
		Register(handler.NewSystemHandler())
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

	if reorderScheduler != nil {
		if err := reorderScheduler.Stop(ctx); err != nil {
			log.Warn("Reorder scheduler stopped with error", zap.Error(err))
		}
	}
	if pricingScheduler != nil {
		pricingScheduler.Stop()
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database) gin.HandlerFunc {
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
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}

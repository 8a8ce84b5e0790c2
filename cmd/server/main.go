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
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-predictor/internal/api"
	"github.com/stitts-dev/match-predictor/internal/api/handlers"
	"github.com/stitts-dev/match-predictor/internal/api/middleware"
	"github.com/stitts-dev/match-predictor/internal/cache"
	"github.com/stitts-dev/match-predictor/internal/coordinator"
	"github.com/stitts-dev/match-predictor/internal/models"
	"github.com/stitts-dev/match-predictor/internal/providers"
	"github.com/stitts-dev/match-predictor/internal/realtime"
	"github.com/stitts-dev/match-predictor/internal/services"
	"github.com/stitts-dev/match-predictor/internal/worker"
	"github.com/stitts-dev/match-predictor/pkg/config"
	"github.com/stitts-dev/match-predictor/pkg/database"
)

const (
	// negativeResultCooldown is how long a pair is left alone after the
	// upstream pipeline reported no data for it.
	negativeResultCooldown = 60 * time.Second
	// requestDebounceDelay collapses bursts of identical prediction requests.
	requestDebounceDelay = 300 * time.Millisecond
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Setup logging
	if cfg.IsDevelopment() {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		gin.SetMode(gin.DebugMode)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
		logrus.SetFormatter(&logrus.JSONFormatter{})
		gin.SetMode(gin.ReleaseMode)
	}
	logger := logrus.StandardLogger()

	logrus.WithFields(logrus.Fields{
		"env":     cfg.Env,
		"port":    cfg.Port,
		"leagues": cfg.SupportedLeagues,
	}).Info("Configuration loaded")

	// Connect to database
	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Connect to Redis. The cache layer degrades to pass-through when redis
	// is down, so only a bad URL is fatal.
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logrus.Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opt)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logrus.Warnf("Redis unavailable, running without shared cache: %v", err)
		_ = redisClient.Close()
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	// Initialize services
	cacheService := services.NewCacheService(redisClient)
	resultCache := cache.NewResultCache(cacheService, cfg.PredictionCacheTTL, negativeResultCooldown, logger)
	store := providers.NewMatchStore(db.DB, cacheService, logger)

	apiClient := providers.NewPredictionAPIClient(cfg.PredictionAPIURL, cfg.PredictionAPIKey, providers.APIClientOptions{
		Timeout:   cfg.LightLookupTimeout,
		RateLimit: cfg.PredictionRateLimit,
		Burst:     cfg.PredictionRateBurst,
	}, logger)

	pool := worker.NewPool(cfg.WorkerCount, logger)
	if err := pool.Start(); err != nil {
		logrus.Fatalf("Failed to start worker pool: %v", err)
	}

	hub := services.NewHub(logger)
	go hub.Run()

	coord := coordinator.NewCoordinator(resultCache, apiClient, store, pool, coordinator.Options{
		LookupTimeout: cfg.MatchLookupTimeout,
		Broadcaster:   hub,
	}, logger)
	debouncer := coordinator.NewDebouncer(requestDebounceDelay)

	// Realtime sync: push over websocket, pull through the API client while
	// degraded. Applied upstream rows refresh the cache and fan out to
	// dashboard clients.
	feed := realtime.NewFeedSource(cfg.RealtimeURL, apiClient.RecentRecords, logger)
	syncManager := realtime.NewSyncManager(feed, realtime.Config{
		MaxRetries:   cfg.RealtimeMaxRetries,
		BaseDelay:    cfg.RealtimeBaseDelay,
		MaxDelay:     cfg.RealtimeMaxDelay,
		PollInterval: cfg.PollInterval,
	}, hub, logger)
	syncManager.SetApplyHook(func(event models.RecordEvent) {
		record := event.New
		if record == nil {
			return
		}
		prediction := record.ToPrediction()
		pairKey := models.PairKey(record.HomeTeam, record.AwayTeam)
		resultCache.Put(context.Background(), pairKey, prediction)
		hub.BroadcastPredictionUpdate(pairKey, prediction)
	})
	if err := syncManager.Start(); err != nil {
		logrus.Errorf("Failed to start realtime sync: %v", err)
	}

	var scheduler *services.SchedulerService
	if cfg.EnableBackgroundJobs {
		scheduler = services.NewSchedulerService(db, resultCache, apiClient, cacheService, services.SchedulerOptions{
			AccuracyInterval: cfg.AccuracyRefreshInterval,
		}, logger)
		if err := scheduler.Start(); err != nil {
			logrus.Errorf("Failed to start scheduler: %v", err)
		}
	}

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CorsOrigins))

	statusHandler := handlers.NewStatusHandler(db, cacheService, pool, syncManager, hub, scheduler, apiClient)
	router.GET("/health", statusHandler.GetHealth)

	// WebSocket endpoint at root level (not under /api/v1)
	router.GET("/ws", hub.HandleWebSocket)

	// Setup API routes under /api/v1
	apiV1 := router.Group("/api/v1")
	api.SetupRoutes(apiV1, api.Deps{
		DB:          db,
		Cache:       cacheService,
		ResultCache: resultCache,
		Coordinator: coord,
		Debouncer:   debouncer,
		Pool:        pool,
		Store:       store,
		APIClient:   apiClient,
		Sync:        syncManager,
		Hub:         hub,
		Scheduler:   scheduler,
		Logger:      logger,
	})

	// Log all registered routes
	logrus.Info("=== REGISTERED ROUTES ===")
	for _, route := range router.Routes() {
		logrus.Infof("%s %s", route.Method, route.Path)
	}
	logrus.Info("=========================")

	// Setup server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logrus.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	// Stop intake first, then drain the compute path, then the fan-out.
	if err := syncManager.Stop(); err != nil {
		logrus.Errorf("Failed to stop realtime sync: %v", err)
	}
	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			logrus.Errorf("Failed to stop scheduler: %v", err)
		}
	}
	debouncer.Stop()
	coord.Wait()
	if err := pool.Stop(); err != nil {
		logrus.Errorf("Failed to stop worker pool: %v", err)
	}
	hub.Stop()

	logrus.Info("Server exited")
}

package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-predictor/internal/api/handlers"
	"github.com/stitts-dev/match-predictor/internal/cache"
	"github.com/stitts-dev/match-predictor/internal/coordinator"
	"github.com/stitts-dev/match-predictor/internal/providers"
	"github.com/stitts-dev/match-predictor/internal/realtime"
	"github.com/stitts-dev/match-predictor/internal/services"
	"github.com/stitts-dev/match-predictor/internal/worker"
	"github.com/stitts-dev/match-predictor/pkg/database"
)

// Deps carries everything the route handlers need. main.go fills it once
// after wiring the services.
type Deps struct {
	DB          *database.DB
	Cache       *services.CacheService
	ResultCache *cache.ResultCache
	Coordinator *coordinator.Coordinator
	Debouncer   *coordinator.Debouncer
	Pool        *worker.Pool
	Store       *providers.MatchStore
	APIClient   *providers.PredictionAPIClient
	Sync        *realtime.SyncManager
	Hub         *services.Hub
	Scheduler   *services.SchedulerService
	Logger      *logrus.Logger
}

// SetupRoutes registers the /api/v1 surface on the given group.
func SetupRoutes(group *gin.RouterGroup, deps Deps) {
	predictionHandler := handlers.NewPredictionHandler(deps.Coordinator, deps.Debouncer, deps.ResultCache, deps.Pool, deps.Store, deps.APIClient, deps.Logger)
	matchHandler := handlers.NewMatchHandler(deps.Store)
	accuracyHandler := handlers.NewAccuracyHandler(deps.DB, deps.Cache, deps.APIClient)
	statusHandler := handlers.NewStatusHandler(deps.DB, deps.Cache, deps.Pool, deps.Sync, deps.Hub, deps.Scheduler, deps.APIClient)

	group.POST("/predictions", predictionHandler.RequestPrediction)
	group.GET("/predictions/cached", predictionHandler.GetCachedPrediction)
	group.POST("/predictions/refresh", predictionHandler.TriggerRefresh)

	group.GET("/matches", matchHandler.ListMatches)
	group.GET("/accuracy", accuracyHandler.GetAccuracyStats)
	group.GET("/realtime/status", statusHandler.GetRealtimeStatus)
}

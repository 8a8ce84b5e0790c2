package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stitts-dev/match-predictor/internal/providers"
	"github.com/stitts-dev/match-predictor/internal/realtime"
	"github.com/stitts-dev/match-predictor/internal/services"
	"github.com/stitts-dev/match-predictor/internal/worker"
	"github.com/stitts-dev/match-predictor/pkg/database"
	"github.com/stitts-dev/match-predictor/pkg/utils"
)

const healthCheckTimeout = 2 * time.Second

type StatusHandler struct {
	db        *database.DB
	cache     *services.CacheService
	pool      *worker.Pool
	sync      *realtime.SyncManager
	hub       *services.Hub
	scheduler *services.SchedulerService
	apiClient *providers.PredictionAPIClient
}

func NewStatusHandler(db *database.DB, cacheSvc *services.CacheService, pool *worker.Pool, sync *realtime.SyncManager, hub *services.Hub, scheduler *services.SchedulerService, apiClient *providers.PredictionAPIClient) *StatusHandler {
	if cacheSvc == nil {
		cacheSvc = services.NewCacheService(nil)
	}
	return &StatusHandler{
		db:        db,
		cache:     cacheSvc,
		pool:      pool,
		sync:      sync,
		hub:       hub,
		scheduler: scheduler,
		apiClient: apiClient,
	}
}

// GetRealtimeStatus reports the sync state machine position plus how many
// dashboard clients are listening.
func (h *StatusHandler) GetRealtimeStatus(c *gin.Context) {
	status := h.sync.Status()
	utils.SendSuccess(c, gin.H{
		"connection":   status,
		"records_held": len(h.sync.Records()),
		"ws_clients":   h.hub.GetConnectionCount(),
	})
}

// GetHealth reports component health. The database and the worker pool are
// required; redis and the upstream pipeline only degrade the report.
func (h *StatusHandler) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	components := gin.H{
		"database": "up",
		"redis":    "up",
		"workers":  "up",
	}
	healthy := true

	if err := h.db.Health(ctx); err != nil {
		components["database"] = "down"
		healthy = false
	}
	if !h.cache.Healthy(ctx) {
		components["redis"] = "down"
	}
	if !h.pool.IsRunning() {
		components["workers"] = "down"
		healthy = false
	}
	if h.sync != nil {
		components["realtime"] = string(h.sync.Status().State)
	}
	if h.apiClient != nil {
		components["prediction_api"] = h.apiClient.BreakerState().String()
	}

	payload := gin.H{
		"status":     "ok",
		"components": components,
		"time":       time.Now().UTC(),
	}
	if h.scheduler != nil {
		payload["jobs"] = h.scheduler.Status()
	}

	if !healthy {
		payload["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, payload)
		return
	}
	c.JSON(http.StatusOK, payload)
}

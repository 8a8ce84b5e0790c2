package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stitts-dev/match-predictor/internal/models"
	"github.com/stitts-dev/match-predictor/internal/providers"
	"github.com/stitts-dev/match-predictor/internal/services"
	"github.com/stitts-dev/match-predictor/pkg/database"
	"github.com/stitts-dev/match-predictor/pkg/utils"
)

const accuracyCacheTTL = 15 * time.Minute

type AccuracyHandler struct {
	db        *database.DB
	cache     *services.CacheService
	apiClient *providers.PredictionAPIClient
}

func NewAccuracyHandler(db *database.DB, cacheSvc *services.CacheService, apiClient *providers.PredictionAPIClient) *AccuracyHandler {
	if cacheSvc == nil {
		cacheSvc = services.NewCacheService(nil)
	}
	return &AccuracyHandler{
		db:        db,
		cache:     cacheSvc,
		apiClient: apiClient,
	}
}

// GetAccuracyStats serves model accuracy, local rows first and the upstream
// pipeline as a fallback when nothing is stored yet. Date filters take
// RFC3339 timestamps.
func (h *AccuracyHandler) GetAccuracyStats(c *gin.Context) {
	modelType := c.Query("model_type")

	var dateFrom, dateTo *time.Time
	if raw := c.Query("date_from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.SendValidationError(c, "Invalid date_from", err.Error())
			return
		}
		dateFrom = &parsed
	}
	if raw := c.Query("date_to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.SendValidationError(c, "Invalid date_to", err.Error())
			return
		}
		dateTo = &parsed
	}

	ctx := c.Request.Context()
	unfiltered := dateFrom == nil && dateTo == nil

	if unfiltered {
		var cached []models.AccuracyStat
		if err := h.cache.Get(ctx, services.AccuracyCacheKey(modelType), &cached); err == nil && len(cached) > 0 {
			utils.SendSuccess(c, cached)
			return
		}
	}

	query := h.db.WithContext(ctx).Order("period_end DESC")
	if modelType != "" {
		query = query.Where("model_type = ?", modelType)
	}
	if dateFrom != nil {
		query = query.Where("period_end >= ?", *dateFrom)
	}
	if dateTo != nil {
		query = query.Where("period_start <= ?", *dateTo)
	}

	var stats []models.AccuracyStat
	if err := query.Find(&stats).Error; err != nil {
		utils.SendInternalError(c, "Failed to load accuracy stats")
		return
	}

	if len(stats) == 0 && h.apiClient != nil {
		remote, err := h.apiClient.GetAccuracyStats(ctx, providers.AccuracyQuery{
			DateFrom:  dateFrom,
			DateTo:    dateTo,
			ModelType: modelType,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		stats = remote
	}

	if unfiltered && len(stats) > 0 {
		_ = h.cache.Set(ctx, services.AccuracyCacheKey(modelType), stats, accuracyCacheTTL)
	}

	if stats == nil {
		stats = []models.AccuracyStat{}
	}
	utils.SendSuccess(c, stats)
}

package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-predictor/internal/cache"
	"github.com/stitts-dev/match-predictor/internal/coordinator"
	"github.com/stitts-dev/match-predictor/internal/models"
	"github.com/stitts-dev/match-predictor/internal/providers"
	"github.com/stitts-dev/match-predictor/internal/worker"
	"github.com/stitts-dev/match-predictor/pkg/utils"
)

type PredictionHandler struct {
	coordinator *coordinator.Coordinator
	debouncer   *coordinator.Debouncer
	resultCache *cache.ResultCache
	pool        *worker.Pool
	store       *providers.MatchStore
	apiClient   *providers.PredictionAPIClient
	logger      *logrus.Logger
}

func NewPredictionHandler(coord *coordinator.Coordinator, debouncer *coordinator.Debouncer, resultCache *cache.ResultCache, pool *worker.Pool, store *providers.MatchStore, apiClient *providers.PredictionAPIClient, logger *logrus.Logger) *PredictionHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PredictionHandler{
		coordinator: coord,
		debouncer:   debouncer,
		resultCache: resultCache,
		pool:        pool,
		store:       store,
		apiClient:   apiClient,
		logger:      logger,
	}
}

// RequestPrediction resolves a prediction for one fixture. With odds in the
// body the ensemble runs locally against stored history and the response
// includes market picks. Without odds the request goes through the
// coordinator; a nil result (in flight, cooling down, or freshly dispatched
// baseline) is a 202 pending envelope, never an error. Setting debounce
// collapses request bursts per pair into a single coordinator call.
func (h *PredictionHandler) RequestPrediction(c *gin.Context) {
	var req struct {
		HomeTeam string             `json:"home_team" binding:"required"`
		AwayTeam string             `json:"away_team" binding:"required"`
		Odds     *models.MarketOdds `json:"odds"`
		Debounce bool               `json:"debounce"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}

	if req.Odds != nil {
		h.computeWithOdds(c, req.HomeTeam, req.AwayTeam, req.Odds)
		return
	}

	pairKey := models.PairKey(req.HomeTeam, req.AwayTeam)

	if req.Debounce {
		homeTeam, awayTeam := req.HomeTeam, req.AwayTeam
		h.debouncer.Trigger(pairKey, func() {
			ctx, cancel := context.WithTimeout(context.Background(), coordinator.DefaultLookupTimeout)
			defer cancel()
			if _, err := h.coordinator.Request(ctx, homeTeam, awayTeam); err != nil {
				h.logger.WithError(err).WithField("pair_key", pairKey).Warn("Debounced prediction request failed")
			}
		})
		utils.SendAccepted(c, gin.H{"status": "scheduled", "pair_key": pairKey})
		return
	}

	prediction, err := h.coordinator.Request(c.Request.Context(), req.HomeTeam, req.AwayTeam)
	if err != nil {
		respondError(c, err)
		return
	}
	if prediction == nil {
		utils.SendAccepted(c, gin.H{"status": "pending", "pair_key": pairKey})
		return
	}
	utils.SendSuccess(c, prediction)
}

// computeWithOdds runs the local ensemble directly. Missing history is fine:
// the worker falls back to the uniform baseline.
func (h *PredictionHandler) computeWithOdds(c *gin.Context, homeTeam, awayTeam string, odds *models.MarketOdds) {
	ctx := c.Request.Context()

	matches, err := h.store.GetMatchesBetweenTeams(ctx, homeTeam, awayTeam, providers.LookupOptions{})
	if err != nil {
		if !models.IsDataNotFound(err) {
			respondError(c, err)
			return
		}
		matches = nil
	}

	prediction, err := h.pool.Predict(ctx, matches, homeTeam, awayTeam, odds)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccess(c, prediction)
}

// GetCachedPrediction reads the pair's cache slot directly, which also
// serves the baseline stand-in while its pair is cooling down.
func (h *PredictionHandler) GetCachedPrediction(c *gin.Context) {
	homeTeam := c.Query("home_team")
	awayTeam := c.Query("away_team")
	if models.NormalizeTeam(homeTeam) == "" || models.NormalizeTeam(awayTeam) == "" {
		utils.SendValidationError(c, "home_team and away_team are required", "")
		return
	}

	prediction := h.resultCache.Get(c.Request.Context(), models.PairKey(homeTeam, awayTeam))
	if prediction == nil {
		utils.SendNotFound(c, "No cached prediction for this pair")
		return
	}
	utils.SendSuccess(c, prediction)
}

// TriggerRefresh asks the upstream pipeline to recompute its predictions.
func (h *PredictionHandler) TriggerRefresh(c *gin.Context) {
	accepted, err := h.apiClient.TriggerUpdate(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if !accepted {
		utils.SendSuccess(c, gin.H{"triggered": false})
		return
	}
	utils.SendAccepted(c, gin.H{"triggered": true})
}

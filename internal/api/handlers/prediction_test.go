package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/match-predictor/internal/models"
	"github.com/stitts-dev/match-predictor/pkg/utils"
)

func TestRequestPrediction_ServesServerPrediction(t *testing.T) {
	h := newHarness(t)
	h.provider.prediction = &models.Prediction{
		HomeTeam:           "Arsenal",
		AwayTeam:           "Chelsea",
		HomeWinProbability: 0.5,
		DrawProbability:    0.3,
		AwayWinProbability: 0.2,
		Source:             models.SourceServer,
		GeneratedAt:        time.Now().UTC(),
	}

	rec, env := doJSON(t, h.router, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
		"home_team": "Arsenal",
		"away_team": "Chelsea",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	var prediction models.Prediction
	require.NoError(t, json.Unmarshal(env.Data, &prediction))
	require.Equal(t, "Arsenal", prediction.HomeTeam)
	require.Equal(t, models.SourceServer, prediction.Source)
	require.InDelta(t, 0.5, prediction.HomeWinProbability, 1e-9)
}

func TestRequestPrediction_NoDataGoesPendingThenBaselineLands(t *testing.T) {
	h := newHarness(t)
	// Provider has nothing for the pair; no history is stored either.

	rec, env := doJSON(t, h.router, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
		"home_team": "Arsenal",
		"away_team": "Chelsea",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.True(t, env.Success)

	var pending map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	require.Equal(t, "pending", pending["status"])
	require.Equal(t, "arsenal|chelsea", pending["pair_key"])

	// The baseline is computed off the request path and lands in the cache.
	require.Eventually(t, func() bool {
		rec, _ := doJSON(t, h.router, http.MethodGet, "/api/v1/predictions/cached?home_team=Arsenal&away_team=Chelsea", nil)
		return rec.Code == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	_, env = doJSON(t, h.router, http.MethodGet, "/api/v1/predictions/cached?home_team=Arsenal&away_team=Chelsea", nil)
	var baseline models.Prediction
	require.NoError(t, json.Unmarshal(env.Data, &baseline))
	require.Equal(t, models.SourceBaseline, baseline.Source)
	require.InDelta(t, 0.1, baseline.Confidence, 1e-9)
	require.InDelta(t, 1.0/3.0, baseline.HomeWinProbability, 1e-6)
}

func TestRequestPrediction_MissingFieldRejected(t *testing.T) {
	h := newHarness(t)

	rec, env := doJSON(t, h.router, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
		"home_team": "Arsenal",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, env.Success)
	require.NotNil(t, env.Error)
	require.Equal(t, utils.ErrCodeValidation, env.Error.Code)
	require.Zero(t, h.provider.callCount())
}

func TestRequestPrediction_SameTeamsRejected(t *testing.T) {
	h := newHarness(t)

	rec, env := doJSON(t, h.router, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
		"home_team": "Arsenal",
		"away_team": "arsenal",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, utils.ErrCodeValidation, env.Error.Code)
	require.Zero(t, h.provider.callCount())
}

func TestRequestPrediction_ProviderOutageIsServiceUnavailable(t *testing.T) {
	h := newHarness(t)
	h.provider.err = &models.ServiceError{Op: "prediction lookup", StatusCode: 502, Err: errors.New("bad gateway")}

	rec, env := doJSON(t, h.router, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
		"home_team": "Arsenal",
		"away_team": "Chelsea",
	})

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, utils.ErrCodeServiceUnavailable, env.Error.Code)
}

func TestRequestPrediction_DebounceCollapsesBurst(t *testing.T) {
	h := newHarness(t)
	h.provider.prediction = &models.Prediction{
		HomeTeam:           "Arsenal",
		AwayTeam:           "Chelsea",
		HomeWinProbability: 0.5,
		DrawProbability:    0.3,
		AwayWinProbability: 0.2,
	}

	for i := 0; i < 3; i++ {
		rec, env := doJSON(t, h.router, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
			"home_team": "Arsenal",
			"away_team": "Chelsea",
			"debounce":  true,
		})
		require.Equal(t, http.StatusAccepted, rec.Code)

		var scheduled map[string]string
		require.NoError(t, json.Unmarshal(env.Data, &scheduled))
		require.Equal(t, "scheduled", scheduled["status"])
	}

	require.Eventually(t, func() bool {
		return h.provider.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Give a late second fire every chance to show up.
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, 1, h.provider.callCount())
}

func TestRequestPrediction_OddsRunEnsembleWithMarketPicks(t *testing.T) {
	h := newHarness(t)
	h.seedMatches(t, "Arsenal", "Chelsea", 8)

	rec, env := doJSON(t, h.router, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
		"home_team": "Arsenal",
		"away_team": "Chelsea",
		"odds": map[string]float64{
			"home_win": 2.0,
			"draw":     3.4,
			"away_win": 3.8,
			"over_2_5": 1.9,
			"btts_yes": 1.8,
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, h.provider.callCount(), "odds requests run locally")

	var prediction models.Prediction
	require.NoError(t, json.Unmarshal(env.Data, &prediction))
	require.Equal(t, models.SourceBaseline, prediction.Source)
	require.NotEmpty(t, prediction.MarketPicks)

	sum := prediction.HomeWinProbability + prediction.DrawProbability + prediction.AwayWinProbability
	require.InDelta(t, 1.0, sum, 1e-6)
}

func TestGetCachedPrediction_MissIsNotFound(t *testing.T) {
	h := newHarness(t)

	rec, env := doJSON(t, h.router, http.MethodGet, "/api/v1/predictions/cached?home_team=Leeds&away_team=Burnley", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, utils.ErrCodeNotFound, env.Error.Code)
}

func TestGetCachedPrediction_RequiresBothTeams(t *testing.T) {
	h := newHarness(t)

	rec, env := doJSON(t, h.router, http.MethodGet, "/api/v1/predictions/cached?home_team=Arsenal", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, utils.ErrCodeValidation, env.Error.Code)
}

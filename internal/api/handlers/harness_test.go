package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stitts-dev/match-predictor/internal/cache"
	"github.com/stitts-dev/match-predictor/internal/coordinator"
	"github.com/stitts-dev/match-predictor/internal/models"
	"github.com/stitts-dev/match-predictor/internal/providers"
	"github.com/stitts-dev/match-predictor/internal/services"
	"github.com/stitts-dev/match-predictor/internal/worker"
	"github.com/stitts-dev/match-predictor/pkg/database"
	"github.com/stitts-dev/match-predictor/pkg/utils"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeProvider stands in for the upstream prediction pipeline.
type fakeProvider struct {
	mu         sync.Mutex
	prediction *models.Prediction
	err        error
	calls      int
}

func (f *fakeProvider) GetPrediction(ctx context.Context, homeTeam, awayTeam string) (*models.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.prediction, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// harness wires the real request path (coordinator, worker pool, store,
// result cache) over sqlite, with only the upstream provider faked.
type harness struct {
	router      *gin.Engine
	db          *gorm.DB
	store       *providers.MatchStore
	resultCache *cache.ResultCache
	provider    *fakeProvider
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gormDB.AutoMigrate(&models.Match{}, &models.AccuracyStat{}))

	logger := testLogger()
	store := providers.NewMatchStore(gormDB, nil, logger)
	resultCache := cache.NewResultCache(nil, time.Minute, 60*time.Second, logger)

	pool := worker.NewPool(2, logger)
	require.NoError(t, pool.Start())
	t.Cleanup(func() { _ = pool.Stop() })

	provider := &fakeProvider{}
	coord := coordinator.NewCoordinator(resultCache, provider, store, pool, coordinator.Options{LookupTimeout: 2 * time.Second}, logger)

	debouncer := coordinator.NewDebouncer(50 * time.Millisecond)
	t.Cleanup(debouncer.Stop)

	predictionHandler := NewPredictionHandler(coord, debouncer, resultCache, pool, store, nil, logger)
	matchHandler := NewMatchHandler(store)
	accuracyHandler := NewAccuracyHandler(&database.DB{DB: gormDB}, services.NewCacheService(nil), nil)

	router := gin.New()
	router.POST("/api/v1/predictions", predictionHandler.RequestPrediction)
	router.GET("/api/v1/predictions/cached", predictionHandler.GetCachedPrediction)
	router.GET("/api/v1/matches", matchHandler.ListMatches)
	router.GET("/api/v1/accuracy", accuracyHandler.GetAccuracyStats)

	return &harness{
		router:      router,
		db:          gormDB,
		store:       store,
		resultCache: resultCache,
		provider:    provider,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.AppError `json:"error"`
	Meta    *utils.Meta     `json:"meta"`
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

// seedMatches writes n played fixtures for the pair, alternating results so
// neither side dominates.
func (h *harness) seedMatches(t *testing.T, homeTeam, awayTeam string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		match := models.Match{
			ExternalID: fmt.Sprintf("%s-%s-%d", models.NormalizeTeam(homeTeam), models.NormalizeTeam(awayTeam), i),
			HomeTeam:   homeTeam,
			AwayTeam:   awayTeam,
			HomeGoals:  (i % 3),
			AwayGoals:  ((i + 1) % 2),
			MatchDate:  time.Now().AddDate(0, 0, -7*(i+1)),
			League:     "Premier League",
			Season:     "2025/26",
		}
		require.NoError(t, h.db.Create(&match).Error)
	}
}

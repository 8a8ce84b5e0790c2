package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
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
	"github.com/stitts-dev/match-predictor/internal/realtime"
	"github.com/stitts-dev/match-predictor/internal/services"
	"github.com/stitts-dev/match-predictor/internal/worker"
	"github.com/stitts-dev/match-predictor/pkg/database"
)

type noProvider struct{}

func (noProvider) GetPrediction(ctx context.Context, homeTeam, awayTeam string) (*models.Prediction, error) {
	return nil, nil
}

type noSource struct{}

func (noSource) Subscribe(ctx context.Context, table string) (<-chan models.RecordEvent, error) {
	return nil, errors.New("not subscribable")
}

func (noSource) FetchRecent(ctx context.Context, table string, since time.Time) ([]models.PredictionRecord, error) {
	return nil, nil
}

func TestSetupRoutes_RegistersTheAPISurface(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gormDB.AutoMigrate(&models.Match{}, &models.AccuracyStat{}))

	store := providers.NewMatchStore(gormDB, nil, logger)
	resultCache := cache.NewResultCache(nil, time.Minute, 60*time.Second, logger)

	pool := worker.NewPool(1, logger)
	require.NoError(t, pool.Start())
	t.Cleanup(func() { _ = pool.Stop() })

	coord := coordinator.NewCoordinator(resultCache, noProvider{}, store, pool, coordinator.Options{LookupTimeout: time.Second}, logger)
	debouncer := coordinator.NewDebouncer(50 * time.Millisecond)
	t.Cleanup(debouncer.Stop)

	router := gin.New()
	SetupRoutes(router.Group("/api/v1"), Deps{
		DB:          &database.DB{DB: gormDB},
		Cache:       services.NewCacheService(nil),
		ResultCache: resultCache,
		Coordinator: coord,
		Debouncer:   debouncer,
		Pool:        pool,
		Store:       store,
		Sync:        realtime.NewSyncManager(noSource{}, realtime.Config{}, nil, logger),
		Hub:         services.NewHub(logger),
		Logger:      logger,
	})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	require.Equal(t, http.StatusOK, get("/api/v1/matches").Code)
	require.Equal(t, http.StatusOK, get("/api/v1/accuracy").Code)
	require.Equal(t, http.StatusOK, get("/api/v1/realtime/status").Code)
	require.Equal(t, http.StatusNotFound, get("/api/v1/unknown").Code)

	// An empty body proves the prediction route is bound to the validating
	// handler, without touching the provider.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions", nil)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var env struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.False(t, env.Success)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

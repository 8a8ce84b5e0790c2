package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stitts-dev/match-predictor/internal/cache"
	"github.com/stitts-dev/match-predictor/internal/models"
	"github.com/stitts-dev/match-predictor/internal/providers"
	"github.com/stitts-dev/match-predictor/pkg/database"
)

// AccuracySource is the upstream slice the scheduler refreshes model
// accuracy from. *providers.PredictionAPIClient satisfies it.
type AccuracySource interface {
	GetAccuracyStats(ctx context.Context, query providers.AccuracyQuery) ([]models.AccuracyStat, error)
}

// SchedulerOptions control job cadence and retention.
type SchedulerOptions struct {
	AccuracyInterval time.Duration // how often accuracy stats are refreshed
	SweepInterval    time.Duration // how often expired cooldowns are cleared
	CleanupInterval  time.Duration // how often stale rows are purged
	JobTimeout       time.Duration // per-job deadline
	RetentionDays    int           // accuracy rows older than this are purged
}

func (o SchedulerOptions) withDefaults() SchedulerOptions {
	if o.AccuracyInterval <= 0 {
		o.AccuracyInterval = 15 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = time.Hour
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = time.Minute
	}
	if o.RetentionDays <= 0 {
		o.RetentionDays = 90
	}
	return o
}

// SchedulerService runs the periodic background jobs: accuracy refresh,
// cooldown sweeping, and stale-data cleanup.
type SchedulerService struct {
	db          *database.DB
	resultCache *cache.ResultCache
	source      AccuracySource
	cacheSvc    *CacheService
	opts        SchedulerOptions
	logger      *logrus.Logger
	cron        *cron.Cron

	mu        sync.Mutex
	isRunning bool

	lastRunsMu sync.Mutex
	lastRuns   map[string]time.Time
}

func NewSchedulerService(db *database.DB, resultCache *cache.ResultCache, source AccuracySource, cacheSvc *CacheService, opts SchedulerOptions, logger *logrus.Logger) *SchedulerService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cacheSvc == nil {
		cacheSvc = NewCacheService(nil)
	}
	return &SchedulerService{
		db:          db,
		resultCache: resultCache,
		source:      source,
		cacheSvc:    cacheSvc,
		opts:        opts.withDefaults(),
		logger:      logger,
		cron:        cron.New(),
		lastRuns:    make(map[string]time.Time),
	}
}

// Start registers the cron jobs and kicks off an initial accuracy refresh.
func (s *SchedulerService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler service is already running")
	}

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.opts.AccuracyInterval), s.refreshAccuracyStats); err != nil {
		return fmt.Errorf("failed to schedule accuracy refresh: %w", err)
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.opts.SweepInterval), s.sweepCooldowns); err != nil {
		return fmt.Errorf("failed to schedule cooldown sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.opts.CleanupInterval), s.cleanupStaleData); err != nil {
		return fmt.Errorf("failed to schedule stale cleanup: %w", err)
	}

	s.cron.Start()
	s.isRunning = true

	// Warm the accuracy table right away instead of waiting a full interval.
	go s.refreshAccuracyStats()

	s.logger.WithFields(logrus.Fields{
		"accuracy_interval": s.opts.AccuracyInterval.String(),
		"sweep_interval":    s.opts.SweepInterval.String(),
		"cleanup_interval":  s.opts.CleanupInterval.String(),
	}).Info("Scheduler service started")
	return nil
}

// Stop halts the cron scheduler and waits for in-flight jobs to finish.
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.isRunning = false

	s.logger.Info("Scheduler service stopped")
}

// Status reports job state for the health endpoints.
func (s *SchedulerService) Status() map[string]interface{} {
	s.mu.Lock()
	running := s.isRunning
	entries := s.cron.Entries()
	s.mu.Unlock()

	nextRuns := make([]time.Time, 0, len(entries))
	for _, entry := range entries {
		nextRuns = append(nextRuns, entry.Next)
	}

	s.lastRunsMu.Lock()
	lastRuns := make(map[string]time.Time, len(s.lastRuns))
	for job, at := range s.lastRuns {
		lastRuns[job] = at
	}
	s.lastRunsMu.Unlock()

	return map[string]interface{}{
		"is_running": running,
		"cron_jobs":  len(entries),
		"next_runs":  nextRuns,
		"last_runs":  lastRuns,
	}
}

func (s *SchedulerService) markRun(job string) {
	s.lastRunsMu.Lock()
	defer s.lastRunsMu.Unlock()
	s.lastRuns[job] = time.Now()
}

// refreshAccuracyStats pulls current model accuracy from the prediction API
// and upserts it, retrying transient failures with exponential backoff. A
// 404 upstream means no stats have been computed yet and is not a failure.
func (s *SchedulerService) refreshAccuracyStats() {
	s.markRun("accuracy_refresh")

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.JobTimeout)
	defer cancel()

	var stats []models.AccuracyStat
	operation := func() error {
		var err error
		stats, err = s.source.GetAccuracyStats(ctx, providers.AccuracyQuery{})
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxElapsedTime = s.opts.JobTimeout

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		s.logger.WithError(err).Warn("Accuracy stats refresh failed")
		return
	}
	if len(stats) == 0 {
		s.logger.Debug("Upstream returned no accuracy stats")
		return
	}

	updated := 0
	for _, stat := range stats {
		if err := s.upsertAccuracyStat(ctx, stat); err != nil {
			s.logger.WithError(err).WithField("model_type", stat.ModelType).Warn("Failed to store accuracy stat")
			continue
		}
		updated++
	}

	if err := s.cacheSvc.SetWithRetry(ctx, AccuracyCacheKey(""), stats, s.opts.AccuracyInterval, 3); err != nil {
		s.logger.WithError(err).Debug("Failed to cache accuracy stats")
	}

	s.logger.WithField("stats", updated).Info("Accuracy stats refreshed")
}

// upsertAccuracyStat stores one accuracy row keyed by (model, period).
func (s *SchedulerService) upsertAccuracyStat(ctx context.Context, stat models.AccuracyStat) error {
	var existing models.AccuracyStat
	err := s.db.WithContext(ctx).
		Where("model_type = ? AND period_start = ? AND period_end = ?", stat.ModelType, stat.PeriodStart, stat.PeriodEnd).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.WithContext(ctx).Create(&stat).Error
	}
	if err != nil {
		return err
	}

	stat.ID = existing.ID
	stat.CreatedAt = existing.CreatedAt
	return s.db.WithContext(ctx).Save(&stat).Error
}

// sweepCooldowns drops expired not-found markers so the next request for
// those pairs reaches the providers again.
func (s *SchedulerService) sweepCooldowns() {
	s.markRun("cooldown_sweep")

	if n := s.resultCache.SweepExpiredCooldowns(); n > 0 {
		s.logger.WithField("cleared", n).Debug("Swept expired cooldown markers")
	}
}

// cleanupStaleData purges accuracy rows past the retention window.
func (s *SchedulerService) cleanupStaleData() {
	s.markRun("stale_cleanup")

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.JobTimeout)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.opts.RetentionDays)
	result := s.db.WithContext(ctx).Where("period_end < ?", cutoff).Delete(&models.AccuracyStat{})
	if result.Error != nil {
		s.logger.WithError(result.Error).Warn("Stale accuracy cleanup failed")
		return
	}
	if result.RowsAffected > 0 {
		s.logger.WithFields(logrus.Fields{
			"rows":   result.RowsAffected,
			"cutoff": cutoff.Format("2006-01-02"),
		}).Info("Removed stale accuracy stats")
	}
}

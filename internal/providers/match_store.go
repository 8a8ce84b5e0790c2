package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stitts-dev/match-predictor/internal/models"
)

const (
	// DefaultMatchLookupTimeout bounds a full relevant-history query.
	DefaultMatchLookupTimeout = 30 * time.Second
	// DefaultLightLookupTimeout bounds the cheaper head-to-head query.
	DefaultLightLookupTimeout = 10 * time.Second

	matchCacheTTL     = 15 * time.Minute
	defaultQueryLimit = 200
	defaultListLimit  = 50
)

// LookupMode selects how much history a lookup pulls.
type LookupMode string

const (
	// LookupRelevant returns every stored match either team took part in.
	LookupRelevant LookupMode = "relevant"
	// LookupHeadToHead returns direct meetings only, both orientations.
	LookupHeadToHead LookupMode = "head_to_head"
)

// LookupOptions tune a history query. Zero values take defaults: relevant
// mode, the mode's timeout, and the standard row cap.
type LookupOptions struct {
	Mode    LookupMode
	Timeout time.Duration
	Limit   int
}

// Cache is the slice of the shared cache service the store needs. A nil
// cache disables the read-through layer.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// MatchStore reads played fixtures from the service database with a
// read-through cache in front, so bursty prediction traffic for one pair
// does not repeat the same query.
type MatchStore struct {
	db     *gorm.DB
	cache  Cache
	logger *logrus.Logger
}

// NewMatchStore creates a store over the given connection. cache may be nil.
func NewMatchStore(db *gorm.DB, cache Cache, logger *logrus.Logger) *MatchStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MatchStore{
		db:     db,
		cache:  cache,
		logger: logger,
	}
}

// GetMatchesBetweenTeams returns the pair's history newest first. Zero rows
// is reported as DataNotFoundError so callers can route it to the cooldown
// path instead of treating it as a failure.
func (s *MatchStore) GetMatchesBetweenTeams(ctx context.Context, homeTeam, awayTeam string, opts LookupOptions) ([]models.Match, error) {
	home := models.NormalizeTeam(homeTeam)
	away := models.NormalizeTeam(awayTeam)
	if home == "" || away == "" {
		return nil, &models.ValidationError{Field: "team", Message: "team names must not be empty"}
	}

	mode := opts.Mode
	if mode == "" {
		mode = LookupRelevant
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		if mode == LookupHeadToHead {
			timeout = DefaultLightLookupTimeout
		} else {
			timeout = DefaultMatchLookupTimeout
		}
	}
	limit := opts.Limit
	if limit <= 0 || limit > defaultQueryLimit {
		limit = defaultQueryLimit
	}

	op := fmt.Sprintf("match lookup %s vs %s", homeTeam, awayTeam)
	cacheKey := matchCacheKey(mode, home, away)

	if s.cache != nil {
		var cached []models.Match
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	query := s.db.WithContext(queryCtx).Model(&models.Match{})
	switch mode {
	case LookupHeadToHead:
		query = query.Where(
			"(LOWER(home_team) = ? AND LOWER(away_team) = ?) OR (LOWER(home_team) = ? AND LOWER(away_team) = ?)",
			home, away, away, home,
		)
	default:
		query = query.Where(
			"LOWER(home_team) IN (?, ?) OR LOWER(away_team) IN (?, ?)",
			home, away, home, away,
		)
	}

	var matches []models.Match
	if err := query.Order("match_date DESC").Limit(limit).Find(&matches).Error; err != nil {
		return nil, classifyStoreErr(op, err)
	}
	if len(matches) == 0 {
		return nil, &models.DataNotFoundError{Resource: fmt.Sprintf("match history for %s vs %s", homeTeam, awayTeam)}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, matches, matchCacheTTL); err != nil {
			s.logger.WithError(err).Debug("Match cache write failed")
		}
	}

	return matches, nil
}

// MatchesBetweenTeams is the relevant-history lookup with defaults. It is
// the shape the request coordinator consumes.
func (s *MatchStore) MatchesBetweenTeams(ctx context.Context, homeTeam, awayTeam string) ([]models.Match, error) {
	return s.GetMatchesBetweenTeams(ctx, homeTeam, awayTeam, LookupOptions{Mode: LookupRelevant})
}

// HeadToHead returns direct meetings on the light timeout budget.
func (s *MatchStore) HeadToHead(ctx context.Context, homeTeam, awayTeam string) ([]models.Match, error) {
	return s.GetMatchesBetweenTeams(ctx, homeTeam, awayTeam, LookupOptions{Mode: LookupHeadToHead})
}

// MatchFilter narrows ListMatches. Zero values mean no filter.
type MatchFilter struct {
	Team   string
	League string
	Season string
	Limit  int
}

func (s *MatchStore) filteredQuery(ctx context.Context, filter MatchFilter) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Match{})
	if team := models.NormalizeTeam(filter.Team); team != "" {
		query = query.Where("LOWER(home_team) = ? OR LOWER(away_team) = ?", team, team)
	}
	if filter.League != "" {
		query = query.Where("league = ?", filter.League)
	}
	if filter.Season != "" {
		query = query.Where("season = ?", filter.Season)
	}
	return query
}

// ListMatches returns stored fixtures newest first for the dashboard's
// matches view. An empty result is just an empty slice here, not an error.
func (s *MatchStore) ListMatches(ctx context.Context, filter MatchFilter) ([]models.Match, error) {
	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > defaultQueryLimit:
		limit = defaultQueryLimit
	}

	var matches []models.Match
	if err := s.filteredQuery(ctx, filter).Order("match_date DESC").Limit(limit).Find(&matches).Error; err != nil {
		return nil, classifyStoreErr("match listing", err)
	}
	return matches, nil
}

// CountMatches reports how many fixtures match the filter, for list metadata
// and health reporting.
func (s *MatchStore) CountMatches(ctx context.Context, filter MatchFilter) (int64, error) {
	var count int64
	if err := s.filteredQuery(ctx, filter).Count(&count).Error; err != nil {
		return 0, classifyStoreErr("match count", err)
	}
	return count, nil
}

// UpsertMatches writes fixtures keyed by external id. Existing rows are
// updated in place so reseeding stays idempotent.
func (s *MatchStore) UpsertMatches(ctx context.Context, matches []models.Match) error {
	if len(matches) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		UpdateAll: true,
	}).Create(&matches).Error
	if err != nil {
		return classifyStoreErr("match upsert", err)
	}
	return nil
}

func matchCacheKey(mode LookupMode, home, away string) string {
	return fmt.Sprintf("matches:%s:%s:%s", mode, home, away)
}

// classifyStoreErr maps database faults onto the service error taxonomy.
// Context expiry is distinguished from everything else because the caller's
// retry rules differ.
func classifyStoreErr(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &models.TimeoutError{Op: op, Err: err}
	case errors.Is(err, context.Canceled):
		return &models.AbortedError{Op: op, Err: err}
	default:
		return &models.NetworkError{Op: op, Err: err}
	}
}

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stitts-dev/match-predictor/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeCache mirrors the shared cache service's JSON round-trip semantics.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (f *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.entries[key]
	if !ok {
		return fmt.Errorf("key not found")
	}
	return json.Unmarshal(data, dest)
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.entries[key] = data
	f.sets++
	return nil
}

func (f *fakeCache) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

type MatchStoreTestSuite struct {
	suite.Suite
	db    *gorm.DB
	store *MatchStore
}

func (s *MatchStoreTestSuite) SetupSuite() {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	s.Require().NoError(err)
	s.Require().NoError(gormDB.AutoMigrate(&models.Match{}))

	s.db = gormDB
	s.store = NewMatchStore(gormDB, nil, testLogger())
}

func (s *MatchStoreTestSuite) SetupTest() {
	s.db.Exec("DELETE FROM matches")
}

func (s *MatchStoreTestSuite) seed(externalID, homeTeam, awayTeam string, homeGoals, awayGoals, daysAgo int) {
	match := models.Match{
		ExternalID: externalID,
		HomeTeam:   homeTeam,
		AwayTeam:   awayTeam,
		HomeGoals:  homeGoals,
		AwayGoals:  awayGoals,
		MatchDate:  time.Now().AddDate(0, 0, -daysAgo),
		League:     "Premier League",
		Season:     "2025/26",
	}
	s.Require().NoError(s.db.Create(&match).Error)
}

func (s *MatchStoreTestSuite) TestHeadToHead_BothOrientations() {
	s.seed("m1", "Arsenal", "Chelsea", 2, 1, 10)
	s.seed("m2", "Chelsea", "Arsenal", 0, 0, 40)
	s.seed("m3", "Arsenal", "Spurs", 3, 1, 5)

	matches, err := s.store.HeadToHead(context.Background(), "Arsenal", "Chelsea")
	s.Require().NoError(err)
	s.Require().Len(matches, 2)
	for _, m := range matches {
		s.True(m.Involves("Arsenal"))
		s.True(m.Involves("Chelsea"))
	}
}

func (s *MatchStoreTestSuite) TestRelevant_IncludesEitherTeamsMatches() {
	s.seed("m1", "Arsenal", "Chelsea", 2, 1, 10)
	s.seed("m2", "Arsenal", "Spurs", 3, 1, 5)
	s.seed("m3", "Everton", "Chelsea", 1, 1, 7)
	s.seed("m4", "Liverpool", "Everton", 2, 0, 3)

	matches, err := s.store.MatchesBetweenTeams(context.Background(), "Arsenal", "Chelsea")
	s.Require().NoError(err)
	s.Require().Len(matches, 3)
	for _, m := range matches {
		s.True(m.Involves("Arsenal") || m.Involves("Chelsea"))
	}
}

func (s *MatchStoreTestSuite) TestLookup_CaseInsensitiveNames() {
	s.seed("m1", "Arsenal", "Chelsea", 2, 1, 10)

	matches, err := s.store.HeadToHead(context.Background(), "  ARSENAL ", "chelsea")
	s.Require().NoError(err)
	s.Require().Len(matches, 1)
	s.Equal("Arsenal", matches[0].HomeTeam)
}

func (s *MatchStoreTestSuite) TestLookup_EmptyHistoryIsDataNotFound() {
	_, err := s.store.MatchesBetweenTeams(context.Background(), "Red Star", "Partizan")
	s.Require().Error(err)
	s.True(models.IsDataNotFound(err))
}

func (s *MatchStoreTestSuite) TestLookup_NewestFirstWithLimit() {
	for i := 1; i <= 5; i++ {
		s.seed(fmt.Sprintf("m%d", i), "Arsenal", "Chelsea", i, 0, i*10)
	}

	matches, err := s.store.GetMatchesBetweenTeams(context.Background(), "Arsenal", "Chelsea", LookupOptions{
		Mode:  LookupHeadToHead,
		Limit: 3,
	})
	s.Require().NoError(err)
	s.Require().Len(matches, 3)
	s.Equal("m1", matches[0].ExternalID)
	for i := 1; i < len(matches); i++ {
		s.False(matches[i].MatchDate.After(matches[i-1].MatchDate))
	}
}

func (s *MatchStoreTestSuite) TestLookup_RejectsEmptyNames() {
	_, err := s.store.MatchesBetweenTeams(context.Background(), "  ", "Chelsea")
	s.Require().Error(err)
	s.True(models.IsValidation(err))
}

func (s *MatchStoreTestSuite) TestLookup_CancelledContextIsAborted() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.store.MatchesBetweenTeams(ctx, "Arsenal", "Chelsea")
	s.Require().Error(err)
	s.True(models.IsAborted(err))
}

func (s *MatchStoreTestSuite) TestLookup_CacheShieldsRepeatReads() {
	s.seed("m1", "Arsenal", "Chelsea", 2, 1, 10)
	s.seed("m2", "Chelsea", "Arsenal", 0, 2, 20)

	fc := newFakeCache()
	cached := NewMatchStore(s.db, fc, testLogger())

	first, err := cached.HeadToHead(context.Background(), "Arsenal", "Chelsea")
	s.Require().NoError(err)
	s.Require().Len(first, 2)
	s.Equal(1, fc.setCount())

	// Drop the rows: the second read must come from the cache.
	s.db.Exec("DELETE FROM matches")

	second, err := cached.HeadToHead(context.Background(), "Arsenal", "Chelsea")
	s.Require().NoError(err)
	s.Len(second, 2)
	s.Equal(1, fc.setCount())
}

func (s *MatchStoreTestSuite) TestListMatches_FiltersByTeam() {
	s.seed("m1", "Arsenal", "Chelsea", 2, 1, 10)
	s.seed("m2", "Spurs", "Arsenal", 1, 1, 5)
	s.seed("m3", "Liverpool", "Everton", 2, 0, 3)

	matches, err := s.store.ListMatches(context.Background(), MatchFilter{Team: "arsenal"})
	s.Require().NoError(err)
	s.Require().Len(matches, 2)
	for _, m := range matches {
		s.True(m.Involves("Arsenal"))
	}

	all, err := s.store.ListMatches(context.Background(), MatchFilter{})
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *MatchStoreTestSuite) TestUpsertMatches_IdempotentByExternalID() {
	kickoff := time.Now().AddDate(0, 0, -7)
	batch := []models.Match{
		{ExternalID: "pl-001", HomeTeam: "Arsenal", AwayTeam: "Chelsea", HomeGoals: 1, AwayGoals: 0, MatchDate: kickoff},
		{ExternalID: "pl-002", HomeTeam: "Spurs", AwayTeam: "Arsenal", HomeGoals: 2, AwayGoals: 2, MatchDate: kickoff.AddDate(0, 0, -7)},
	}
	s.Require().NoError(s.store.UpsertMatches(context.Background(), batch))

	// Corrected result for the same fixture arrives later.
	updated := models.Match{ExternalID: "pl-001", HomeTeam: "Arsenal", AwayTeam: "Chelsea", HomeGoals: 3, AwayGoals: 0, MatchDate: kickoff}
	s.Require().NoError(s.store.UpsertMatches(context.Background(), []models.Match{updated}))

	count, err := s.store.CountMatches(context.Background(), MatchFilter{})
	s.Require().NoError(err)
	s.Equal(int64(2), count)

	var stored models.Match
	s.Require().NoError(s.db.Where("external_id = ?", "pl-001").First(&stored).Error)
	s.Equal(3, stored.HomeGoals)
}

func TestMatchStoreTestSuite(t *testing.T) {
	suite.Run(t, new(MatchStoreTestSuite))
}

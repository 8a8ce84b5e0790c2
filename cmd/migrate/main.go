package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-predictor/internal/models"
	"github.com/stitts-dev/match-predictor/internal/providers"
	"github.com/stitts-dev/match-predictor/pkg/config"
	"github.com/stitts-dev/match-predictor/pkg/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down|seed]")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	command := os.Args[1]

	switch command {
	case "up":
		if err := runMigrations(db); err != nil {
			logrus.Fatalf("Failed to run migrations: %v", err)
		}
		logrus.Info("Migrations completed successfully")

	case "down":
		if err := dropTables(db); err != nil {
			logrus.Fatalf("Failed to drop tables: %v", err)
		}
		logrus.Info("Tables dropped successfully")

	case "seed":
		if err := seedData(db); err != nil {
			logrus.Fatalf("Failed to seed data: %v", err)
		}
		logrus.Info("Data seeded successfully")

	default:
		log.Fatalf("Unknown command: %s", command)
	}
}

func runMigrations(db *database.DB) error {
	// Auto migrate the tables this service owns. The upstream predictions
	// table belongs to the ingest pipeline and is never created here.
	if err := db.AutoMigrate(
		&models.Match{},
		&models.AccuracyStat{},
	); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	// Create indexes. Team filters always compare lowercased names, so the
	// plain column indexes from the model tags never match those queries.
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_matches_home_team_lower ON matches (LOWER(home_team))",
		"CREATE INDEX IF NOT EXISTS idx_matches_away_team_lower ON matches (LOWER(away_team))",
		"CREATE INDEX IF NOT EXISTS idx_matches_date_desc ON matches (match_date DESC)",
		"CREATE INDEX IF NOT EXISTS idx_accuracy_stats_period ON accuracy_stats (model_type, period_start, period_end)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func dropTables(db *database.DB) error {
	tables := []string{
		"accuracy_stats",
		"matches",
	}

	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)).Error; err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}

	return nil
}

func seedData(db *database.DB) error {
	daysAgo := func(n int) time.Time {
		return time.Now().UTC().AddDate(0, 0, -n).Truncate(time.Hour)
	}

	// Two seasons of results for a handful of Premier League sides, enough
	// head-to-head depth for the local models to produce something useful.
	fixtures := []models.Match{
		// Current season.
		{HomeTeam: "Arsenal", AwayTeam: "Chelsea", HomeGoals: 3, AwayGoals: 1, HomeGoalsHT: 2, AwayGoalsHT: 0, MatchDate: daysAgo(6), League: "Premier League", Season: "2025/26", Tags: pq.StringArray{"london-derby"}},
		{HomeTeam: "Liverpool", AwayTeam: "Manchester City", HomeGoals: 2, AwayGoals: 2, HomeGoalsHT: 1, AwayGoalsHT: 1, MatchDate: daysAgo(7), League: "Premier League", Season: "2025/26"},
		{HomeTeam: "Tottenham", AwayTeam: "Manchester United", HomeGoals: 1, AwayGoals: 0, HomeGoalsHT: 0, AwayGoalsHT: 0, MatchDate: daysAgo(8), League: "Premier League", Season: "2025/26"},
		{HomeTeam: "Newcastle", AwayTeam: "Everton", HomeGoals: 2, AwayGoals: 0, HomeGoalsHT: 1, AwayGoalsHT: 0, MatchDate: daysAgo(9), League: "Premier League", Season: "2025/26"},
		{HomeTeam: "Chelsea", AwayTeam: "Liverpool", HomeGoals: 1, AwayGoals: 1, HomeGoalsHT: 0, AwayGoalsHT: 1, MatchDate: daysAgo(13), League: "Premier League", Season: "2025/26", Tags: pq.StringArray{"televised"}},
		{HomeTeam: "Manchester City", AwayTeam: "Arsenal", HomeGoals: 2, AwayGoals: 1, HomeGoalsHT: 1, AwayGoalsHT: 1, MatchDate: daysAgo(14), League: "Premier League", Season: "2025/26"},
		{HomeTeam: "Everton", AwayTeam: "Tottenham", HomeGoals: 0, AwayGoals: 3, HomeGoalsHT: 0, AwayGoalsHT: 1, MatchDate: daysAgo(15), League: "Premier League", Season: "2025/26"},
		{HomeTeam: "Manchester United", AwayTeam: "Newcastle", HomeGoals: 2, AwayGoals: 2, HomeGoalsHT: 2, AwayGoalsHT: 0, MatchDate: daysAgo(16), League: "Premier League", Season: "2025/26"},
		{HomeTeam: "Arsenal", AwayTeam: "Liverpool", HomeGoals: 2, AwayGoals: 0, HomeGoalsHT: 1, AwayGoalsHT: 0, MatchDate: daysAgo(20), League: "Premier League", Season: "2025/26"},
		{HomeTeam: "Chelsea", AwayTeam: "Manchester City", HomeGoals: 0, AwayGoals: 2, HomeGoalsHT: 0, AwayGoalsHT: 1, MatchDate: daysAgo(21), League: "Premier League", Season: "2025/26"},
		{HomeTeam: "Tottenham", AwayTeam: "Arsenal", HomeGoals: 2, AwayGoals: 2, HomeGoalsHT: 1, AwayGoalsHT: 2, MatchDate: daysAgo(27), League: "Premier League", Season: "2025/26", Tags: pq.StringArray{"london-derby"}},
		{HomeTeam: "Liverpool", AwayTeam: "Manchester United", HomeGoals: 4, AwayGoals: 1, HomeGoalsHT: 2, AwayGoalsHT: 0, MatchDate: daysAgo(28), League: "Premier League", Season: "2025/26"},

		// Last season, including the reverse fixtures of the pairs above.
		{HomeTeam: "Chelsea", AwayTeam: "Arsenal", HomeGoals: 1, AwayGoals: 2, HomeGoalsHT: 1, AwayGoalsHT: 1, MatchDate: daysAgo(140), League: "Premier League", Season: "2024/25", Tags: pq.StringArray{"london-derby"}},
		{HomeTeam: "Manchester City", AwayTeam: "Liverpool", HomeGoals: 3, AwayGoals: 1, HomeGoalsHT: 1, AwayGoalsHT: 1, MatchDate: daysAgo(150), League: "Premier League", Season: "2024/25"},
		{HomeTeam: "Manchester United", AwayTeam: "Tottenham", HomeGoals: 0, AwayGoals: 0, HomeGoalsHT: 0, AwayGoalsHT: 0, MatchDate: daysAgo(160), League: "Premier League", Season: "2024/25"},
		{HomeTeam: "Everton", AwayTeam: "Newcastle", HomeGoals: 1, AwayGoals: 3, HomeGoalsHT: 0, AwayGoalsHT: 2, MatchDate: daysAgo(170), League: "Premier League", Season: "2024/25"},
		{HomeTeam: "Arsenal", AwayTeam: "Chelsea", HomeGoals: 2, AwayGoals: 0, HomeGoalsHT: 0, AwayGoalsHT: 0, MatchDate: daysAgo(320), League: "Premier League", Season: "2024/25", Tags: pq.StringArray{"london-derby"}},
		{HomeTeam: "Liverpool", AwayTeam: "Manchester City", HomeGoals: 1, AwayGoals: 1, HomeGoalsHT: 0, AwayGoalsHT: 0, MatchDate: daysAgo(330), League: "Premier League", Season: "2024/25"},
		{HomeTeam: "Arsenal", AwayTeam: "Manchester United", HomeGoals: 3, AwayGoals: 0, HomeGoalsHT: 1, AwayGoalsHT: 0, MatchDate: daysAgo(340), League: "Premier League", Season: "2024/25"},
		{HomeTeam: "Chelsea", AwayTeam: "Tottenham", HomeGoals: 2, AwayGoals: 1, HomeGoalsHT: 1, AwayGoalsHT: 0, MatchDate: daysAgo(350), League: "Premier League", Season: "2024/25", Tags: pq.StringArray{"london-derby"}},
		{HomeTeam: "Newcastle", AwayTeam: "Liverpool", HomeGoals: 0, AwayGoals: 2, HomeGoalsHT: 0, AwayGoalsHT: 1, MatchDate: daysAgo(355), League: "Premier League", Season: "2024/25"},
		{HomeTeam: "Manchester City", AwayTeam: "Everton", HomeGoals: 4, AwayGoals: 0, HomeGoalsHT: 3, AwayGoalsHT: 0, MatchDate: daysAgo(360), League: "Premier League", Season: "2024/25"},
	}

	for i := range fixtures {
		m := &fixtures[i]
		m.ExternalID = fmt.Sprintf("seed-%s-%s-%s",
			m.MatchDate.Format("2006-01-02"),
			models.NormalizeTeam(m.HomeTeam),
			models.NormalizeTeam(m.AwayTeam))
	}

	// Upsert keyed on external_id so reseeding refreshes rather than fails.
	store := providers.NewMatchStore(db.DB, nil, logrus.StandardLogger())
	if err := store.UpsertMatches(context.Background(), fixtures); err != nil {
		return fmt.Errorf("failed to seed matches: %w", err)
	}
	logrus.Infof("Seeded %d matches", len(fixtures))

	// A starter accuracy row per model so the dashboard has history before
	// the first scheduled refresh lands.
	periodEnd := time.Now().UTC().Truncate(24 * time.Hour)
	accuracyRows := []models.AccuracyStat{
		{ModelType: "poisson", PeriodStart: periodEnd.AddDate(0, 0, -7), PeriodEnd: periodEnd, TotalPredictions: 96, CorrectOutcomes: 51, OutcomeAccuracy: 0.531, Over25Accuracy: 0.583, BTTSAccuracy: 0.562, AvgConfidence: 0.47},
		{ModelType: "ensemble", PeriodStart: periodEnd.AddDate(0, 0, -7), PeriodEnd: periodEnd, TotalPredictions: 96, CorrectOutcomes: 55, OutcomeAccuracy: 0.573, Over25Accuracy: 0.604, BTTSAccuracy: 0.573, AvgConfidence: 0.52},
	}
	if err := db.Create(&accuracyRows).Error; err != nil {
		logrus.Warnf("Failed to seed accuracy stats (may already exist): %v", err)
	}

	return nil
}

package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// Match is an immutable historical record of a played fixture. Rows are owned
// by the upstream ingest pipeline; this service only reads them.
type Match struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ExternalID  string         `gorm:"uniqueIndex" json:"external_id"`
	HomeTeam    string         `gorm:"index;not null" json:"home_team"`
	AwayTeam    string         `gorm:"index;not null" json:"away_team"`
	HomeGoals   int            `json:"home_goals"`
	AwayGoals   int            `json:"away_goals"`
	HomeGoalsHT int            `json:"home_goals_ht"`
	AwayGoalsHT int            `json:"away_goals_ht"`
	MatchDate   time.Time      `gorm:"index" json:"match_date"`
	League      string         `gorm:"index" json:"league"`
	Season      string         `gorm:"index" json:"season"`
	Tags        pq.StringArray `gorm:"type:text[]" json:"tags,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Match) TableName() string {
	return "matches"
}

// Involves reports whether the given team played in this match, either side.
// Team name comparison is case-insensitive throughout the service.
func (m *Match) Involves(team string) bool {
	return strings.EqualFold(m.HomeTeam, team) || strings.EqualFold(m.AwayTeam, team)
}

func (m *Match) PlayedHome(team string) bool {
	return strings.EqualFold(m.HomeTeam, team)
}

func (m *Match) GoalsFor(team string) int {
	if m.PlayedHome(team) {
		return m.HomeGoals
	}
	return m.AwayGoals
}

func (m *Match) GoalsAgainst(team string) int {
	if m.PlayedHome(team) {
		return m.AwayGoals
	}
	return m.HomeGoals
}

// PointsFor returns league points earned by the team: 3 for a win, 1 for a
// draw, 0 for a loss.
func (m *Match) PointsFor(team string) int {
	gf := m.GoalsFor(team)
	ga := m.GoalsAgainst(team)
	switch {
	case gf > ga:
		return 3
	case gf == ga:
		return 1
	default:
		return 0
	}
}

func (m *Match) IsDraw() bool {
	return m.HomeGoals == m.AwayGoals
}

// Winner returns the winning team name, or the empty string for a draw.
func (m *Match) Winner() string {
	switch {
	case m.HomeGoals > m.AwayGoals:
		return m.HomeTeam
	case m.AwayGoals > m.HomeGoals:
		return m.AwayTeam
	default:
		return ""
	}
}

func (m *Match) TotalGoals() int {
	return m.HomeGoals + m.AwayGoals
}

func (m *Match) BothTeamsScored() bool {
	return m.HomeGoals > 0 && m.AwayGoals > 0
}

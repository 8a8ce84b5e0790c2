package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stitts-dev/match-predictor/internal/models"
)

func TestBuildTeamModel_VenueScoping(t *testing.T) {
	matches := []models.Match{
		// Strong at home.
		testMatch("Arsenal", "Chelsea", 3, 0, 1),
		testMatch("Arsenal", "Spurs", 2, 0, 8),
		testMatch("Arsenal", "Brighton", 4, 1, 15),
		// Weak away.
		testMatch("Chelsea", "Arsenal", 2, 0, 22),
		testMatch("Spurs", "Arsenal", 3, 1, 29),
	}

	home := BuildTeamModel(matches, "Arsenal", VenueHome)
	away := BuildTeamModel(matches, "Arsenal", VenueAway)

	assert.Equal(t, 3, home.SampleSize)
	assert.Equal(t, 2, away.SampleSize)
	assert.Greater(t, home.ExpectedGoalsScored, away.ExpectedGoalsScored)
	assert.Greater(t, home.Win, away.Win)
}

func TestBuildTeamModel_TripleSumsToOne(t *testing.T) {
	matches := arsenalChelseaHistory()

	for _, venue := range []Venue{VenueHome, VenueAway} {
		m := BuildTeamModel(matches, "Arsenal", venue)
		assert.InDelta(t, 1.0, m.Win+m.Draw+m.Loss, 1e-9)
	}
}

func TestBuildTeamModel_FallsBackAcrossVenues(t *testing.T) {
	// Only away matches exist; the home-context model uses them rather
	// than starting from nothing.
	matches := []models.Match{
		testMatch("Chelsea", "Arsenal", 0, 2, 1),
		testMatch("Spurs", "Arsenal", 1, 1, 8),
	}

	m := BuildTeamModel(matches, "Arsenal", VenueHome)
	assert.Equal(t, 2, m.SampleSize)
	assert.InDelta(t, 1.5, m.ExpectedGoalsScored, 1e-9)
}

func TestBuildTeamModel_NoHistoryIsNeutral(t *testing.T) {
	m := BuildTeamModel(nil, "Arsenal", VenueHome)

	assert.Equal(t, 0, m.SampleSize)
	assert.Equal(t, leagueAverageGoalRate, m.ExpectedGoalsScored)
	assert.Equal(t, leagueAverageGoalRate, m.ExpectedGoalsConceded)
	assert.Equal(t, neutralForm, m.Form)
}

func TestGoalShare_ZeroGuard(t *testing.T) {
	assert.Equal(t, 0.5, goalShare(0, 0))
	assert.InDelta(t, 0.75, goalShare(3, 1), 1e-9)
}

func TestOverProbability_Steps(t *testing.T) {
	assert.Equal(t, 0.2, overProbability(1.49))
	assert.Equal(t, 0.4, overProbability(1.5))
	assert.Equal(t, 0.4, overProbability(2.49))
	assert.Equal(t, 0.7, overProbability(2.5))
	assert.Equal(t, 0.7, overProbability(3.49))
	assert.Equal(t, 0.85, overProbability(3.5))
	assert.Equal(t, 0.85, overProbability(6.0))
}

func TestBTTSProbability_Formula(t *testing.T) {
	expected := (1 - math.Exp(-1.5)) * (1 - math.Exp(-0.8))
	assert.InDelta(t, expected, bttsProbability(1.5, 0.8), 1e-12)

	assert.Equal(t, 0.0, bttsProbability(0, 2.0),
		"a side that never scores keeps both-teams-to-score at zero")
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stitts-dev/match-predictor/internal/models"
)

func TestExtractFeatures_GoalAverages(t *testing.T) {
	matches := []models.Match{
		testMatch("Arsenal", "Chelsea", 2, 1, 7),
		testMatch("Chelsea", "Arsenal", 0, 2, 14),
		testMatch("Arsenal", "Spurs", 3, 3, 21),
		testMatch("Brighton", "Chelsea", 1, 1, 28),
	}

	f := ExtractFeatures(matches, "Arsenal", "Chelsea")

	// Arsenal: scored 2, 2, 3 and conceded 1, 0, 3 over three matches.
	assert.InDelta(t, 7.0/3, f.HomeAvgGoalsScored, 1e-9)
	assert.InDelta(t, 4.0/3, f.HomeAvgGoalsConceded, 1e-9)
	// Chelsea: scored 1, 0, 1 and conceded 2, 2, 1 over three matches.
	assert.InDelta(t, 2.0/3, f.AwayAvgGoalsScored, 1e-9)
	assert.InDelta(t, 5.0/3, f.AwayAvgGoalsConceded, 1e-9)

	assert.InDelta(t, (7.0/3)/leagueAverageGoalRate, f.HomeAttackStrength, 1e-9)
	assert.Equal(t, 4, f.MatchesConsidered)
	assert.Equal(t, 2, f.HeadToHeadMeetings)
}

func TestFormScore_PointsRatio(t *testing.T) {
	allWins := []models.Match{
		testMatch("Arsenal", "Chelsea", 2, 0, 1),
		testMatch("Arsenal", "Spurs", 1, 0, 2),
		testMatch("Brighton", "Arsenal", 0, 1, 3),
	}
	assert.Equal(t, 1.0, formScore(allWins, "Arsenal"), "three wins is maximum form")

	allLosses := []models.Match{
		testMatch("Arsenal", "Chelsea", 0, 2, 1),
		testMatch("Spurs", "Arsenal", 3, 0, 2),
	}
	assert.Equal(t, 0.0, formScore(allLosses, "Arsenal"))

	assert.Equal(t, neutralForm, formScore(nil, "Arsenal"), "no history sits at the midpoint")
}

func TestFormScore_WindowCappedAtFive(t *testing.T) {
	// Five recent losses, then ten older wins. Only the window counts.
	matches := make([]models.Match, 0, 15)
	for i := 0; i < 5; i++ {
		matches = append(matches, testMatch("Arsenal", "Chelsea", 0, 1, i+1))
	}
	for i := 0; i < 10; i++ {
		matches = append(matches, testMatch("Arsenal", "Chelsea", 2, 0, 30+i))
	}

	assert.Equal(t, 0.0, formScore(relevantMatches(matches, "Arsenal"), "Arsenal"))
}

func TestRelevantMatches_CapAndOrder(t *testing.T) {
	matches := make([]models.Match, 0, 25)
	for i := 0; i < 25; i++ {
		matches = append(matches, testMatch("Arsenal", "Chelsea", 1, 0, i))
	}
	matches = append(matches, testMatch("Spurs", "Brighton", 2, 2, 3))

	relevant := relevantMatches(matches, "Arsenal")
	assert.Len(t, relevant, maxRelevantMatches)
	for i := 1; i < len(relevant); i++ {
		assert.False(t, relevant[i].MatchDate.After(relevant[i-1].MatchDate),
			"relevant matches must be ordered most recent first")
	}
}

func TestHeadToHead_CapAtTen(t *testing.T) {
	matches := make([]models.Match, 0, 12)
	for i := 0; i < 12; i++ {
		matches = append(matches, testMatch("Arsenal", "Chelsea", 1, 0, i))
	}

	meetings := headToHead(matches, "Arsenal", "Chelsea")
	assert.Len(t, meetings, maxHeadToHead)
}

func TestHeadToHeadRatio_HomeWins(t *testing.T) {
	meetings := []models.Match{
		testMatch("Arsenal", "Chelsea", 2, 0, 1),
		testMatch("Chelsea", "Arsenal", 1, 0, 2),
		testMatch("Arsenal", "Chelsea", 1, 1, 3),
		testMatch("Arsenal", "Chelsea", 3, 1, 4),
	}

	// Arsenal won two of the four meetings.
	assert.InDelta(t, 0.5, headToHeadRatio(meetings, "Arsenal"), 1e-9)
	assert.Equal(t, neutralForm, headToHeadRatio(nil, "Arsenal"))
}

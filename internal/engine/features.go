package engine

import (
	"sort"
	"strings"

	"github.com/stitts-dev/match-predictor/internal/models"
)

const (
	// League-average goals per team per match, the baseline for strength
	// ratios. Tuned for top-flight European football.
	leagueAverageGoalRate = 1.3

	// Window caps keep feature extraction bounded regardless of how much
	// history the caller supplies.
	maxRelevantMatches = 20
	maxHeadToHead      = 10
	formWindow         = 5

	neutralForm = 0.5
)

// ExtractFeatures derives the per-request feature set from a bounded window
// of historical matches. Pure function: insufficient data degrades feature
// quality, it never fails.
func ExtractFeatures(matches []models.Match, homeTeam, awayTeam string) *models.PredictionFeatures {
	homeMatches := relevantMatches(matches, homeTeam)
	awayMatches := relevantMatches(matches, awayTeam)
	meetings := headToHead(matches, homeTeam, awayTeam)

	homeScored, homeConceded := goalAverages(homeMatches, homeTeam)
	awayScored, awayConceded := goalAverages(awayMatches, awayTeam)

	return &models.PredictionFeatures{
		HomeForm:             formScore(homeMatches, homeTeam),
		AwayForm:             formScore(awayMatches, awayTeam),
		HomeAvgGoalsScored:   homeScored,
		HomeAvgGoalsConceded: homeConceded,
		AwayAvgGoalsScored:   awayScored,
		AwayAvgGoalsConceded: awayConceded,
		HomeAttackStrength:   homeScored / leagueAverageGoalRate,
		HomeDefenseStrength:  homeConceded / leagueAverageGoalRate,
		AwayAttackStrength:   awayScored / leagueAverageGoalRate,
		AwayDefenseStrength:  awayConceded / leagueAverageGoalRate,
		HeadToHeadRatio:      headToHeadRatio(meetings, homeTeam),
		HeadToHeadMeetings:   len(meetings),
		MatchesConsidered:    len(matches),
	}
}

// relevantMatches returns the team's matches, most recent first, capped at
// maxRelevantMatches.
func relevantMatches(matches []models.Match, team string) []models.Match {
	relevant := make([]models.Match, 0, len(matches))
	for _, m := range matches {
		if m.Involves(team) {
			relevant = append(relevant, m)
		}
	}
	sortByDateDesc(relevant)
	if len(relevant) > maxRelevantMatches {
		relevant = relevant[:maxRelevantMatches]
	}
	return relevant
}

// headToHead returns direct meetings between the two teams, most recent
// first, capped at maxHeadToHead.
func headToHead(matches []models.Match, homeTeam, awayTeam string) []models.Match {
	meetings := make([]models.Match, 0, maxHeadToHead)
	for _, m := range matches {
		if m.Involves(homeTeam) && m.Involves(awayTeam) {
			meetings = append(meetings, m)
		}
	}
	sortByDateDesc(meetings)
	if len(meetings) > maxHeadToHead {
		meetings = meetings[:maxHeadToHead]
	}
	return meetings
}

// formScore converts the last formWindow results into a 0-1 points ratio.
// Teams with no history sit at the neutral midpoint.
func formScore(matches []models.Match, team string) float64 {
	if len(matches) == 0 {
		return neutralForm
	}
	window := matches
	if len(window) > formWindow {
		window = window[:formWindow]
	}
	points := 0
	for _, m := range window {
		points += m.PointsFor(team)
	}
	return float64(points) / float64(len(window)*3)
}

func goalAverages(matches []models.Match, team string) (scored, conceded float64) {
	if len(matches) == 0 {
		return leagueAverageGoalRate, leagueAverageGoalRate
	}
	var gf, ga int
	for _, m := range matches {
		gf += m.GoalsFor(team)
		ga += m.GoalsAgainst(team)
	}
	n := float64(len(matches))
	return float64(gf) / n, float64(ga) / n
}

// headToHeadRatio is the share of direct meetings won by the requesting
// home side. Zero meetings yields the neutral midpoint.
func headToHeadRatio(meetings []models.Match, homeTeam string) float64 {
	if len(meetings) == 0 {
		return neutralForm
	}
	wins := 0
	for _, m := range meetings {
		if strings.EqualFold(m.Winner(), homeTeam) {
			wins++
		}
	}
	return float64(wins) / float64(len(meetings))
}

func sortByDateDesc(matches []models.Match) {
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].MatchDate.After(matches[j].MatchDate)
	})
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

package engine

import (
	"math"

	"github.com/stitts-dev/match-predictor/internal/models"
)

// Venue selects which context a team sub-model is built for.
type Venue string

const (
	VenueHome Venue = "home"
	VenueAway Venue = "away"
)

// Outcome probability bounds and scaling for the heuristic. The 1.2 scale
// carries the home advantage; the away side gets 1.1. These constants define
// the model's behavior and are not tuning knobs.
const (
	minOutcomeProb  = 0.1
	maxOutcomeProb  = 0.8
	homeWinScale    = 1.2
	awayWinScale    = 1.1
	minMatchesModel = 5
)

// TeamModelOutput is one team's sub-model in a single venue context. Win and
// Loss are from the team's own perspective in that context.
type TeamModelOutput struct {
	Team                  string  `json:"team"`
	Venue                 Venue   `json:"venue"`
	Win                   float64 `json:"win"`
	Draw                  float64 `json:"draw"`
	Loss                  float64 `json:"loss"`
	ExpectedGoalsScored   float64 `json:"expected_goals_scored"`
	ExpectedGoalsConceded float64 `json:"expected_goals_conceded"`
	BTTSProb              float64 `json:"btts_prob"`
	OverProb              float64 `json:"over_prob"`
	Confidence            float64 `json:"confidence"`
	Form                  float64 `json:"form"`
	SampleSize            int     `json:"sample_size"`
}

// BuildTeamModel derives a sub-model from the team's matches in the given
// venue context. Falls back to the team's matches at either venue when the
// context sample is empty, and to league-average neutrals when the team has
// no history at all.
func BuildTeamModel(matches []models.Match, team string, venue Venue) *TeamModelOutput {
	sample := venueMatches(matches, team, venue)
	if len(sample) == 0 {
		sample = relevantMatches(matches, team)
	}

	out := &TeamModelOutput{
		Team:       team,
		Venue:      venue,
		SampleSize: len(sample),
	}

	scored, conceded := goalAverages(sample, team)
	out.ExpectedGoalsScored = scored
	out.ExpectedGoalsConceded = conceded
	out.Form = formScore(sample, team)

	share := goalShare(scored, conceded)
	var win, loss float64
	if venue == VenueHome {
		win = clamp(share*homeWinScale, minOutcomeProb, maxOutcomeProb)
		loss = clamp((1-share)*awayWinScale, minOutcomeProb, maxOutcomeProb)
	} else {
		win = clamp(share*awayWinScale, minOutcomeProb, maxOutcomeProb)
		loss = clamp((1-share)*homeWinScale, minOutcomeProb, maxOutcomeProb)
	}
	draw := math.Max(minOutcomeProb, 1-win-loss)
	out.Win, out.Draw, out.Loss = renormalize3(win, draw, loss)

	out.BTTSProb = bttsProbability(scored, conceded)
	out.OverProb = overProbability(scored + conceded)
	out.Confidence = clamp(float64(len(sample))/float64(maxRelevantMatches), minOutcomeProb, 0.95)

	return out
}

// venueMatches returns the team's matches played in the given context, most
// recent first, capped at maxRelevantMatches.
func venueMatches(matches []models.Match, team string, venue Venue) []models.Match {
	sample := make([]models.Match, 0, len(matches))
	for _, m := range matches {
		if !m.Involves(team) {
			continue
		}
		if (venue == VenueHome) == m.PlayedHome(team) {
			sample = append(sample, m)
		}
	}
	sortByDateDesc(sample)
	if len(sample) > maxRelevantMatches {
		sample = sample[:maxRelevantMatches]
	}
	return sample
}

// goalShare is the team's share of goals in its own matches, the input to
// the bounded outcome heuristic.
func goalShare(scored, conceded float64) float64 {
	total := scored + conceded
	if total == 0 {
		return 0.5
	}
	return scored / total
}

// bttsProbability treats each side's scoring as an independent Poisson
// arrival: P(goal) = 1 - e^-expected.
func bttsProbability(homeExpected, awayExpected float64) float64 {
	return (1 - math.Exp(-homeExpected)) * (1 - math.Exp(-awayExpected))
}

// overProbability maps total expected goals to an over-2.5 probability in
// fixed steps.
func overProbability(totalExpected float64) float64 {
	switch {
	case totalExpected < 1.5:
		return 0.2
	case totalExpected < 2.5:
		return 0.4
	case totalExpected < 3.5:
		return 0.7
	default:
		return 0.85
	}
}

// renormalize3 scales a probability triple to sum to exactly 1.
func renormalize3(a, b, c float64) (float64, float64, float64) {
	sum := a + b + c
	if sum == 0 {
		return 1.0 / 3, 1.0 / 3, 1.0 / 3
	}
	return a / sum, b / sum, c / sum
}

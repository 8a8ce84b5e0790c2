package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/stitts-dev/match-predictor/internal/models"
)

// Ensemble blend weights: the home team's home-context model carries 0.6,
// the away team's away-context model 0.4, for outcomes and expected goals.
const (
	homeModelWeight = 0.6
	awayModelWeight = 0.4

	minFormFactor = 0.5
	maxFormFactor = 1.5

	// Recency horizon for calibration: history older than this contributes
	// nothing to the recency factor.
	recencyHorizon = 365 * 24 * time.Hour
)

// Predict runs the full local pipeline: feature extraction, the two team
// sub-models, the ensemble blend, market derivation and confidence
// calibration. Fewer than minMatchesModel matches short-circuits to the
// uniform baseline instead of failing. Odds are optional; when present,
// per-market ROI selection is attached to the result.
func Predict(matches []models.Match, homeTeam, awayTeam string, odds *models.MarketOdds) (*models.Prediction, error) {
	if len(matches) < minMatchesModel {
		return uniformBaseline(homeTeam, awayTeam), nil
	}

	if models.NormalizeTeam(homeTeam) == "" || models.NormalizeTeam(awayTeam) == "" {
		return nil, &models.ValidationError{Field: "team", Message: "team names must not be empty"}
	}
	if models.NormalizeTeam(homeTeam) == models.NormalizeTeam(awayTeam) {
		return nil, &models.ValidationError{Field: "team", Message: "home and away teams must differ"}
	}

	features := ExtractFeatures(matches, homeTeam, awayTeam)
	homeModel := BuildTeamModel(matches, homeTeam, VenueHome)
	awayModel := BuildTeamModel(matches, awayTeam, VenueAway)

	// Outcome triple: blend the two sub-models in home-team orientation.
	// The away model's loss is the home team's win.
	homeProb := homeModelWeight*homeModel.Win + awayModelWeight*awayModel.Loss
	drawProb := homeModelWeight*homeModel.Draw + awayModelWeight*awayModel.Draw
	awayProb := homeModelWeight*homeModel.Loss + awayModelWeight*awayModel.Win
	homeProb, drawProb, awayProb = renormalize3(homeProb, drawProb, awayProb)

	// Expected goals: each side's attack blended with the opposition's
	// defence, then skewed by relative form. The form factor multiplies the
	// home side and divides the away side.
	formFactor := formRatio(homeModel.Form, awayModel.Form)
	homeExpected := (homeModelWeight*homeModel.ExpectedGoalsScored + awayModelWeight*awayModel.ExpectedGoalsConceded) * formFactor
	awayExpected := (homeModelWeight*awayModel.ExpectedGoalsScored + awayModelWeight*homeModel.ExpectedGoalsConceded) / formFactor

	calFactors := CalibrationFactors{
		Recency:      recencyScore(matches),
		Completeness: math.Min(1, float64(len(matches))/float64(maxRelevantMatches)),
		Accuracy:     neutralAccuracy,
	}
	probs := []float64{homeProb, drawProb, awayProb}

	prediction := &models.Prediction{
		HomeTeam:           homeTeam,
		AwayTeam:           awayTeam,
		HomeWinProbability: homeProb,
		DrawProbability:    drawProb,
		AwayWinProbability: awayProb,
		BTTSProbability:    bttsProbability(homeExpected, awayExpected),
		Over25Probability:  overProbability(homeExpected + awayExpected),
		PredictedHomeGoals: int(math.Round(homeExpected)),
		PredictedAwayGoals: int(math.Round(awayExpected)),
		ExpectedHomeGoals:  homeExpected,
		ExpectedAwayGoals:  awayExpected,
		Confidence:         Calibrate(probs, calFactors),
		Factors:            predictionFactors(probs, calFactors, features),
		Source:             models.SourceBaseline,
		GeneratedAt:        time.Now().UTC(),
	}

	if odds != nil {
		prediction.MarketPicks = SelectMarkets(prediction, odds)
	}

	return prediction, nil
}

// uniformBaseline is the insufficient-data result: an even outcome split at
// floor confidence. Valid for any team names.
func uniformBaseline(homeTeam, awayTeam string) *models.Prediction {
	home, draw, away := renormalize3(1, 1, 1)
	return &models.Prediction{
		HomeTeam:           homeTeam,
		AwayTeam:           awayTeam,
		HomeWinProbability: home,
		DrawProbability:    draw,
		AwayWinProbability: away,
		BTTSProbability:    bttsProbability(leagueAverageGoalRate, leagueAverageGoalRate),
		Over25Probability:  overProbability(2 * leagueAverageGoalRate),
		PredictedHomeGoals: 1,
		PredictedAwayGoals: 1,
		ExpectedHomeGoals:  leagueAverageGoalRate,
		ExpectedAwayGoals:  leagueAverageGoalRate,
		Confidence:         floorConfidence,
		Factors:            []string{"Insufficient match history for a full model"},
		Source:             models.SourceBaseline,
		GeneratedAt:        time.Now().UTC(),
	}
}

// formRatio clamps relative form into the allowed skew band, guarding the
// zero-form edge.
func formRatio(homeForm, awayForm float64) float64 {
	if awayForm == 0 {
		if homeForm == 0 {
			return 1
		}
		return maxFormFactor
	}
	return clamp(homeForm/awayForm, minFormFactor, maxFormFactor)
}

// recencyScore decays from 1 (played today) to 0 (a year or older) based on
// the newest match in the sample.
func recencyScore(matches []models.Match) float64 {
	if len(matches) == 0 {
		return 0
	}
	newest := matches[0].MatchDate
	for _, m := range matches[1:] {
		if m.MatchDate.After(newest) {
			newest = m.MatchDate
		}
	}
	age := time.Since(newest)
	if age < 0 {
		age = 0
	}
	return clamp(1-float64(age)/float64(recencyHorizon), 0, 1)
}

// predictionFactors assembles the explanation list: the ordered calibration
// tiers first, then a head-to-head note when there is enough of a record to
// mean anything.
func predictionFactors(probs []float64, factors CalibrationFactors, features *models.PredictionFeatures) []string {
	explanations := Explain(probs, factors)
	if features.HeadToHeadMeetings >= 3 {
		explanations = append(explanations, fmt.Sprintf(
			"Head-to-head record favours the home side in %.0f%% of %d meetings",
			features.HeadToHeadRatio*100, features.HeadToHeadMeetings))
	}
	return explanations
}

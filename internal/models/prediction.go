package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// PredictionSource tags where a prediction came from. Server predictions are
// produced by the upstream model pipeline; baseline predictions are computed
// locally from raw match history when the server has nothing for a pair.
type PredictionSource string

const (
	SourceServer   PredictionSource = "server"
	SourceBaseline PredictionSource = "baseline"
)

// NormalizeTeam canonicalizes a team name for keying. Display casing is
// preserved elsewhere; keys are always lowercase and trimmed.
func NormalizeTeam(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// PairKey identifies a (home, away) request and its cache slot. Requests
// differing only by letter case map to the same key.
func PairKey(homeTeam, awayTeam string) string {
	return NormalizeTeam(homeTeam) + "|" + NormalizeTeam(awayTeam)
}

// Prediction is the computed artifact surfaced to the dashboard. The three
// outcome probabilities always sum to 1 within floating-point tolerance.
type Prediction struct {
	HomeTeam           string           `json:"home_team"`
	AwayTeam           string           `json:"away_team"`
	HomeWinProbability float64          `json:"home_win_probability"`
	DrawProbability    float64          `json:"draw_probability"`
	AwayWinProbability float64          `json:"away_win_probability"`
	BTTSProbability    float64          `json:"btts_probability,omitempty"`
	Over25Probability  float64          `json:"over_2_5_probability,omitempty"`
	PredictedHomeGoals int              `json:"predicted_home_goals"`
	PredictedAwayGoals int              `json:"predicted_away_goals"`
	ExpectedHomeGoals  float64          `json:"expected_home_goals"`
	ExpectedAwayGoals  float64          `json:"expected_away_goals"`
	Confidence         float64          `json:"confidence"`
	Factors            []string         `json:"factors,omitempty"`
	MarketPicks        []MarketPick     `json:"market_picks,omitempty"`
	Source             PredictionSource `json:"source"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

func (p *Prediction) PairKey() string {
	return PairKey(p.HomeTeam, p.AwayTeam)
}

// OutcomeProbabilities returns the (home, draw, away) triple in display order.
func (p *Prediction) OutcomeProbabilities() []float64 {
	return []float64{p.HomeWinProbability, p.DrawProbability, p.AwayWinProbability}
}

func (p *Prediction) Scoreline() string {
	return fmt.Sprintf("%d-%d", p.PredictedHomeGoals, p.PredictedAwayGoals)
}

// PredictionFeatures are derived per request and never persisted.
type PredictionFeatures struct {
	HomeForm             float64 `json:"home_form"`
	AwayForm             float64 `json:"away_form"`
	HomeAvgGoalsScored   float64 `json:"home_avg_goals_scored"`
	HomeAvgGoalsConceded float64 `json:"home_avg_goals_conceded"`
	AwayAvgGoalsScored   float64 `json:"away_avg_goals_scored"`
	AwayAvgGoalsConceded float64 `json:"away_avg_goals_conceded"`
	HomeAttackStrength   float64 `json:"home_attack_strength"`
	HomeDefenseStrength  float64 `json:"home_defense_strength"`
	AwayAttackStrength   float64 `json:"away_attack_strength"`
	AwayDefenseStrength  float64 `json:"away_defense_strength"`
	HeadToHeadRatio      float64 `json:"head_to_head_ratio"`
	HeadToHeadMeetings   int     `json:"head_to_head_meetings"`
	MatchesConsidered    int     `json:"matches_considered"`
}

// MarketOdds are bookmaker prices supplied with an ensemble request. A zero
// price means the market is not offered and is skipped during ROI selection.
type MarketOdds struct {
	HomeWin  float64            `json:"home_win,omitempty"`
	Draw     float64            `json:"draw,omitempty"`
	AwayWin  float64            `json:"away_win,omitempty"`
	Over25   float64            `json:"over_2_5,omitempty"`
	Under25  float64            `json:"under_2_5,omitempty"`
	BTTSYes  float64            `json:"btts_yes,omitempty"`
	BTTSNo   float64            `json:"btts_no,omitempty"`
	HalfFull map[string]float64 `json:"half_full,omitempty"`
}

// MarketPick is the selected outcome for one market together with the
// expected ROI that drove the selection.
type MarketPick struct {
	Market      string  `json:"market"`
	Outcome     string  `json:"outcome"`
	Probability float64 `json:"probability"`
	Odds        float64 `json:"odds,omitempty"`
	ExpectedROI float64 `json:"expected_roi"`
}

// CacheEntry wraps a cached Prediction with its fetch time. An entry with a
// nil Prediction and a non-zero CooldownUntil records a "no data found"
// result; a missing entry means the pair was never resolved at all.
type CacheEntry struct {
	Prediction    *Prediction `json:"prediction,omitempty"`
	FetchedAt     time.Time   `json:"fetched_at"`
	CooldownUntil time.Time   `json:"cooldown_until,omitempty"`
}

func (e *CacheEntry) OnCooldown(now time.Time) bool {
	return e.Prediction == nil && now.Before(e.CooldownUntil)
}

func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// PredictionRecord is a row in the upstream predictions table, delivered over
// the realtime feed or pulled while polling.
type PredictionRecord struct {
	ID                 string         `gorm:"type:uuid;primaryKey" json:"id"`
	HomeTeam           string         `gorm:"index" json:"home_team"`
	AwayTeam           string         `gorm:"index" json:"away_team"`
	HomeWinProbability float64        `json:"home_win_probability"`
	DrawProbability    float64        `json:"draw_probability"`
	AwayWinProbability float64        `json:"away_win_probability"`
	BTTSProbability    float64        `json:"btts_probability"`
	Over25Probability  float64        `json:"over_2_5_probability"`
	PredictedHomeGoals int            `json:"predicted_home_goals"`
	PredictedAwayGoals int            `json:"predicted_away_goals"`
	Confidence         float64        `json:"confidence"`
	ModelType          string         `gorm:"index" json:"model_type"`
	Factors            datatypes.JSON `json:"factors,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (PredictionRecord) TableName() string {
	return "predictions"
}

// ToPrediction converts an upstream record into the artifact shape served to
// clients. Factors are carried opaquely; a malformed payload just drops them.
func (r *PredictionRecord) ToPrediction() *Prediction {
	p := &Prediction{
		HomeTeam:           r.HomeTeam,
		AwayTeam:           r.AwayTeam,
		HomeWinProbability: r.HomeWinProbability,
		DrawProbability:    r.DrawProbability,
		AwayWinProbability: r.AwayWinProbability,
		BTTSProbability:    r.BTTSProbability,
		Over25Probability:  r.Over25Probability,
		PredictedHomeGoals: r.PredictedHomeGoals,
		PredictedAwayGoals: r.PredictedAwayGoals,
		Confidence:         r.Confidence,
		Source:             SourceServer,
		GeneratedAt:        r.UpdatedAt,
	}
	if len(r.Factors) > 0 {
		var factors []string
		if err := json.Unmarshal(r.Factors, &factors); err == nil {
			p.Factors = factors
		}
	}
	return p
}

// AccuracyStat is an aggregated accuracy row for one model over one period,
// refreshed from the upstream pipeline on a schedule.
type AccuracyStat struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	ModelType        string         `gorm:"index" json:"model_type"`
	PeriodStart      time.Time      `gorm:"index" json:"period_start"`
	PeriodEnd        time.Time      `gorm:"index" json:"period_end"`
	TotalPredictions int            `json:"total_predictions"`
	CorrectOutcomes  int            `json:"correct_outcomes"`
	OutcomeAccuracy  float64        `json:"outcome_accuracy"`
	Over25Accuracy   float64        `json:"over_2_5_accuracy"`
	BTTSAccuracy     float64        `json:"btts_accuracy"`
	AvgConfidence    float64        `json:"avg_confidence"`
	Breakdown        datatypes.JSON `json:"breakdown,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (AccuracyStat) TableName() string {
	return "accuracy_stats"
}

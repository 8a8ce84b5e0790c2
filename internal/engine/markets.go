package engine

import (
	"github.com/stitts-dev/match-predictor/internal/models"
)

// Market identifiers used in picks and API payloads.
const (
	MarketMatchOutcome = "1X2"
	MarketOverUnder    = "over_under_2_5"
	MarketBTTS         = "btts"
	MarketHalfFull     = "ht_ft"
)

// htftOrder fixes iteration order over the nine half-time/full-time
// combinations. Keys read "<half-time leader>/<full-time result>".
var htftOrder = []string{"H/H", "D/H", "A/H", "H/D", "D/D", "A/D", "H/A", "D/A", "A/A"}

type marketOutcome struct {
	outcome string
	prob    float64
	odds    float64
}

// SelectMarkets picks one outcome per market. Selection maximizes expected
// ROI against the supplied prices (probability x odds - 1), not raw
// probability: a likely outcome at short odds loses to a longshot with
// positive expectation. Outcomes without a price are skipped; a market with
// no prices at all falls back to the most probable outcome.
func SelectMarkets(p *models.Prediction, odds *models.MarketOdds) []models.MarketPick {
	picks := make([]models.MarketPick, 0, 4)

	if pick := selectOutcome(MarketMatchOutcome, []marketOutcome{
		{"home_win", p.HomeWinProbability, odds.HomeWin},
		{"draw", p.DrawProbability, odds.Draw},
		{"away_win", p.AwayWinProbability, odds.AwayWin},
	}); pick != nil {
		picks = append(picks, *pick)
	}

	if pick := selectOutcome(MarketOverUnder, []marketOutcome{
		{"over", p.Over25Probability, odds.Over25},
		{"under", 1 - p.Over25Probability, odds.Under25},
	}); pick != nil {
		picks = append(picks, *pick)
	}

	if pick := selectOutcome(MarketBTTS, []marketOutcome{
		{"yes", p.BTTSProbability, odds.BTTSYes},
		{"no", 1 - p.BTTSProbability, odds.BTTSNo},
	}); pick != nil {
		picks = append(picks, *pick)
	}

	dist := HTFTDistribution(p.HomeWinProbability, p.DrawProbability, p.AwayWinProbability)
	htftOutcomes := make([]marketOutcome, 0, len(htftOrder))
	for _, key := range htftOrder {
		htftOutcomes = append(htftOutcomes, marketOutcome{
			outcome: key,
			prob:    dist[key],
			odds:    odds.HalfFull[key],
		})
	}
	if pick := selectOutcome(MarketHalfFull, htftOutcomes); pick != nil {
		picks = append(picks, *pick)
	}

	return picks
}

func selectOutcome(market string, outcomes []marketOutcome) *models.MarketPick {
	var best *models.MarketPick
	for _, o := range outcomes {
		if o.odds <= 0 {
			continue
		}
		roi := o.prob*o.odds - 1
		if best == nil || roi > best.ExpectedROI {
			best = &models.MarketPick{
				Market:      market,
				Outcome:     o.outcome,
				Probability: o.prob,
				Odds:        o.odds,
				ExpectedROI: roi,
			}
		}
	}
	if best != nil {
		return best
	}

	// No priced outcomes: fall back to the most probable one.
	for _, o := range outcomes {
		if best == nil || o.prob > best.Probability {
			best = &models.MarketPick{
				Market:      market,
				Outcome:     o.outcome,
				Probability: o.prob,
			}
		}
	}
	return best
}

// HTFTDistribution spreads the outcome triple across the nine half-time /
// full-time combinations using fixed heuristic shares. A side that wins
// usually leads at the break; comebacks from behind carry the smallest
// share. The result is renormalized to sum to 1.
func HTFTDistribution(homeProb, drawProb, awayProb float64) map[string]float64 {
	dist := map[string]float64{
		"H/H": 0.60 * homeProb,
		"D/H": 0.25 * homeProb,
		"A/H": 0.15 * homeProb,
		"H/D": 0.25 * drawProb,
		"D/D": 0.50 * drawProb,
		"A/D": 0.25 * drawProb,
		"H/A": 0.15 * awayProb,
		"D/A": 0.25 * awayProb,
		"A/A": 0.60 * awayProb,
	}

	var sum float64
	for _, share := range dist {
		sum += share
	}
	if sum > 0 {
		for key := range dist {
			dist[key] /= sum
		}
	}
	return dist
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/match-predictor/internal/models"
)

func marketPrediction() *models.Prediction {
	return &models.Prediction{
		HomeTeam:           "Arsenal",
		AwayTeam:           "Chelsea",
		HomeWinProbability: 0.5,
		DrawProbability:    0.3,
		AwayWinProbability: 0.2,
		BTTSProbability:    0.55,
		Over25Probability:  0.7,
	}
}

func pickFor(t *testing.T, picks []models.MarketPick, market string) models.MarketPick {
	t.Helper()
	for _, p := range picks {
		if p.Market == market {
			return p
		}
	}
	t.Fatalf("no pick for market %s", market)
	return models.MarketPick{}
}

func TestSelectMarkets_ROIBeatsRawProbability(t *testing.T) {
	// Home is twice as likely as away but priced so short that the away
	// longshot carries the better expectation.
	odds := &models.MarketOdds{
		HomeWin: 1.8, // 0.5*1.8-1 = -0.10
		Draw:    3.4, // 0.3*3.4-1 = +0.02
		AwayWin: 6.0, // 0.2*6.0-1 = +0.20
	}

	picks := SelectMarkets(marketPrediction(), odds)
	outcome := pickFor(t, picks, MarketMatchOutcome)

	assert.Equal(t, "away_win", outcome.Outcome)
	assert.InDelta(t, 0.2, outcome.ExpectedROI, 1e-9)
}

func TestSelectMarkets_SkipsUnpricedOutcomes(t *testing.T) {
	odds := &models.MarketOdds{Draw: 3.0}

	picks := SelectMarkets(marketPrediction(), odds)
	outcome := pickFor(t, picks, MarketMatchOutcome)

	assert.Equal(t, "draw", outcome.Outcome,
		"only priced outcomes participate in ROI selection")
}

func TestSelectMarkets_FallsBackToMostProbable(t *testing.T) {
	picks := SelectMarkets(marketPrediction(), &models.MarketOdds{})

	outcome := pickFor(t, picks, MarketMatchOutcome)
	assert.Equal(t, "home_win", outcome.Outcome)
	assert.Zero(t, outcome.Odds)
	assert.Zero(t, outcome.ExpectedROI)

	overUnder := pickFor(t, picks, MarketOverUnder)
	assert.Equal(t, "over", overUnder.Outcome)
}

func TestSelectMarkets_HalfFullUsesDistribution(t *testing.T) {
	odds := &models.MarketOdds{
		HalfFull: map[string]float64{
			"H/H": 2.5,
			"A/A": 15.0,
		},
	}

	picks := SelectMarkets(marketPrediction(), odds)
	htft := pickFor(t, picks, MarketHalfFull)

	dist := HTFTDistribution(0.5, 0.3, 0.2)
	hh := dist["H/H"]*2.5 - 1
	aa := dist["A/A"]*15.0 - 1
	if hh >= aa {
		assert.Equal(t, "H/H", htft.Outcome)
	} else {
		assert.Equal(t, "A/A", htft.Outcome)
	}
}

func TestHTFTDistribution_SumsToOne(t *testing.T) {
	dist := HTFTDistribution(0.5, 0.3, 0.2)
	require.Len(t, dist, 9)

	var sum float64
	for _, share := range dist {
		sum += share
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestHTFTDistribution_SharesFollowOutcomes(t *testing.T) {
	dist := HTFTDistribution(0.6, 0.25, 0.15)

	assert.Greater(t, dist["H/H"], dist["A/H"],
		"holding a lead is more common than coming from behind")
	assert.Greater(t, dist["H/H"], dist["A/A"])
	assert.Greater(t, dist["D/D"], dist["A/D"])
}

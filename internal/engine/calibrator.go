package engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Calibration pipeline constants. The logistic squash is a required step: it
// compresses extreme raw scores toward a realistic mid-range before the final
// remap into [calibratedFloor, calibratedCeil].
const (
	sharpnessWeight    = 0.4
	recencyWeight      = 0.2
	completenessWeight = 0.2
	accuracyWeight     = 0.2

	rawFloor = 0.1
	rawCeil  = 0.95

	logisticCenter    = 0.5
	logisticSteepness = 6.0

	calibratedFloor = 0.2
	calibratedCeil  = 0.9

	floorConfidence = 0.1
	neutralAccuracy = 0.5
)

// CalibrationFactors are the data-quality inputs to confidence calibration,
// each in [0, 1].
type CalibrationFactors struct {
	Recency      float64 `json:"recency"`
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
}

// Calibrate turns an outcome distribution plus quality factors into a single
// confidence value in [calibratedFloor, calibratedCeil].
func Calibrate(probs []float64, factors CalibrationFactors) float64 {
	raw := sharpnessWeight*Sharpness(probs) +
		recencyWeight*factors.Recency +
		completenessWeight*factors.Completeness +
		accuracyWeight*factors.Accuracy
	raw = clamp(raw, rawFloor, rawCeil)

	squashed := logistic(raw)
	return calibratedFloor + squashed*(calibratedCeil-calibratedFloor)
}

// Sharpness measures how decisive a distribution is: 1 minus its Shannon
// entropy normalized by the maximum for that many outcomes. The ratio is
// invariant to the logarithm base.
func Sharpness(probs []float64) float64 {
	if len(probs) < 2 {
		return 0
	}
	maxEntropy := math.Log(float64(len(probs)))
	return clamp(1-stat.Entropy(probs)/maxEntropy, 0, 1)
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-logisticSteepness*(x-logisticCenter)))
}

// Explain returns ordered, human-readable factor explanations for display.
// Order is part of the contract: sharpness first, then recency,
// completeness, accuracy.
func Explain(probs []float64, factors CalibrationFactors) []string {
	return []string{
		sharpnessTier(Sharpness(probs)),
		recencyTier(factors.Recency),
		completenessTier(factors.Completeness),
		accuracyTier(factors.Accuracy),
	}
}

func sharpnessTier(s float64) string {
	switch {
	case s >= 0.5:
		return fmt.Sprintf("Model output is decisive (sharpness %.2f)", s)
	case s >= 0.25:
		return fmt.Sprintf("Model leans toward one outcome (sharpness %.2f)", s)
	default:
		return fmt.Sprintf("Outcomes are closely balanced (sharpness %.2f)", s)
	}
}

func recencyTier(r float64) string {
	switch {
	case r >= 0.75:
		return "Based on recent match data"
	case r >= 0.4:
		return "Match data is several months old"
	default:
		return "Match data is stale"
	}
}

func completenessTier(c float64) string {
	switch {
	case c >= 0.75:
		return "Full history window available"
	case c >= 0.4:
		return "Partial history window available"
	default:
		return "Thin history sample"
	}
}

func accuracyTier(a float64) string {
	switch {
	case a >= 0.6:
		return "Model has tracked recent results well"
	case a >= 0.4:
		return "Model accuracy is near its average"
	default:
		return "Model has struggled with recent results"
	}
}

package screening

import (
	"math"

	"github.com/banking/grant-risk-service/internal/domain"
)

// RiskWeight defines how one feature contributes to the score
type RiskWeight struct {
	Feature string
	Cap     float64 // value at which the feature saturates
	Weight  float64
}

// Weights sum to 1.0. This is a fixed linear combination, not a trained model.
var defaultRiskWeights = []RiskWeight{
	{Feature: domain.FeatureReturnRatio, Cap: 5.0, Weight: 0.4},
	{Feature: domain.FeatureMicroCount, Cap: 50, Weight: 0.2},
	{Feature: domain.FeatureBurstiness, Cap: 3.0, Weight: 0.2},
	{Feature: domain.FeatureFragmentationIndex, Cap: 1.0, Weight: 0.1},
	{Feature: domain.FeatureConduitEntropy, Cap: 5.0, Weight: 0.1},
}

// RiskCalculator calculates bounded risk scores from feature vectors
type RiskCalculator struct {
	weights []RiskWeight
}

// NewRiskCalculator creates a calculator with the default weights
func NewRiskCalculator() *RiskCalculator {
	return &RiskCalculator{weights: defaultRiskWeights}
}

// Calculate computes the score in [0,1], rounded to four decimals, and the
// tier of that rounded score
func (c *RiskCalculator) Calculate(f domain.Features) (float64, domain.RiskTier) {
	score := 0.0
	for _, w := range c.weights {
		score += w.Weight * normalize(f.Value(w.Feature), w.Cap)
	}

	score = round4(clamp01(score))
	return score, domain.CalculateRiskTier(score)
}

// FallbackDrivers returns the three highest-weighted contributors with their
// raw feature values. It is fully deterministic.
func (c *RiskCalculator) FallbackDrivers(f domain.Features) []domain.Driver {
	drivers := make([]domain.Driver, 0, 3)
	for _, w := range c.weights[:3] {
		v := f.Value(w.Feature)
		drivers = append(drivers, domain.Driver{
			Feature:      w.Feature,
			Value:        &v,
			Contribution: w.Weight,
		})
	}
	return drivers
}

// normalize scales v by cap into [0,1]; non-finite values count as 0
func normalize(v, cap float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || cap <= 0 {
		return 0
	}
	return clamp01(v / cap)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

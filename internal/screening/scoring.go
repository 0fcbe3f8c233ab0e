package screening

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/banking/grant-risk-service/internal/domain"
	"github.com/banking/grant-risk-service/internal/metrics"
	"github.com/banking/grant-risk-service/internal/pkg/logger"
	"github.com/banking/grant-risk-service/internal/textgen"
)

const maxDrivers = 4

// Scorer turns a feature vector into a persisted-ready Score. The number is
// always computed locally; only the driver explanation is delegated to the
// text generator.
type Scorer struct {
	calculator *RiskCalculator
	generator  textgen.Generator
	metrics    *metrics.Metrics
	log        *logger.Logger
}

// NewScorer creates a scorer
func NewScorer(calculator *RiskCalculator, generator textgen.Generator, m *metrics.Metrics, log *logger.Logger) *Scorer {
	return &Scorer{
		calculator: calculator,
		generator:  generator,
		metrics:    m,
		log:        log,
	}
}

// Score computes the score, tier and top drivers for a feature vector
func (s *Scorer) Score(ctx context.Context, grantID string, f domain.Features, rules *domain.RuleEvaluation) *domain.Score {
	score, tier := s.calculator.Calculate(f)

	return &domain.Score{
		GrantID:    grantID,
		RiskScore:  score,
		RiskTier:   tier,
		RuleHits:   rules,
		TopDrivers: s.TopDrivers(ctx, f),
	}
}

type driversAnswer struct {
	TopDrivers []driverAnswer `json:"top_drivers"`
}

type driverAnswer struct {
	Feature      string   `json:"feature"`
	Value        *float64 `json:"value"`
	Contribution *float64 `json:"contribution"`
}

// TopDrivers asks the generator to rank the features that drove the score.
// An invalid answer or any generator failure yields the fixed fallback.
func (s *Scorer) TopDrivers(ctx context.Context, f domain.Features) []domain.Driver {
	var answer driversAnswer
	err := s.generator.GenerateStructured(ctx, driversPrompt(f), &answer)
	if err == nil {
		var drivers []domain.Driver
		drivers, err = validateDrivers(answer.TopDrivers)
		if err == nil {
			return drivers
		}
	}

	s.metrics.IncrementFallback("top_drivers")
	s.log.WithContext(ctx).GeneratorFallback("top_drivers", err)
	return s.calculator.FallbackDrivers(f)
}

// validateDrivers accepts at most four drivers with named features and
// contributions in [0,1] that sum to at most 1
func validateDrivers(answer []driverAnswer) ([]domain.Driver, error) {
	if len(answer) == 0 {
		return nil, fmt.Errorf("%w: no drivers", textgen.ErrMalformed)
	}
	if len(answer) > maxDrivers {
		return nil, fmt.Errorf("%w: %d drivers, at most %d allowed", textgen.ErrMalformed, len(answer), maxDrivers)
	}

	drivers := make([]domain.Driver, 0, len(answer))
	total := 0.0
	for i, d := range answer {
		if strings.TrimSpace(d.Feature) == "" {
			return nil, fmt.Errorf("%w: driver %d has no feature", textgen.ErrMalformed, i)
		}
		if d.Contribution == nil {
			return nil, fmt.Errorf("%w: driver %q has no contribution", textgen.ErrMalformed, d.Feature)
		}
		c := *d.Contribution
		if math.IsNaN(c) || c < 0 || c > 1 {
			return nil, fmt.Errorf("%w: driver %q contribution %v outside [0,1]", textgen.ErrMalformed, d.Feature, c)
		}
		total += c
		drivers = append(drivers, domain.Driver{
			Feature:      d.Feature,
			Value:        d.Value,
			Contribution: c,
		})
	}

	// tolerate float noise from the model's own arithmetic
	if total > 1+1e-9 {
		return nil, fmt.Errorf("%w: contributions sum to %v", textgen.ErrMalformed, total)
	}
	return drivers, nil
}

func driversPrompt(f domain.Features) string {
	features, _ := json.Marshal(f)
	return "You are an AML assistant. Given the computed numeric features below, return a JSON object " +
		"with a key \"top_drivers\": a list of up to 4 objects with keys feature, value, contribution (0..1).\n" +
		"Contributions should be proportional to each feature's absolute normalized influence and sum to at most 1.0.\n" +
		"Return only JSON, no markdown.\n\nfeatures: " + string(features)
}

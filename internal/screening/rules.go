package screening

import (
	"github.com/banking/grant-risk-service/internal/domain"
)

// thresholdRule is a deterministic predicate over rule signals
type thresholdRule struct {
	ID          domain.RuleID
	Description string
	Fires       func(s domain.RuleSignals) bool
}

// Evaluated in this order, every time, with no dependencies between rules.
var thresholdRules = []thresholdRule{
	{
		ID:          domain.RuleReturnAndMicro,
		Description: "Most inflows are returned and many inflows are micro payments",
		Fires: func(s domain.RuleSignals) bool {
			return s.ReturnRatio > 0.5 && s.MicroCount > 5
		},
	},
	{
		ID:          domain.RuleBurstiness,
		Description: "Inflow amounts are highly irregular",
		Fires: func(s domain.RuleSignals) bool {
			return s.Burstiness > 1.0
		},
	},
	{
		ID:          domain.RuleFragmentationAndConduits,
		Description: "Inflows are fragmented across many distinct conduits",
		Fires: func(s domain.RuleSignals) bool {
			return s.FragmentationIndex > 0.5 && s.ConduitEntropy > 1.0
		},
	},
}

// EvaluateRules runs every threshold rule against a feature vector
func EvaluateRules(f domain.Features) domain.RuleEvaluation {
	signals := domain.RuleSignals{
		ReturnRatio:        f.ReturnRatio,
		MicroCount:         f.MicroCount,
		Burstiness:         f.Burstiness,
		FragmentationIndex: f.FragmentationIndex,
		ConduitEntropy:     f.ConduitEntropy,
	}

	triggered := make([]domain.RuleID, 0, len(thresholdRules))
	for _, r := range thresholdRules {
		if r.Fires(signals) {
			triggered = append(triggered, r.ID)
		}
	}

	return domain.RuleEvaluation{
		TriggeredRules: triggered,
		Signals:        signals,
	}
}

// RuleDescription returns the analyst-facing description of a rule
func RuleDescription(id domain.RuleID) string {
	for _, r := range thresholdRules {
		if r.ID == id {
			return r.Description
		}
	}
	return ""
}

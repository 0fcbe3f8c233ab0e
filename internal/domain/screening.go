package domain

import "time"

// RuleID identifies a threshold rule
type RuleID string

const (
	RuleReturnAndMicro           RuleID = "R1" // high return ratio with many micro inflows
	RuleBurstiness               RuleID = "R2" // bursty inflow amounts
	RuleFragmentationAndConduits RuleID = "R3" // fragmented inflows across many conduits
)

// RuleSignals is the snapshot of feature values the rules were evaluated on
type RuleSignals struct {
	ReturnRatio        float64 `json:"return_ratio"`
	MicroCount         int     `json:"micro_count"`
	Burstiness         float64 `json:"burstiness"`
	FragmentationIndex float64 `json:"fragmentation_index"`
	ConduitEntropy     float64 `json:"conduit_entropy"`
}

// RuleEvaluation is the persisted rule outcome for a subject
type RuleEvaluation struct {
	GrantID        string      `json:"grant_id"`
	TriggeredRules []RuleID    `json:"triggered_rules"`
	Signals        RuleSignals `json:"signals"`
}

// Triggered reports whether a rule fired
func (r RuleEvaluation) Triggered(id RuleID) bool {
	for _, rule := range r.TriggeredRules {
		if rule == id {
			return true
		}
	}
	return false
}

// RiskTier represents the discretized risk bucket
type RiskTier string

const (
	RiskTierLow     RiskTier = "Low"
	RiskTierMedium  RiskTier = "Medium"
	RiskTierHigh    RiskTier = "High"
	RiskTierUnknown RiskTier = "Unknown" // no score computed yet
)

// CalculateRiskTier returns the tier for a score in [0,1].
// Boundaries are inclusive on the lower edge of each tier.
func CalculateRiskTier(score float64) RiskTier {
	switch {
	case score >= 0.75:
		return RiskTierHigh
	case score >= 0.4:
		return RiskTierMedium
	default:
		return RiskTierLow
	}
}

// Driver is one feature's explained contribution to a score
type Driver struct {
	Feature      string   `json:"feature"`
	Value        *float64 `json:"value"`
	Contribution float64  `json:"contribution"`
}

// Score is the persisted risk assessment for a subject
type Score struct {
	GrantID    string          `json:"grant_id"`
	RiskScore  float64         `json:"risk_score"` // 0..1
	RiskTier   RiskTier        `json:"risk_tier"`
	RuleHits   *RuleEvaluation `json:"rule_hits,omitempty"`
	TopDrivers []Driver        `json:"top_drivers"`
	ScoredAt   time.Time       `json:"scored_at"`
}

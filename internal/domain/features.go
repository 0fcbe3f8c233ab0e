package domain

import "time"

// Feature names, in the order they are reported
const (
	FeatureReturnRatio         = "return_ratio"
	FeatureMicroCount          = "micro_count"
	FeatureFragmentationIndex  = "fragmentation_index"
	FeatureLatencyFirstInflowD = "latency_first_inflow_d"
	FeatureTwoHopAmountCapped  = "twohop_amount_capped"
	FeatureRelationshipOverlap = "relationship_overlap"
	FeatureBurstiness          = "burstiness"
	FeatureConduitEntropy      = "conduit_entropy"
	FeatureCycleCount          = "cycle_count"
	FeatureTxCount             = "tx_count"
)

// Features is the fixed-shape numeric summary of a subject's transactions.
// Floats are rounded to 4 decimals; counts stay integral.
type Features struct {
	ReturnRatio         float64 `json:"return_ratio"`
	MicroCount          int     `json:"micro_count"`
	FragmentationIndex  float64 `json:"fragmentation_index"`
	LatencyFirstInflowD *int    `json:"latency_first_inflow_d"` // null when there are no transactions
	TwoHopAmountCapped  float64 `json:"twohop_amount_capped"`
	RelationshipOverlap int     `json:"relationship_overlap"`
	Burstiness          float64 `json:"burstiness"`
	ConduitEntropy      float64 `json:"conduit_entropy"`
	CycleCount          int     `json:"cycle_count"` // repeated (from,to) pairs, not true graph cycles
	TxCount             int     `json:"tx_count"`
}

// FeatureParams are accepted with every computation and stored for audit.
// They do not change the computation today.
type FeatureParams struct {
	ThetaMicro float64 `json:"theta_micro"`
	Windows    []int   `json:"windows"`
}

// FeatureRequest carries a caller's parameter overrides. Absent fields take
// the configured defaults; an explicit zero is kept.
type FeatureRequest struct {
	ThetaMicro *float64 `json:"theta_micro"`
	Windows    []int    `json:"windows"`
}

// FeatureSet is the persisted feature vector for a subject. At most one live
// FeatureSet exists per grant; each computation overwrites it.
type FeatureSet struct {
	GrantID    string        `json:"grant_id"`
	ComputedAt time.Time     `json:"computed_at"`
	Features   Features      `json:"features"`
	Meta       FeatureParams `json:"meta"`
}

// Value returns a named feature as a float, 0 for unknown names or null values
func (f Features) Value(name string) float64 {
	switch name {
	case FeatureReturnRatio:
		return f.ReturnRatio
	case FeatureMicroCount:
		return float64(f.MicroCount)
	case FeatureFragmentationIndex:
		return f.FragmentationIndex
	case FeatureLatencyFirstInflowD:
		if f.LatencyFirstInflowD == nil {
			return 0
		}
		return float64(*f.LatencyFirstInflowD)
	case FeatureTwoHopAmountCapped:
		return f.TwoHopAmountCapped
	case FeatureRelationshipOverlap:
		return float64(f.RelationshipOverlap)
	case FeatureBurstiness:
		return f.Burstiness
	case FeatureConduitEntropy:
		return f.ConduitEntropy
	case FeatureCycleCount:
		return float64(f.CycleCount)
	case FeatureTxCount:
		return float64(f.TxCount)
	default:
		return 0
	}
}

package domain

import "time"

// Collection is a known record kind. Ingestion and storage only ever address
// these; arbitrary collection names are rejected.
type Collection string

const (
	CollectionTransactions Collection = "transactions"
	CollectionFeatures     Collection = "features"
	CollectionRulesEval    Collection = "rules_eval"
	CollectionScores       Collection = "scores"
	CollectionAlerts       Collection = "alerts"
	CollectionTriage       Collection = "triage"
	CollectionEntities     Collection = "entities"
)

// Collections lists every known record kind
var Collections = []Collection{
	CollectionTransactions,
	CollectionFeatures,
	CollectionRulesEval,
	CollectionScores,
	CollectionAlerts,
	CollectionTriage,
	CollectionEntities,
}

// ParseCollection validates a collection name
func ParseCollection(name string) (Collection, bool) {
	for _, c := range Collections {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// KeyField returns the JSON field a collection's records are keyed by
func (c Collection) KeyField() string {
	if c == CollectionEntities {
		return "party_id"
	}
	return "grant_id"
}

// IngestionRecord is appended to the ingestion log for every ingest call
type IngestionRecord struct {
	Collection Collection `json:"collection"`
	Count      int        `json:"count"`
	Timestamp  time.Time  `json:"ts"`
}

// DriftMetrics are placeholder model drift gauges
type DriftMetrics struct {
	FeaturePSI      float64 `json:"feature_psi"`
	PredictionDrift float64 `json:"prediction_drift"`
}

// MonitoringStatus is the read-only operational summary
type MonitoringStatus struct {
	IngestionLagSec     int64        `json:"ingestion_lag_sec"`
	FeatureFreshnessSec int64        `json:"feature_freshness_sec"`
	AlertVolumeToday    int64        `json:"alert_volume_today"`
	PrecisionSample     float64      `json:"precision_sample"`
	ModelVersion        string       `json:"model_version"`
	DriftMetrics        DriftMetrics `json:"drift_metrics"`
}

package domain

import (
	"time"
)

// Justification is the natural-language explanation attached to an alert
type Justification struct {
	Summary             string `json:"summary"`
	RecommendedAction   string `json:"recommended_action"`
	SeverityExplanation string `json:"severity_explanation"`
}

// FallbackJustification is used whenever no explanation could be generated
func FallbackJustification() Justification {
	return Justification{
		Summary:             "Could not generate explanation",
		RecommendedAction:   "Investigate",
		SeverityExplanation: "",
	}
}

// TimelineEvent is a reduced view of a transaction on an alert
type TimelineEvent struct {
	Date   string    `json:"date"`
	Event  Direction `json:"event"`
	Amount float64   `json:"amount"`
}

// Alert combines the latest score, rule hits, features and recent activity
// for a subject. Once stored it is served verbatim.
type Alert struct {
	GrantID          string          `json:"grant_id"`
	RiskScore        float64         `json:"risk_score"`
	RiskTier         RiskTier        `json:"risk_tier"`
	RuleHits         []RuleID        `json:"rule_hits"`
	TopDrivers       []Driver        `json:"top_drivers,omitempty"`
	ComputedFeatures *Features       `json:"computed_features,omitempty"`
	Timeline         []TimelineEvent `json:"timeline"`
	Justification    Justification   `json:"justification"`
	Timestamp        time.Time       `json:"timestamp"`
}

// AlertEventType names events published about alerts
type AlertEventType string

const (
	AlertEventMaterialized AlertEventType = "ALERT_MATERIALIZED"
	AlertEventTriaged      AlertEventType = "ALERT_TRIAGED"
)

// AlertEvent is published to the alerts topic
type AlertEvent struct {
	EventID     string         `json:"event_id"`
	EventType   AlertEventType `json:"event_type"`
	GrantID     string         `json:"grant_id"`
	RiskScore   float64        `json:"risk_score,omitempty"`
	RiskTier    RiskTier       `json:"risk_tier,omitempty"`
	Disposition Disposition    `json:"disposition,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

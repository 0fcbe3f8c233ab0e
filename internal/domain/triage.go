package domain

import (
	"time"
)

// Disposition is the analyst's verdict on an alert. Free-form values are
// accepted; the constants below are the ones the case-management UI offers.
type Disposition string

const (
	DispositionConfirmed     Disposition = "Confirmed"
	DispositionFalsePositive Disposition = "False Positive"
	DispositionEscalated     Disposition = "Escalated"
)

// TriageDecision is the latest analyst decision for a subject. It is stored
// independently of the alert; the last decision wins.
type TriageDecision struct {
	ID           string      `json:"id"`
	GrantID      string      `json:"grant_id"`
	Disposition  Disposition `json:"disposition"`
	AnalystNotes *string     `json:"analyst_notes"`
	AnalystID    string      `json:"analyst_id,omitempty"`
	Timestamp    time.Time   `json:"ts"`
}

// TriageRequest is the analyst's submission
type TriageRequest struct {
	Disposition  Disposition `json:"disposition"`
	AnalystNotes *string     `json:"analyst_notes,omitempty"`
}

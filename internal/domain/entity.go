package domain

import "encoding/json"

// EntityMapping maps a raw party identifier to a canonical one. A stored
// mapping with a canonical id is authoritative and never re-queried.
type EntityMapping struct {
	PartyID     string  `json:"party_id"`
	CanonicalID string  `json:"canonical_id"`
	Confidence  float64 `json:"confidence"` // 0..1
}

// UnmarshalJSON defaults an absent or null confidence to 1.0
func (m *EntityMapping) UnmarshalJSON(data []byte) error {
	type plain EntityMapping
	var aux struct {
		plain
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*m = EntityMapping(aux.plain)
	m.Confidence = 1.0
	if aux.Confidence != nil {
		m.Confidence = *aux.Confidence
	}
	return nil
}

// IdentityMapping is the fallback used when no better suggestion exists
func IdentityMapping(partyID string) EntityMapping {
	return EntityMapping{PartyID: partyID, CanonicalID: partyID, Confidence: 1.0}
}

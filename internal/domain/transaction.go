package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Direction of funds relative to the subject
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Transaction is a single money movement attributed to a subject (grant).
// Ingested records are immutable; the service only reads them.
type Transaction struct {
	GrantID      string    `json:"grant_id"`
	Amount       Amount    `json:"amount"`
	Direction    Direction `json:"direction"`
	Timestamp    string    `json:"timestamp,omitempty"` // ISO-8601 as ingested
	Counterparty string    `json:"counterparty,omitempty"`
	From         string    `json:"from,omitempty"`
	To           string    `json:"to,omitempty"`
}

// Amount is a monetary value that tolerates the loose shapes seen in ingested
// records: JSON numbers, numeric strings, null or garbage (decoded as 0).
type Amount float64

// UnmarshalJSON never fails; unparseable values decode to zero.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*a = Amount(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*a = Amount(v)
			return nil
		}
	}

	*a = 0
	return nil
}

// IsInflow returns true if funds moved into the subject
func (t *Transaction) IsInflow() bool {
	return t.Direction == DirectionIn
}

// IsOutflow returns true if funds moved out of the subject
func (t *Transaction) IsOutflow() bool {
	return t.Direction == DirectionOut
}

// AbsAmount returns the unsigned amount
func (t *Transaction) AbsAmount() float64 {
	if t.Amount < 0 {
		return float64(-t.Amount)
	}
	return float64(t.Amount)
}

// UnmarshalJSON never fails for a JSON object. Identifier and timestamp
// fields that arrive as numbers or other non-string values keep their raw JSON
// text, matching how ingested records are stored as-is.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	var aux struct {
		plain
		GrantID      json.RawMessage `json:"grant_id"`
		Timestamp    json.RawMessage `json:"timestamp"`
		Counterparty json.RawMessage `json:"counterparty"`
		From         json.RawMessage `json:"from"`
		To           json.RawMessage `json:"to"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*t = Transaction(aux.plain)
	t.GrantID = looseText(aux.GrantID)
	t.Timestamp = looseText(aux.Timestamp)
	t.Counterparty = looseText(aux.Counterparty)
	t.From = looseText(aux.From)
	t.To = looseText(aux.To)
	return nil
}

// looseText returns a JSON string unquoted, null or absent as "", and any
// other value as its compact JSON text
func looseText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// UnmarshalJSON keeps string directions verbatim; only "in" and "out" count
// as flows. Non-string values decode to the empty direction.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*d = ""
		return nil
	}
	*d = Direction(s)
	return nil
}

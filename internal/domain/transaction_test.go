package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionDecodesLooseRecords(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Transaction
	}{
		{
			name: "well formed",
			in:   `{"grant_id":"G1","amount":12.5,"direction":"in","counterparty":"ACME","from":"A","to":"B","timestamp":"2024-05-01T10:00:00Z"}`,
			want: Transaction{GrantID: "G1", Amount: 12.5, Direction: DirectionIn, Counterparty: "ACME", From: "A", To: "B", Timestamp: "2024-05-01T10:00:00Z"},
		},
		{
			name: "numeric identifiers and epoch timestamp",
			in:   `{"grant_id":7,"amount":"300","direction":"out","counterparty":42,"timestamp":1700000000}`,
			want: Transaction{GrantID: "7", Amount: 300, Direction: DirectionOut, Counterparty: "42", Timestamp: "1700000000"},
		},
		{
			name: "garbage values",
			in:   `{"grant_id":"G1","amount":"lots","direction":5,"counterparty":true,"from":null,"to":[1, 2]}`,
			want: Transaction{GrantID: "G1", Counterparty: "true", To: "[1,2]"},
		},
		{
			name: "direction kept verbatim",
			in:   `{"grant_id":"G1","direction":"INBOUND"}`,
			want: Transaction{GrantID: "G1", Direction: "INBOUND"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Transaction
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransactionDirectionIsExact(t *testing.T) {
	for _, d := range []Direction{"IN", "inbound", "credit", " in"} {
		tx := Transaction{Direction: d}
		assert.False(t, tx.IsInflow(), d)
	}
	assert.True(t, (&Transaction{Direction: DirectionIn}).IsInflow())
	assert.True(t, (&Transaction{Direction: DirectionOut}).IsOutflow())
}

func TestTransactionRejectsNonObject(t *testing.T) {
	var tx Transaction
	assert.Error(t, json.Unmarshal([]byte(`"G1"`), &tx))
}

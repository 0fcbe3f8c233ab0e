package screening

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/grant-risk-service/internal/domain"
	"github.com/banking/grant-risk-service/internal/store"
)

func TestIngestRejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name       string
		collection string
		records    string
	}{
		{"empty collection", "", `[]`},
		{"unknown collection", "users", `[]`},
		{"records object", "transactions", `{"grant_id":"G1"}`},
		{"records null", "transactions", `null`},
		{"records missing", "transactions", ``},
		{"record not object", "transactions", `[{"grant_id":"G1"}, 5]`},
		{"transaction without grant", "transactions", `[{"amount":5,"direction":"in"}]`},
		{"entity without party", "entities", `[{"canonical_id":"C1"}]`},
		{"score with wrong types", "scores", `[{"grant_id":"G1","risk_score":"high"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			engine := newTestEngine(st, failingGenerator(), nil)

			_, err := engine.Ingest(context.Background(), tt.collection, json.RawMessage(tt.records))
			assert.ErrorIs(t, err, domain.ErrInvalidInput)

			_, err = st.LastIngestion(context.Background())
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestIngestRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	engine := newTestEngine(st, failingGenerator(), nil)

	_, err := engine.Ingest(ctx, "transactions", json.RawMessage(`[{"grant_id":"G1","amount":5},{"amount":7}]`))
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	txs, err := st.ListTransactions(ctx, "G1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestIngestKeepsTransactionsWithLooseFields(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	engine := newTestEngine(st, failingGenerator(), nil)

	n, err := engine.Ingest(ctx, "transactions", json.RawMessage(`[
		{"grant_id":"G1","amount":500,"direction":"in","counterparty":42,"timestamp":1700000000},
		{"grant_id":"G1","amount":"12.5","direction":"IN","from":{"acct":1},"to":null}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	txs, err := st.ListTransactions(ctx, "G1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "42", txs[0].Counterparty)
	assert.Equal(t, "1700000000", txs[0].Timestamp)
	assert.Equal(t, `{"acct":1}`, txs[1].From)
	assert.Equal(t, "", txs[1].To)

	// only the exact "in" direction counts as an inflow
	fs, err := engine.ComputeFeatures(ctx, "G1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fs.Features.MicroCount)
	assert.Equal(t, 0.0, fs.Features.ReturnRatio)
}

func TestIngestUpsertsDocumentsByKey(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	engine := newTestEngine(st, failingGenerator(), nil)

	n, err := engine.Ingest(ctx, "entities", json.RawMessage(`[
		{"party_id":"P1","canonical_id":"C0","confidence":0.3},
		{"party_id":"P1","canonical_id":"C1","confidence":0.9}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	m, err := st.GetEntityMapping(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "C1", m.CanonicalID)

	last, err := st.LastIngestion(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionRecord{Collection: domain.CollectionEntities, Count: 2, Timestamp: testNow}, *last)
}

func TestIngestStampsMissingTimestamps(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	engine := newTestEngine(st, failingGenerator(), nil)

	_, err := engine.Ingest(ctx, "alerts", json.RawMessage(`[
		{"grant_id":"G1","risk_score":0.9,"risk_tier":"High"},
		{"grant_id":"G2","risk_score":0.1,"risk_tier":"Low","timestamp":"2024-01-01T00:00:00Z"}
	]`))
	require.NoError(t, err)

	a1, err := st.GetAlert(ctx, "G1")
	require.NoError(t, err)
	assert.Equal(t, testNow, a1.Timestamp)

	a2, err := st.GetAlert(ctx, "G2")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), a2.Timestamp)
}

func TestIngestEveryKnownCollection(t *testing.T) {
	records := map[domain.Collection]string{
		domain.CollectionTransactions: `[{"grant_id":"G1","amount":10,"direction":"in"}]`,
		domain.CollectionFeatures:     `[{"grant_id":"G1","features":{"return_ratio":0.7,"micro_count":9}}]`,
		domain.CollectionRulesEval:    `[{"grant_id":"G1","triggered_rules":["R1"]}]`,
		domain.CollectionScores:       `[{"grant_id":"G1","risk_score":0.42,"risk_tier":"Medium"}]`,
		domain.CollectionAlerts:       `[{"grant_id":"G1","risk_score":0.42,"risk_tier":"Medium"}]`,
		domain.CollectionTriage:       `[{"grant_id":"G1","disposition":"Escalated"}]`,
		domain.CollectionEntities:     `[{"party_id":"P1","canonical_id":"C1","confidence":1}]`,
	}

	ctx := context.Background()
	st := store.NewMemory()
	engine := newTestEngine(st, failingGenerator(), nil)

	for _, c := range domain.Collections {
		n, err := engine.Ingest(ctx, " "+string(c)+" ", json.RawMessage(records[c]))
		require.NoError(t, err, c)
		assert.Equal(t, 1, n, c)
	}

	fs, err := st.GetFeatures(ctx, "G1")
	require.NoError(t, err)
	assert.Equal(t, 9, fs.Features.MicroCount)

	eval, err := engine.ApplyRules(ctx, "G1")
	require.NoError(t, err)
	assert.Equal(t, []domain.RuleID{domain.RuleReturnAndMicro}, eval.TriggeredRules)
}

func TestIngestTransactionsFromStream(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	engine := newTestEngine(st, failingGenerator(), nil)

	n, err := engine.IngestTransactions(ctx, []domain.Transaction{{GrantID: "G1", Amount: 5, Direction: domain.DirectionIn}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = engine.IngestTransactions(ctx, []domain.Transaction{{Amount: 5}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

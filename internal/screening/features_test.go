package screening

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/grant-risk-service/internal/domain"
)

func inflow(amount float64, counterparty string) domain.Transaction {
	return domain.Transaction{GrantID: "G1", Amount: domain.Amount(amount), Direction: domain.DirectionIn, Counterparty: counterparty}
}

func outflow(amount float64, counterparty string) domain.Transaction {
	return domain.Transaction{GrantID: "G1", Amount: domain.Amount(amount), Direction: domain.DirectionOut, Counterparty: counterparty}
}

func TestExtractFeaturesEmpty(t *testing.T) {
	f := ExtractFeatures(nil)

	assert.Equal(t, domain.Features{}, f)
	assert.Zero(t, f.TxCount)
	assert.Nil(t, f.LatencyFirstInflowD)
}

func TestExtractFeaturesReturnAndOverlapScenario(t *testing.T) {
	txs := []domain.Transaction{
		inflow(100, "A"),
		inflow(100, "B"),
		inflow(9000, "C"),
		outflow(9000, "C"),
	}

	f := ExtractFeatures(txs)

	assert.Equal(t, 0.9783, f.ReturnRatio)
	assert.GreaterOrEqual(t, f.RelationshipOverlap, 1)
	assert.Equal(t, 2, f.MicroCount)
	assert.Equal(t, 1.0, f.FragmentationIndex)
	assert.Equal(t, 9200.0, f.TwoHopAmountCapped)
	assert.Equal(t, 1.0986, f.ConduitEntropy)
	assert.Greater(t, f.Burstiness, 1.0)
	assert.Equal(t, 4, f.TxCount)
	require.NotNil(t, f.LatencyFirstInflowD)
	assert.Zero(t, *f.LatencyFirstInflowD)
}

func TestReturnRatioZeroWithoutInflows(t *testing.T) {
	f := ExtractFeatures([]domain.Transaction{outflow(500, "X"), outflow(70000, "Y")})

	assert.Zero(t, f.ReturnRatio)
	assert.Zero(t, f.Burstiness)
	assert.Zero(t, f.FragmentationIndex)
	assert.Equal(t, 2, f.TxCount)
}

func TestFragmentationIndexRange(t *testing.T) {
	tests := []struct {
		name string
		txs  []domain.Transaction
		want float64
	}{
		{"single counterparty", []domain.Transaction{inflow(1, "A"), inflow(2, "A"), inflow(3, "A"), inflow(4, "A")}, 0.25},
		{"all distinct", []domain.Transaction{inflow(1, "A"), inflow(2, "B")}, 1},
		{"no counterparties", []domain.Transaction{inflow(1, ""), inflow(2, "")}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ExtractFeatures(tt.txs)
			assert.Equal(t, tt.want, f.FragmentationIndex)
			assert.GreaterOrEqual(t, f.FragmentationIndex, 0.0)
			assert.LessOrEqual(t, f.FragmentationIndex, 1.0)
		})
	}
}

func TestMicroCountAndTwoHopCap(t *testing.T) {
	f := ExtractFeatures([]domain.Transaction{
		inflow(999.99, "A"),
		inflow(1000, "B"),
		inflow(-20, "C"),
		inflow(25000, "D"),
	})

	assert.Equal(t, 2, f.MicroCount)
	assert.Equal(t, 999.99+1000+20+10000, f.TwoHopAmountCapped)
}

func TestConduitEntropy(t *testing.T) {
	t.Run("one counterparty carries none", func(t *testing.T) {
		f := ExtractFeatures([]domain.Transaction{inflow(1, "A"), inflow(2, "A")})
		assert.Zero(t, f.ConduitEntropy)
	})

	t.Run("uniform over four", func(t *testing.T) {
		f := ExtractFeatures([]domain.Transaction{inflow(1, "A"), inflow(1, "B"), inflow(1, "C"), inflow(1, "D")})
		assert.Equal(t, math.Round(math.Log(4)*1e4)/1e4, f.ConduitEntropy)
	})
}

func TestCycleCountCountsRepeatedEdges(t *testing.T) {
	edge := func(from, to string) domain.Transaction {
		return domain.Transaction{GrantID: "G1", Direction: domain.DirectionOut, Amount: 1, From: from, To: to}
	}

	f := ExtractFeatures([]domain.Transaction{
		edge("A", "B"),
		edge("A", "B"),
		edge("B", "C"),
		edge("A", "B"),
	})

	assert.Equal(t, 2, f.CycleCount)
}

func TestMalformedFieldsDoNotFail(t *testing.T) {
	f := ExtractFeatures([]domain.Transaction{
		{GrantID: "G1", Direction: domain.DirectionIn},
		{GrantID: "G1", Direction: "sideways", Amount: 40},
		{GrantID: "G1", Direction: domain.DirectionIn, Amount: 10, Timestamp: "not a time"},
	})

	assert.Equal(t, 3, f.TxCount)
	assert.Equal(t, 2, f.MicroCount)
}

func TestExtractFeaturesIsOrderIndependent(t *testing.T) {
	var txs []domain.Transaction
	for i := 0; i < 60; i++ {
		amount := float64(i*137%2500) + 0.1*float64(i)
		cp := string(rune('A' + i%7))
		if i%3 == 0 {
			txs = append(txs, outflow(amount, cp))
		} else {
			txs = append(txs, inflow(amount, cp))
		}
	}

	want := ExtractFeatures(txs)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.Transaction(nil), txs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		require.Equal(t, want, ExtractFeatures(shuffled))
	}
}

package screening

import (
	"math"
	"sort"

	"github.com/banking/grant-risk-service/internal/domain"
)

const (
	// Inflows strictly below this amount count as micro transactions
	microThreshold = 1000.0
	// Per-inflow ceiling applied before summing the two-hop amount
	twoHopCap = 10000.0
)

// ExtractFeatures turns a subject's transactions into its feature vector.
//
// The result depends only on the set of transactions, never on their order:
// amounts are sorted and counterparties visited in key order before any
// floating point accumulation. It never fails; malformed amounts have already
// decoded to 0 and missing timestamps are ignored.
func ExtractFeatures(txs []domain.Transaction) domain.Features {
	if len(txs) == 0 {
		return domain.Features{}
	}

	var amountsIn, amountsOut []float64
	inflowCounterparties := make(map[string]int)
	outflowCounterparties := make(map[string]struct{})

	for i := range txs {
		tx := &txs[i]
		switch {
		case tx.IsInflow():
			amountsIn = append(amountsIn, tx.AbsAmount())
			if tx.Counterparty != "" {
				inflowCounterparties[tx.Counterparty]++
			}
		case tx.IsOutflow():
			amountsOut = append(amountsOut, tx.AbsAmount())
			if tx.Counterparty != "" {
				outflowCounterparties[tx.Counterparty] = struct{}{}
			}
		}
	}

	sort.Float64s(amountsIn)
	sort.Float64s(amountsOut)

	sumIn := sum(amountsIn)
	sumOut := sum(amountsOut)

	returnRatio := 0.0
	if sumIn > 0 {
		returnRatio = sumOut / sumIn
	}

	microCount := 0
	twoHop := 0.0
	for _, a := range amountsIn {
		if a < microThreshold {
			microCount++
		}
		twoHop += math.Min(a, twoHopCap)
	}

	inflowCount := len(amountsIn)
	if inflowCount == 0 {
		inflowCount = 1
	}
	fragmentation := float64(len(inflowCounterparties)) / float64(inflowCount)

	overlap := 0
	for cp := range inflowCounterparties {
		if _, ok := outflowCounterparties[cp]; ok {
			overlap++
		}
	}

	// No subject creation timestamp is ever supplied, so the first inflow is
	// measured against itself.
	latency := 0

	return domain.Features{
		ReturnRatio:         round4(returnRatio),
		MicroCount:          microCount,
		FragmentationIndex:  round4(fragmentation),
		LatencyFirstInflowD: &latency,
		TwoHopAmountCapped:  round4(twoHop),
		RelationshipOverlap: overlap,
		Burstiness:          round4(coefficientOfVariation(amountsIn)),
		ConduitEntropy:      round4(shannonEntropy(inflowCounterparties)),
		CycleCount:          repeatedEdges(txs),
		TxCount:             len(txs),
	}
}

// coefficientOfVariation returns population stddev / mean, 0 for an empty
// sample or a zero mean. values must be sorted.
func coefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	n := float64(len(values))
	mean := sum(values) / n
	if mean <= 0 {
		return 0
	}

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= n

	return math.Sqrt(variance) / mean
}

// shannonEntropy is the natural-log entropy of a counterparty distribution.
// One or zero distinct counterparties carry no entropy.
func shannonEntropy(counts map[string]int) float64 {
	if len(counts) <= 1 {
		return 0
	}

	keys := make([]string, 0, len(counts))
	total := 0
	for k, c := range counts {
		keys = append(keys, k)
		total += c
	}
	sort.Strings(keys)

	entropy := 0.0
	for _, k := range keys {
		p := float64(counts[k]) / float64(total)
		entropy -= p * math.Log(p)
	}
	return entropy
}

// repeatedEdges counts transactions whose (from, to) pair was already seen.
// This is a repeated-edge counter, not graph cycle detection. Transactions
// without from/to share the empty pair and count as repeats of each other.
func repeatedEdges(txs []domain.Transaction) int {
	type edge struct{ from, to string }
	seen := make(map[edge]struct{}, len(txs))
	for i := range txs {
		seen[edge{txs[i].From, txs[i].To}] = struct{}{}
	}
	return len(txs) - len(seen)
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func round4(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*1e4) / 1e4
}

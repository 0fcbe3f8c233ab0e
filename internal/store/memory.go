package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banking/grant-risk-service/internal/domain"
)

// Memory is an in-memory Store for development and tests. Records are kept
// as JSON so callers never share memory with the store.
type Memory struct {
	mu        sync.RWMutex
	docs      map[domain.Collection]map[string][]byte
	txs       []storedTransaction
	ingestLog []domain.IngestionRecord
	seq       int64
}

type storedTransaction struct {
	seq int64
	tx  domain.Transaction
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	docs := make(map[domain.Collection]map[string][]byte, len(domain.Collections))
	for _, c := range domain.Collections {
		docs[c] = make(map[string][]byte)
	}
	return &Memory{docs: docs}
}

func (m *Memory) put(c domain.Collection, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s/%s: %v", domain.ErrStorage, c, key, err)
	}
	m.mu.Lock()
	m.docs[c][key] = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) get(c domain.Collection, key string, out any) error {
	m.mu.RLock()
	b, ok := m.docs[c][key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s %q: %w", c, key, domain.ErrNotFound)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%w: decode %s/%s: %v", domain.ErrStorage, c, key, err)
	}
	return nil
}

func (m *Memory) InsertTransactions(_ context.Context, txs []domain.Transaction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		m.seq++
		m.txs = append(m.txs, storedTransaction{seq: m.seq, tx: tx})
	}
	return len(txs), nil
}

func (m *Memory) ListTransactions(_ context.Context, grantID string) ([]domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Transaction
	for _, st := range m.txs {
		if st.tx.GrantID == grantID {
			out = append(out, st.tx)
		}
	}
	return out, nil
}

func (m *Memory) RecentTransactions(_ context.Context, grantID string, limit int) ([]domain.Transaction, error) {
	m.mu.RLock()
	var matched []storedTransaction
	for _, st := range m.txs {
		if st.tx.GrantID == grantID {
			matched = append(matched, st)
		}
	}
	m.mu.RUnlock()

	// Newest first by timestamp text, then by insertion order, matching the
	// ordering of the Postgres store.
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].tx.Timestamp != matched[j].tx.Timestamp {
			return matched[i].tx.Timestamp > matched[j].tx.Timestamp
		}
		return matched[i].seq > matched[j].seq
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]domain.Transaction, len(matched))
	for i, st := range matched {
		out[i] = st.tx
	}
	return out, nil
}

func (m *Memory) SaveFeatures(_ context.Context, fs *domain.FeatureSet) error {
	return m.put(domain.CollectionFeatures, fs.GrantID, fs)
}

func (m *Memory) GetFeatures(_ context.Context, grantID string) (*domain.FeatureSet, error) {
	var fs domain.FeatureSet
	if err := m.get(domain.CollectionFeatures, grantID, &fs); err != nil {
		return nil, err
	}
	return &fs, nil
}

func (m *Memory) LatestFeatures(_ context.Context) (*domain.FeatureSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *domain.FeatureSet
	for _, b := range m.docs[domain.CollectionFeatures] {
		var fs domain.FeatureSet
		if err := json.Unmarshal(b, &fs); err != nil {
			continue
		}
		if latest == nil || fs.ComputedAt.After(latest.ComputedAt) {
			latest = &fs
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("features: %w", domain.ErrNotFound)
	}
	return latest, nil
}

func (m *Memory) SaveRuleEvaluation(_ context.Context, re *domain.RuleEvaluation) error {
	return m.put(domain.CollectionRulesEval, re.GrantID, re)
}

func (m *Memory) GetRuleEvaluation(_ context.Context, grantID string) (*domain.RuleEvaluation, error) {
	var re domain.RuleEvaluation
	if err := m.get(domain.CollectionRulesEval, grantID, &re); err != nil {
		return nil, err
	}
	return &re, nil
}

func (m *Memory) SaveScore(_ context.Context, s *domain.Score) error {
	return m.put(domain.CollectionScores, s.GrantID, s)
}

func (m *Memory) GetScore(_ context.Context, grantID string) (*domain.Score, error) {
	var s domain.Score
	if err := m.get(domain.CollectionScores, grantID, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *Memory) SaveAlert(_ context.Context, a *domain.Alert) error {
	return m.put(domain.CollectionAlerts, a.GrantID, a)
}

func (m *Memory) GetAlert(_ context.Context, grantID string) (*domain.Alert, error) {
	var a domain.Alert
	if err := m.get(domain.CollectionAlerts, grantID, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (m *Memory) allAlerts() []*domain.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Alert, 0, len(m.docs[domain.CollectionAlerts]))
	for _, b := range m.docs[domain.CollectionAlerts] {
		var a domain.Alert
		if err := json.Unmarshal(b, &a); err == nil {
			out = append(out, &a)
		}
	}
	return out
}

func (m *Memory) ListAlerts(_ context.Context, limit int) ([]*domain.Alert, error) {
	alerts := m.allAlerts()
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].Timestamp.Equal(alerts[j].Timestamp) {
			return alerts[i].Timestamp.After(alerts[j].Timestamp)
		}
		return alerts[i].GrantID < alerts[j].GrantID
	})
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func (m *Memory) CountAlertsSince(_ context.Context, since time.Time) (int64, error) {
	var n int64
	for _, a := range m.allAlerts() {
		if !a.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) SaveTriage(_ context.Context, t *domain.TriageDecision) error {
	return m.put(domain.CollectionTriage, t.GrantID, t)
}

func (m *Memory) GetTriage(_ context.Context, grantID string) (*domain.TriageDecision, error) {
	var t domain.TriageDecision
	if err := m.get(domain.CollectionTriage, grantID, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (m *Memory) SaveEntityMapping(_ context.Context, em *domain.EntityMapping) error {
	return m.put(domain.CollectionEntities, em.PartyID, em)
}

func (m *Memory) GetEntityMapping(_ context.Context, partyID string) (*domain.EntityMapping, error) {
	var em domain.EntityMapping
	if err := m.get(domain.CollectionEntities, partyID, &em); err != nil {
		return nil, err
	}
	return &em, nil
}

func (m *Memory) RecordIngestion(_ context.Context, rec domain.IngestionRecord) error {
	m.mu.Lock()
	m.ingestLog = append(m.ingestLog, rec)
	m.mu.Unlock()
	return nil
}

func (m *Memory) LastIngestion(_ context.Context) (*domain.IngestionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last *domain.IngestionRecord
	for i := range m.ingestLog {
		if last == nil || !m.ingestLog[i].Timestamp.Before(last.Timestamp) {
			rec := m.ingestLog[i]
			last = &rec
		}
	}
	if last == nil {
		return nil, fmt.Errorf("ingest log: %w", domain.ErrNotFound)
	}
	return last, nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

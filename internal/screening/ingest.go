package screening

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/banking/grant-risk-service/internal/domain"
	"github.com/banking/grant-risk-service/internal/pkg/logger"
	"github.com/banking/grant-risk-service/internal/pkg/telemetry"
)

// Ingest stores a batch of records into one known collection and returns the
// number stored. Transactions are appended; every other kind is upserted by
// its key. The whole batch is validated before anything is written.
func (e *Engine) Ingest(ctx context.Context, collection string, records json.RawMessage) (int, error) {
	name := strings.TrimSpace(collection)
	if name == "" {
		return 0, fmt.Errorf("%w: data_type is required", domain.ErrInvalidInput)
	}
	c, ok := domain.ParseCollection(name)
	if !ok {
		return 0, fmt.Errorf("%w: unknown data_type %q", domain.ErrInvalidInput, name)
	}

	raw, err := splitRecords(records)
	if err != nil {
		return 0, err
	}

	ctx, span := telemetry.StartSpan(ctx, "risk.ingest", telemetry.Collection(string(c)))
	defer span.End()

	n, err := e.storeRecords(ctx, c, raw)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}

	e.recordIngestion(ctx, c, n)
	return n, nil
}

// IngestTransactions appends already decoded transactions. Used by the
// stream consumer.
func (e *Engine) IngestTransactions(ctx context.Context, txs []domain.Transaction) (int, error) {
	for i := range txs {
		if strings.TrimSpace(txs[i].GrantID) == "" {
			return 0, fmt.Errorf("%w: transaction %d has no grant_id", domain.ErrInvalidInput, i)
		}
	}

	n, err := e.store.InsertTransactions(ctx, txs)
	if err != nil {
		return 0, fmt.Errorf("insert transactions: %w", err)
	}
	e.recordIngestion(ctx, domain.CollectionTransactions, n)
	return n, nil
}

// recordIngestion appends to the ingestion log. A failed append is logged
// only; the records themselves are already stored.
func (e *Engine) recordIngestion(ctx context.Context, c domain.Collection, n int) {
	rec := domain.IngestionRecord{Collection: c, Count: n, Timestamp: e.now()}
	if err := e.store.RecordIngestion(ctx, rec); err != nil {
		e.log.WithContext(ctx).Warn("failed to append ingestion log", logger.ErrorField(err))
	}
	e.metrics.AddRecordsIngested(string(c), n)
	e.log.WithContext(ctx).RecordsIngested(string(c), n)
}

// splitRecords checks the payload is a JSON array of objects
func splitRecords(records json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(records)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: records must be a list", domain.ErrInvalidInput)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: records must be a list: %v", domain.ErrInvalidInput, err)
	}
	for i, r := range raw {
		r = bytes.TrimSpace(r)
		if len(r) == 0 || r[0] != '{' {
			return nil, fmt.Errorf("%w: record %d is not an object", domain.ErrInvalidInput, i)
		}
	}
	return raw, nil
}

// decodeRecords decodes every record into T and requires its key
func decodeRecords[T any](c domain.Collection, raw []json.RawMessage, key func(*T) string) ([]*T, error) {
	out := make([]*T, 0, len(raw))
	for i, r := range raw {
		v := new(T)
		if err := json.Unmarshal(r, v); err != nil {
			return nil, fmt.Errorf("%w: %s record %d: %v", domain.ErrInvalidInput, c, i, err)
		}
		if strings.TrimSpace(key(v)) == "" {
			return nil, fmt.Errorf("%w: %s record %d has no %s", domain.ErrInvalidInput, c, i, c.KeyField())
		}
		out = append(out, v)
	}
	return out, nil
}

// saveAll upserts decoded records one by one. Upserts are idempotent so a
// partially failed batch can be retried as a whole.
func saveAll[T any](ctx context.Context, records []*T, save func(context.Context, *T) error) (int, error) {
	for i, r := range records {
		if err := save(ctx, r); err != nil {
			return i, err
		}
	}
	return len(records), nil
}

func (e *Engine) storeRecords(ctx context.Context, c domain.Collection, raw []json.RawMessage) (int, error) {
	now := e.now()

	switch c {
	case domain.CollectionTransactions:
		txs, err := decodeRecords(c, raw, func(t *domain.Transaction) string { return t.GrantID })
		if err != nil {
			return 0, err
		}
		batch := make([]domain.Transaction, len(txs))
		for i, tx := range txs {
			batch[i] = *tx
		}
		n, err := e.store.InsertTransactions(ctx, batch)
		if err != nil {
			return 0, fmt.Errorf("insert transactions: %w", err)
		}
		return n, nil

	case domain.CollectionFeatures:
		docs, err := decodeRecords(c, raw, func(f *domain.FeatureSet) string { return f.GrantID })
		if err != nil {
			return 0, err
		}
		for _, d := range docs {
			stampIfZero(&d.ComputedAt, now)
		}
		return saveAll(ctx, docs, e.store.SaveFeatures)

	case domain.CollectionRulesEval:
		docs, err := decodeRecords(c, raw, func(r *domain.RuleEvaluation) string { return r.GrantID })
		if err != nil {
			return 0, err
		}
		return saveAll(ctx, docs, e.store.SaveRuleEvaluation)

	case domain.CollectionScores:
		docs, err := decodeRecords(c, raw, func(s *domain.Score) string { return s.GrantID })
		if err != nil {
			return 0, err
		}
		for _, d := range docs {
			stampIfZero(&d.ScoredAt, now)
		}
		return saveAll(ctx, docs, e.store.SaveScore)

	case domain.CollectionAlerts:
		docs, err := decodeRecords(c, raw, func(a *domain.Alert) string { return a.GrantID })
		if err != nil {
			return 0, err
		}
		for _, d := range docs {
			stampIfZero(&d.Timestamp, now)
		}
		return saveAll(ctx, docs, e.store.SaveAlert)

	case domain.CollectionTriage:
		docs, err := decodeRecords(c, raw, func(t *domain.TriageDecision) string { return t.GrantID })
		if err != nil {
			return 0, err
		}
		for _, d := range docs {
			stampIfZero(&d.Timestamp, now)
		}
		return saveAll(ctx, docs, e.store.SaveTriage)

	case domain.CollectionEntities:
		docs, err := decodeRecords(c, raw, func(m *domain.EntityMapping) string { return m.PartyID })
		if err != nil {
			return 0, err
		}
		return saveAll(ctx, docs, e.store.SaveEntityMapping)
	}

	return 0, fmt.Errorf("%w: unknown data_type %q", domain.ErrInvalidInput, c)
}

func stampIfZero(t *time.Time, now time.Time) {
	if t.IsZero() {
		*t = now
	}
}

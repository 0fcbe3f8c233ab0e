package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banking/grant-risk-service/internal/config"
	"github.com/banking/grant-risk-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	doc_key    TEXT        NOT NULL,
	body       JSONB       NOT NULL,
	sort_ts    TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, doc_key)
);
CREATE INDEX IF NOT EXISTS idx_documents_sort_ts ON documents (collection, sort_ts DESC);

CREATE TABLE IF NOT EXISTS transactions (
	id          BIGSERIAL PRIMARY KEY,
	grant_id    TEXT  NOT NULL,
	occurred_at TEXT  NOT NULL DEFAULT '',
	body        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_grant ON transactions (grant_id, occurred_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS ingest_log (
	id           BIGSERIAL PRIMARY KEY,
	collection   TEXT        NOT NULL,
	record_count INTEGER     NOT NULL,
	ts           TIMESTAMPTZ NOT NULL
);
`

// Postgres stores every record as a JSONB document keyed by (collection, key).
// Transactions live in their own append-only table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Connect opens a pool and verifies connectivity
func Connect(ctx context.Context, dbCfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbCfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if dbCfg.MaxOpenConns > 0 {
		cfg.MaxConns = int32(dbCfg.MaxOpenConns)
	}
	if dbCfg.MinIdleConns > 0 {
		cfg.MinConns = int32(dbCfg.MinIdleConns)
	}
	if dbCfg.ConnMaxLifetime > 0 {
		cfg.MaxConnLifetime = dbCfg.ConnMaxLifetime
	}
	if dbCfg.ConnMaxIdleTime > 0 {
		cfg.MaxConnIdleTime = dbCfg.ConnMaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables if they do not exist
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%w: migrate: %v", domain.ErrStorage, err)
	}
	return nil
}

func (p *Postgres) put(ctx context.Context, c domain.Collection, key string, sortTS *time.Time, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s/%s: %v", domain.ErrStorage, c, key, err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO documents (collection, doc_key, body, sort_ts, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, NOW())
		ON CONFLICT (collection, doc_key) DO UPDATE SET
			body = EXCLUDED.body,
			sort_ts = EXCLUDED.sort_ts,
			updated_at = NOW()`,
		string(c), key, string(body), sortTS)
	if err != nil {
		return fmt.Errorf("%w: upsert %s/%s: %v", domain.ErrStorage, c, key, err)
	}
	return nil
}

func (p *Postgres) get(ctx context.Context, c domain.Collection, key string, out any) error {
	var body []byte
	err := p.pool.QueryRow(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND doc_key = $2`,
		string(c), key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %q: %w", c, key, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: read %s/%s: %v", domain.ErrStorage, c, key, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s/%s: %v", domain.ErrStorage, c, key, err)
	}
	return nil
}

func (p *Postgres) InsertTransactions(ctx context.Context, txs []domain.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(txs))
	for i := range txs {
		body, err := json.Marshal(txs[i])
		if err != nil {
			return 0, fmt.Errorf("%w: encode transaction: %v", domain.ErrStorage, err)
		}
		rows = append(rows, []any{txs[i].GrantID, txs[i].Timestamp, string(body)})
	}

	n, err := p.pool.CopyFrom(ctx,
		pgx.Identifier{"transactions"},
		[]string{"grant_id", "occurred_at", "body"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert transactions: %v", domain.ErrStorage, err)
	}
	return int(n), nil
}

func (p *Postgres) queryTransactions(ctx context.Context, sql string, args ...any) ([]domain.Transaction, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query transactions: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("%w: scan transaction: %v", domain.ErrStorage, err)
		}
		var tx domain.Transaction
		if err := json.Unmarshal(body, &tx); err != nil {
			return nil, fmt.Errorf("%w: decode transaction: %v", domain.ErrStorage, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate transactions: %v", domain.ErrStorage, err)
	}
	return out, nil
}

func (p *Postgres) ListTransactions(ctx context.Context, grantID string) ([]domain.Transaction, error) {
	return p.queryTransactions(ctx,
		`SELECT body FROM transactions WHERE grant_id = $1 ORDER BY id`, grantID)
}

func (p *Postgres) RecentTransactions(ctx context.Context, grantID string, limit int) ([]domain.Transaction, error) {
	return p.queryTransactions(ctx, `
		SELECT body FROM transactions
		WHERE grant_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2`, grantID, limit)
}

func (p *Postgres) SaveFeatures(ctx context.Context, fs *domain.FeatureSet) error {
	return p.put(ctx, domain.CollectionFeatures, fs.GrantID, &fs.ComputedAt, fs)
}

func (p *Postgres) GetFeatures(ctx context.Context, grantID string) (*domain.FeatureSet, error) {
	var fs domain.FeatureSet
	if err := p.get(ctx, domain.CollectionFeatures, grantID, &fs); err != nil {
		return nil, err
	}
	return &fs, nil
}

func (p *Postgres) LatestFeatures(ctx context.Context) (*domain.FeatureSet, error) {
	var body []byte
	err := p.pool.QueryRow(ctx, `
		SELECT body FROM documents
		WHERE collection = $1 AND sort_ts IS NOT NULL
		ORDER BY sort_ts DESC
		LIMIT 1`, string(domain.CollectionFeatures)).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("features: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: latest features: %v", domain.ErrStorage, err)
	}

	var fs domain.FeatureSet
	if err := json.Unmarshal(body, &fs); err != nil {
		return nil, fmt.Errorf("%w: decode features: %v", domain.ErrStorage, err)
	}
	return &fs, nil
}

func (p *Postgres) SaveRuleEvaluation(ctx context.Context, re *domain.RuleEvaluation) error {
	return p.put(ctx, domain.CollectionRulesEval, re.GrantID, nil, re)
}

func (p *Postgres) GetRuleEvaluation(ctx context.Context, grantID string) (*domain.RuleEvaluation, error) {
	var re domain.RuleEvaluation
	if err := p.get(ctx, domain.CollectionRulesEval, grantID, &re); err != nil {
		return nil, err
	}
	return &re, nil
}

func (p *Postgres) SaveScore(ctx context.Context, s *domain.Score) error {
	return p.put(ctx, domain.CollectionScores, s.GrantID, &s.ScoredAt, s)
}

func (p *Postgres) GetScore(ctx context.Context, grantID string) (*domain.Score, error) {
	var s domain.Score
	if err := p.get(ctx, domain.CollectionScores, grantID, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *Postgres) SaveAlert(ctx context.Context, a *domain.Alert) error {
	return p.put(ctx, domain.CollectionAlerts, a.GrantID, &a.Timestamp, a)
}

func (p *Postgres) GetAlert(ctx context.Context, grantID string) (*domain.Alert, error) {
	var a domain.Alert
	if err := p.get(ctx, domain.CollectionAlerts, grantID, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *Postgres) ListAlerts(ctx context.Context, limit int) ([]*domain.Alert, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT body FROM documents
		WHERE collection = $1
		ORDER BY sort_ts DESC NULLS LAST, doc_key
		LIMIT $2`, string(domain.CollectionAlerts), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list alerts: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	alerts := make([]*domain.Alert, 0, limit)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("%w: scan alert: %v", domain.ErrStorage, err)
		}
		var a domain.Alert
		if err := json.Unmarshal(body, &a); err != nil {
			return nil, fmt.Errorf("%w: decode alert: %v", domain.ErrStorage, err)
		}
		alerts = append(alerts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate alerts: %v", domain.ErrStorage, err)
	}
	return alerts, nil
}

func (p *Postgres) CountAlertsSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = $1 AND sort_ts >= $2`,
		string(domain.CollectionAlerts), since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count alerts: %v", domain.ErrStorage, err)
	}
	return n, nil
}

func (p *Postgres) SaveTriage(ctx context.Context, t *domain.TriageDecision) error {
	return p.put(ctx, domain.CollectionTriage, t.GrantID, &t.Timestamp, t)
}

func (p *Postgres) GetTriage(ctx context.Context, grantID string) (*domain.TriageDecision, error) {
	var t domain.TriageDecision
	if err := p.get(ctx, domain.CollectionTriage, grantID, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *Postgres) SaveEntityMapping(ctx context.Context, m *domain.EntityMapping) error {
	return p.put(ctx, domain.CollectionEntities, m.PartyID, nil, m)
}

func (p *Postgres) GetEntityMapping(ctx context.Context, partyID string) (*domain.EntityMapping, error) {
	var m domain.EntityMapping
	if err := p.get(ctx, domain.CollectionEntities, partyID, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (p *Postgres) RecordIngestion(ctx context.Context, rec domain.IngestionRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO ingest_log (collection, record_count, ts) VALUES ($1, $2, $3)`,
		string(rec.Collection), rec.Count, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: record ingestion: %v", domain.ErrStorage, err)
	}
	return nil
}

func (p *Postgres) LastIngestion(ctx context.Context) (*domain.IngestionRecord, error) {
	var (
		rec        domain.IngestionRecord
		collection string
	)
	err := p.pool.QueryRow(ctx,
		`SELECT collection, record_count, ts FROM ingest_log ORDER BY ts DESC, id DESC LIMIT 1`,
	).Scan(&collection, &rec.Count, &rec.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ingest log: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: last ingestion: %v", domain.ErrStorage, err)
	}
	rec.Collection = domain.Collection(collection)
	return &rec, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool
func (p *Postgres) Close() {
	p.pool.Close()
}

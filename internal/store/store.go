// Package store persists the pipeline's records. Every record is addressed by
// its subject (grant id) or, for entity mappings, by party id; there is no
// history beyond the latest write except for transactions, which are
// append-only.
package store

import (
	"context"
	"time"

	"github.com/banking/grant-risk-service/internal/domain"
)

// Store is the document store contract. Get methods return an error wrapping
// domain.ErrNotFound when the record is absent; other failures wrap
// domain.ErrStorage. Saves are idempotent upserts, last write wins.
type Store interface {
	InsertTransactions(ctx context.Context, txs []domain.Transaction) (int, error)
	ListTransactions(ctx context.Context, grantID string) ([]domain.Transaction, error)
	// RecentTransactions returns up to limit transactions, newest first
	RecentTransactions(ctx context.Context, grantID string, limit int) ([]domain.Transaction, error)

	SaveFeatures(ctx context.Context, fs *domain.FeatureSet) error
	GetFeatures(ctx context.Context, grantID string) (*domain.FeatureSet, error)
	// LatestFeatures returns the most recently computed feature set of any subject
	LatestFeatures(ctx context.Context) (*domain.FeatureSet, error)

	SaveRuleEvaluation(ctx context.Context, re *domain.RuleEvaluation) error
	GetRuleEvaluation(ctx context.Context, grantID string) (*domain.RuleEvaluation, error)

	SaveScore(ctx context.Context, s *domain.Score) error
	GetScore(ctx context.Context, grantID string) (*domain.Score, error)

	SaveAlert(ctx context.Context, a *domain.Alert) error
	GetAlert(ctx context.Context, grantID string) (*domain.Alert, error)
	// ListAlerts returns up to limit alerts, newest first
	ListAlerts(ctx context.Context, limit int) ([]*domain.Alert, error)
	CountAlertsSince(ctx context.Context, since time.Time) (int64, error)

	SaveTriage(ctx context.Context, t *domain.TriageDecision) error
	GetTriage(ctx context.Context, grantID string) (*domain.TriageDecision, error)

	SaveEntityMapping(ctx context.Context, m *domain.EntityMapping) error
	GetEntityMapping(ctx context.Context, partyID string) (*domain.EntityMapping, error)

	RecordIngestion(ctx context.Context, rec domain.IngestionRecord) error
	LastIngestion(ctx context.Context) (*domain.IngestionRecord, error)

	Ping(ctx context.Context) error
}

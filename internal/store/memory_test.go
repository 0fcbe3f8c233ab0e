package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/banking/grant-risk-service/internal/domain"
)

// MemorySuite exercises the Store contract against the in-memory store.
type MemorySuite struct {
	suite.Suite
	store *Memory
	ctx   context.Context
}

func TestMemorySuite(t *testing.T) {
	suite.Run(t, new(MemorySuite))
}

func (s *MemorySuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()
}

func (s *MemorySuite) TestTransactions() {
	s.Run("list filters by grant in insertion order", func() {
		n, err := s.store.InsertTransactions(s.ctx, []domain.Transaction{
			{GrantID: "G1", Amount: 100, Direction: domain.DirectionIn},
			{GrantID: "G2", Amount: 5, Direction: domain.DirectionIn},
			{GrantID: "G1", Amount: 50, Direction: domain.DirectionOut},
		})
		s.Require().NoError(err)
		s.Equal(3, n)

		txs, err := s.store.ListTransactions(s.ctx, "G1")
		s.Require().NoError(err)
		s.Require().Len(txs, 2)
		s.Equal(domain.Amount(100), txs[0].Amount)
		s.Equal(domain.Amount(50), txs[1].Amount)
	})

	s.Run("unknown grant has no transactions", func() {
		txs, err := s.store.ListTransactions(s.ctx, "missing")
		s.NoError(err)
		s.Empty(txs)
	})
}

func (s *MemorySuite) TestRecentTransactionsNewestFirst() {
	_, err := s.store.InsertTransactions(s.ctx, []domain.Transaction{
		{GrantID: "G1", Amount: 1, Timestamp: "2024-01-01T00:00:00Z"},
		{GrantID: "G1", Amount: 3, Timestamp: "2024-03-01T00:00:00Z"},
		{GrantID: "G1", Amount: 2, Timestamp: "2024-02-01T00:00:00Z"},
		{GrantID: "G1", Amount: 4},
	})
	s.Require().NoError(err)

	txs, err := s.store.RecentTransactions(s.ctx, "G1", 3)
	s.Require().NoError(err)
	s.Require().Len(txs, 3)
	s.Equal(domain.Amount(3), txs[0].Amount)
	s.Equal(domain.Amount(2), txs[1].Amount)
	s.Equal(domain.Amount(1), txs[2].Amount)
}

func (s *MemorySuite) TestDocumentsUpsertLastWriteWins() {
	s.Require().NoError(s.store.SaveTriage(s.ctx, &domain.TriageDecision{GrantID: "G1", Disposition: domain.DispositionEscalated}))
	s.Require().NoError(s.store.SaveTriage(s.ctx, &domain.TriageDecision{GrantID: "G1", Disposition: domain.DispositionConfirmed}))

	got, err := s.store.GetTriage(s.ctx, "G1")
	s.Require().NoError(err)
	s.Equal(domain.DispositionConfirmed, got.Disposition)
}

func (s *MemorySuite) TestGetMissingIsNotFound() {
	_, err := s.store.GetFeatures(s.ctx, "nope")
	s.True(errors.Is(err, domain.ErrNotFound))

	_, err = s.store.GetScore(s.ctx, "nope")
	s.True(errors.Is(err, domain.ErrNotFound))

	_, err = s.store.GetAlert(s.ctx, "nope")
	s.True(errors.Is(err, domain.ErrNotFound))

	_, err = s.store.GetEntityMapping(s.ctx, "nope")
	s.True(errors.Is(err, domain.ErrNotFound))

	_, err = s.store.LatestFeatures(s.ctx)
	s.True(errors.Is(err, domain.ErrNotFound))

	_, err = s.store.LastIngestion(s.ctx)
	s.True(errors.Is(err, domain.ErrNotFound))
}

func (s *MemorySuite) TestReturnedRecordsAreCopies() {
	s.Require().NoError(s.store.SaveScore(s.ctx, &domain.Score{GrantID: "G1", RiskScore: 0.5, RiskTier: domain.RiskTierMedium}))

	first, err := s.store.GetScore(s.ctx, "G1")
	s.Require().NoError(err)
	first.RiskScore = 0.99

	second, err := s.store.GetScore(s.ctx, "G1")
	s.Require().NoError(err)
	s.Equal(0.5, second.RiskScore)
}

func (s *MemorySuite) TestLatestFeatures() {
	now := time.Now().UTC()
	s.Require().NoError(s.store.SaveFeatures(s.ctx, &domain.FeatureSet{GrantID: "old", ComputedAt: now.Add(-time.Hour)}))
	s.Require().NoError(s.store.SaveFeatures(s.ctx, &domain.FeatureSet{GrantID: "new", ComputedAt: now}))

	latest, err := s.store.LatestFeatures(s.ctx)
	s.Require().NoError(err)
	s.Equal("new", latest.GrantID)
}

func (s *MemorySuite) TestAlertsListAndCount() {
	midnight := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"A", "B", "C"} {
		s.Require().NoError(s.store.SaveAlert(s.ctx, &domain.Alert{
			GrantID:   id,
			Timestamp: midnight.Add(time.Duration(i-1) * time.Hour),
		}))
	}

	alerts, err := s.store.ListAlerts(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(alerts, 2)
	s.Equal("C", alerts[0].GrantID)
	s.Equal("B", alerts[1].GrantID)

	count, err := s.store.CountAlertsSince(s.ctx, midnight)
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}

func (s *MemorySuite) TestLastIngestion() {
	t0 := time.Now().UTC()
	s.Require().NoError(s.store.RecordIngestion(s.ctx, domain.IngestionRecord{Collection: domain.CollectionTransactions, Count: 2, Timestamp: t0}))
	s.Require().NoError(s.store.RecordIngestion(s.ctx, domain.IngestionRecord{Collection: domain.CollectionEntities, Count: 1, Timestamp: t0.Add(time.Second)}))

	last, err := s.store.LastIngestion(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.CollectionEntities, last.Collection)
	s.Equal(1, last.Count)
}

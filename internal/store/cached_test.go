package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/grant-risk-service/internal/domain"
	"github.com/banking/grant-risk-service/internal/pkg/logger"
)

// countingStore records how often lookups reach the backing store
type countingStore struct {
	*Memory
	alertReads  int
	entityReads int
}

func (c *countingStore) GetAlert(ctx context.Context, grantID string) (*domain.Alert, error) {
	c.alertReads++
	return c.Memory.GetAlert(ctx, grantID)
}

func (c *countingStore) GetEntityMapping(ctx context.Context, partyID string) (*domain.EntityMapping, error) {
	c.entityReads++
	return c.Memory.GetEntityMapping(ctx, partyID)
}

func newCached(t *testing.T) (*Cached, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	backing := &countingStore{Memory: NewMemory()}
	return NewCached(backing, client, time.Minute, time.Hour, logger.NewNop()), backing, mr
}

func TestCachedAlertReadThrough(t *testing.T) {
	ctx := context.Background()
	cached, backing, mr := newCached(t)

	require.NoError(t, backing.Memory.SaveAlert(ctx, &domain.Alert{GrantID: "G1", RiskScore: 0.8, RiskTier: domain.RiskTierHigh}))

	first, err := cached.GetAlert(ctx, "G1")
	require.NoError(t, err)
	second, err := cached.GetAlert(ctx, "G1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backing.alertReads)
	assert.True(t, mr.Exists(alertKeyPrefix+"G1"))
	assert.Equal(t, time.Minute, mr.TTL(alertKeyPrefix+"G1"))
}

func TestCachedMissIsNotCached(t *testing.T) {
	ctx := context.Background()
	cached, _, mr := newCached(t)

	_, err := cached.GetAlert(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, mr.Exists(alertKeyPrefix+"missing"))
}

func TestCachedEntityWriteThrough(t *testing.T) {
	ctx := context.Background()
	cached, backing, mr := newCached(t)

	require.NoError(t, cached.SaveEntityMapping(ctx, &domain.EntityMapping{PartyID: "P1", CanonicalID: "C1", Confidence: 0.9}))
	assert.Equal(t, time.Hour, mr.TTL(entityKeyPrefix+"P1"))

	got, err := cached.GetEntityMapping(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "C1", got.CanonicalID)
	assert.Equal(t, 0, backing.entityReads)

	stored, err := backing.Memory.GetEntityMapping(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 0.9, stored.Confidence)
}

func TestCachedFallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	cached, backing, mr := newCached(t)

	require.NoError(t, backing.Memory.SaveEntityMapping(ctx, &domain.EntityMapping{PartyID: "P2", CanonicalID: "C2", Confidence: 1}))
	mr.Close()

	got, err := cached.GetEntityMapping(ctx, "P2")
	require.NoError(t, err)
	assert.Equal(t, "C2", got.CanonicalID)
	assert.Error(t, cached.Ping(ctx))
}

func TestCachedIgnoresCorruptEntries(t *testing.T) {
	ctx := context.Background()
	cached, backing, mr := newCached(t)

	require.NoError(t, backing.Memory.SaveAlert(ctx, &domain.Alert{GrantID: "G9"}))
	require.NoError(t, mr.Set(alertKeyPrefix+"G9", "{not json"))

	got, err := cached.GetAlert(ctx, "G9")
	require.NoError(t, err)
	assert.Equal(t, "G9", got.GrantID)
	assert.Equal(t, 1, backing.alertReads)
}

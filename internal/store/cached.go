package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/banking/grant-risk-service/internal/config"
	"github.com/banking/grant-risk-service/internal/domain"
	"github.com/banking/grant-risk-service/internal/pkg/logger"
)

const (
	alertKeyPrefix  = "grant-risk:alert:"
	entityKeyPrefix = "grant-risk:entity:"
)

// NewRedisClient builds a go-redis client from config and verifies it answers
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Cached puts a Redis read-through cache in front of the alert and entity
// mapping lookups of another Store. Writes go to the backing store first and
// then to Redis. Redis failures are logged and never fail a call.
type Cached struct {
	Store
	client    *redis.Client
	alertTTL  time.Duration
	entityTTL time.Duration
	log       *logger.Logger
}

// NewCached wraps next with a Redis cache
func NewCached(next Store, client *redis.Client, alertTTL, entityTTL time.Duration, log *logger.Logger) *Cached {
	return &Cached{
		Store:     next,
		client:    client,
		alertTTL:  alertTTL,
		entityTTL: entityTTL,
		log:       log.Named("cache"),
	}
}

func (c *Cached) lookup(ctx context.Context, key string, out any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.log.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Cached) remember(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cached) GetAlert(ctx context.Context, grantID string) (*domain.Alert, error) {
	var a domain.Alert
	if c.lookup(ctx, alertKeyPrefix+grantID, &a) {
		return &a, nil
	}

	alert, err := c.Store.GetAlert(ctx, grantID)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, alertKeyPrefix+grantID, alert, c.alertTTL)
	return alert, nil
}

func (c *Cached) SaveAlert(ctx context.Context, a *domain.Alert) error {
	if err := c.Store.SaveAlert(ctx, a); err != nil {
		return err
	}
	c.remember(ctx, alertKeyPrefix+a.GrantID, a, c.alertTTL)
	return nil
}

func (c *Cached) GetEntityMapping(ctx context.Context, partyID string) (*domain.EntityMapping, error) {
	var m domain.EntityMapping
	if c.lookup(ctx, entityKeyPrefix+partyID, &m) {
		return &m, nil
	}

	mapping, err := c.Store.GetEntityMapping(ctx, partyID)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, entityKeyPrefix+partyID, mapping, c.entityTTL)
	return mapping, nil
}

func (c *Cached) SaveEntityMapping(ctx context.Context, m *domain.EntityMapping) error {
	if err := c.Store.SaveEntityMapping(ctx, m); err != nil {
		return err
	}
	c.remember(ctx, entityKeyPrefix+m.PartyID, m, c.entityTTL)
	return nil
}

// Ping checks both the backing store and Redis
func (c *Cached) Ping(ctx context.Context) error {
	if err := c.Store.Ping(ctx); err != nil {
		return err
	}
	return c.client.Ping(ctx).Err()
}

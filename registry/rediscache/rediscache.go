// Package rediscache layers a short-TTL Redis cache over a durable
// registry. Only the access-token revocation read path is cached - it is
// hit on every verification - and a revoke invalidates the key immediately,
// so a revocation is visible to other replicas within the cache TTL at
// worst and usually at once. Refresh-token operations pass straight
// through: their conditional writes are the rotation engine's mutual
// exclusion and must see the durable store.
package rediscache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-token-authority/registry"
)

const keyPrefix = "revoked_jti:"

// DefaultTTL bounds how long a positive verification can outlive a
// revocation made by another replica.
const DefaultTTL = 5 * time.Second

type Registry struct {
	inner  registry.Registry
	client *redis.Client
	ttl    time.Duration
}

var _ registry.Registry = (*Registry)(nil)

// New connects to Redis and wraps the inner registry. The URL is parsed
// with redis.ParseURL (e.g. "redis://localhost:6379/0").
func New(inner registry.Registry, redisURL string, ttl time.Duration) (*Registry, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{inner: inner, client: client, ttl: ttl}, nil
}

func (r *Registry) RecordRevokedAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if err := r.inner.RecordRevokedAccessToken(ctx, jti, expiresAt); err != nil {
		return err
	}
	// Overwrite any cached "not revoked" answer. A cache failure is not an
	// error: the durable store already has the tombstone and the stale key
	// expires within the TTL.
	r.client.Set(ctx, keyPrefix+jti, "1", r.ttl)
	return nil
}

func (r *Registry) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	cached, err := r.client.Get(ctx, keyPrefix+jti).Result()
	if err == nil {
		return cached == "1", nil
	}

	revoked, innerErr := r.inner.IsAccessTokenRevoked(ctx, jti)
	if innerErr != nil {
		return false, innerErr
	}
	value := "0"
	if revoked {
		value = "1"
	}
	r.client.Set(ctx, keyPrefix+jti, value, r.ttl)
	return revoked, nil
}

func (r *Registry) CreateRefreshToken(ctx context.Context, rec *registry.RefreshTokenRecord) error {
	return r.inner.CreateRefreshToken(ctx, rec)
}

func (r *Registry) GetRefreshToken(ctx context.Context, token string) (*registry.RefreshTokenRecord, error) {
	return r.inner.GetRefreshToken(ctx, token)
}

func (r *Registry) MarkRefreshTokenRevoked(ctx context.Context, token string) error {
	return r.inner.MarkRefreshTokenRevoked(ctx, token)
}

func (r *Registry) ConsumeRefreshToken(ctx context.Context, token string) (bool, error) {
	return r.inner.ConsumeRefreshToken(ctx, token)
}

func (r *Registry) RevokeChain(ctx context.Context, chainID string) error {
	return r.inner.RevokeChain(ctx, chainID)
}

func (r *Registry) RevokeAllForSubject(ctx context.Context, subjectID string) error {
	return r.inner.RevokeAllForSubject(ctx, subjectID)
}

func (r *Registry) DeleteExpired(ctx context.Context, now time.Time) error {
	// Cached keys expire on their own TTL.
	return r.inner.DeleteExpired(ctx, now)
}

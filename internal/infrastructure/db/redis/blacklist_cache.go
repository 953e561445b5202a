package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/matt-iam/iam-api/internal/core/domain"
	"github.com/matt-iam/iam-api/internal/core/ports"
)

// CachedBlacklist decorates a durable blacklist with a Redis existence cache
// for the per-request authorization path. The cache is advisory: a miss falls
// through to the store, and cache errors never fail the operation. Keys carry
// a TTL matching the token's own expiry so stale entries vanish on their own.
type CachedBlacklist struct {
	client *redis.Client
	store  ports.BlacklistRepository
	log    zerolog.Logger
}

func NewCachedBlacklist(client *redis.Client, store ports.BlacklistRepository, log zerolog.Logger) *CachedBlacklist {
	return &CachedBlacklist{client: client, store: store, log: log}
}

func (b *CachedBlacklist) Exists(ctx context.Context, token string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(token)).Result()
	if err != nil {
		b.log.Warn().Err(err).Msg("blacklist cache check failed, falling back to store")
	} else if n > 0 {
		return true, nil
	}

	hit, err := b.store.Exists(ctx, token)
	if err != nil {
		return false, err
	}
	if hit {
		b.cache(ctx, token, time.Hour)
	}
	return hit, nil
}

func (b *CachedBlacklist) Save(ctx context.Context, t *domain.BlacklistedToken) error {
	if err := b.store.Save(ctx, t); err != nil {
		return err
	}
	if ttl := time.Until(t.ExpiresAt); ttl > 0 {
		b.cache(ctx, t.Token, ttl)
	}
	return nil
}

func (b *CachedBlacklist) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	// Cache entries expire via their own TTL; only the store needs sweeping.
	return b.store.DeleteExpired(ctx, now)
}

func (b *CachedBlacklist) cache(ctx context.Context, token string, ttl time.Duration) {
	if err := b.client.Set(ctx, b.key(token), "1", ttl).Err(); err != nil {
		b.log.Warn().Err(err).Msg("failed to cache blacklisted token")
	}
}

// key hashes the token so raw bearer credentials never land in Redis.
func (b *CachedBlacklist) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "blacklist:" + hex.EncodeToString(sum[:])
}

package ports

import (
	"context"
	"time"

	"github.com/matt-iam/iam-api/internal/core/domain"
)

// RefreshTokenRepository is the per-user session ledger.
//
// Consume is the reuse-detection boundary: it must atomically flip the revoked
// flag of the single active row matching the token string (conditional update,
// never read-then-write), so that of two concurrent consumers exactly one
// succeeds. The loser receives domain.ErrTokenRevoked, the same answer a
// never-issued token gets.
type RefreshTokenRepository interface {
	Save(ctx context.Context, t *domain.RefreshToken) error
	FindActiveByToken(ctx context.Context, token string) (*domain.RefreshToken, error)
	FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error)
	Consume(ctx context.Context, token string, now time.Time) (*domain.RefreshToken, error)
	Revoke(ctx context.Context, token string, now time.Time) error
	CountActive(ctx context.Context, userID string) (int64, error)
	OldestActive(ctx context.Context, userID string) (*domain.RefreshToken, error)
	AllActiveByCreatedDesc(ctx context.Context, userID string) ([]domain.RefreshToken, error)
	AllExpiredActive(ctx context.Context, userID string, now time.Time) ([]domain.RefreshToken, error)
}

// BlacklistRepository records revoked access tokens. Save must be idempotent
// per token string: a concurrent duplicate insert is a no-op, not an error.
type BlacklistRepository interface {
	Exists(ctx context.Context, token string) (bool, error)
	Save(ctx context.Context, t *domain.BlacklistedToken) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

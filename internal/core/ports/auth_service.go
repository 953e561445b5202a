package ports

import (
	"context"

	"github.com/matt-iam/iam-api/internal/core/domain"
)

// TokenPair is the result of login and rotation: a fresh access/refresh pair
// for the user it was issued to.
type TokenPair struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

// AuthService covers registration, credential authentication, and logout.
type AuthService interface {
	Register(ctx context.Context, nickname, email, password string) error
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	// Logout blacklists the access token. The optional refresh token is
	// revoked when it validates for the same subject; otherwise it is
	// silently ignored.
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

// TokenService issues token pairs and rotates refresh tokens.
type TokenService interface {
	IssuePair(ctx context.Context, user *domain.User) (*TokenPair, error)
	Rotate(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error)
}

// CleanupService sweeps stale ledger entries and expired blacklist rows. Both
// operations are idempotent and safe to run concurrently with rotation.
type CleanupService interface {
	SweepUser(ctx context.Context, user *domain.User) error
	SweepBlacklist(ctx context.Context) error
}

// SweepScheduler accepts fire-and-forget cleanup requests. Enqueueing must
// never block the caller and sweep failures never surface to it.
type SweepScheduler interface {
	EnqueueUserSweep(user *domain.User)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/matt-iam/iam-api/internal/core/domain"
	"github.com/matt-iam/iam-api/internal/core/ports"
	"github.com/matt-iam/iam-api/internal/token"
)

// TokenService issues access/refresh pairs and rotates refresh tokens.
type TokenService struct {
	users     ports.UserRepository
	ledger    ports.RefreshTokenRepository
	blacklist ports.BlacklistRepository
	codec     *token.Codec
	audit     ports.AuditPublisher
	log       zerolog.Logger
}

func NewTokenService(
	users ports.UserRepository,
	ledger ports.RefreshTokenRepository,
	blacklist ports.BlacklistRepository,
	codec *token.Codec,
	audit ports.AuditPublisher,
	log zerolog.Logger,
) *TokenService {
	return &TokenService{
		users:     users,
		ledger:    ledger,
		blacklist: blacklist,
		codec:     codec,
		audit:     audit,
		log:       log,
	}
}

// IssuePair mints a fresh access/refresh pair for the user and persists the
// refresh record. The ledger row's expiry is the token's own exp claim. The
// session ceiling is not enforced here: login may exceed it transiently and
// the next rotation trims it.
func (s *TokenService) IssuePair(ctx context.Context, user *domain.User) (*ports.TokenPair, error) {
	roles := user.RoleNames()
	perms := domain.DerivePermissions(user.Roles)

	access, _, err := s.codec.Issue(user.Email, token.TypeAccess, roles, perms)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := s.codec.Issue(user.Email, token.TypeRefresh, roles, perms)
	if err != nil {
		return nil, err
	}

	record := &domain.RefreshToken{
		Token:     refresh,
		UserID:    user.ID,
		Subject:   user.Email,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: refreshExp,
	}
	if err := s.ledger.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}

	return &ports.TokenPair{
		UserID:       user.ID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// Rotate exchanges a refresh token for a new pair. The supplied access token
// is the one the client still holds; it is blacklisted so it dies immediately
// instead of waiting out its window.
//
// Nothing is mutated until the refresh token has fully validated (signature,
// ledger presence, expiry, account state). Past the consumption point the old
// token is gone for good: an error after that still requires the caller to
// re-authenticate.
func (s *TokenService) Rotate(ctx context.Context, accessToken, refreshToken string) (*ports.TokenPair, error) {
	now := time.Now().UTC()

	claims, err := s.codec.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	if accessToken == "" {
		return nil, domain.ErrInvalidToken
	}
	// The paired access token may already be past its own expiry; only its
	// signature and exp claim matter here.
	accessExp, err := s.codec.ExpiryOf(accessToken)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	record, err := s.ledger.FindActiveByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrTokenRevoked) {
			s.publish(ctx, ports.AuditEvent{
				Kind:      ports.AuditReuseDetected,
				Subject:   claims.Subject,
				Timestamp: now,
			})
			s.log.Warn().Str("subject", claims.Subject).Msg("rotation attempted with revoked or unknown refresh token")
		}
		return nil, err
	}

	if record.Expired(now) {
		// Lazy expiry detection: the row is revoked so a replay of the same
		// token reports revoked, not expired.
		if err := s.ledger.Revoke(ctx, refreshToken, now); err != nil {
			s.log.Error().Err(err).Msg("failed to revoke expired refresh token")
		}
		return nil, domain.ErrTokenExpired
	}

	user, err := s.users.FindByEmail(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if err := user.Accessible(now); err != nil {
		return nil, err
	}

	// Consumption point: atomic conditional update on the revoked flag. Of
	// two concurrent rotations with the same token exactly one passes.
	if _, err := s.ledger.Consume(ctx, refreshToken, now); err != nil {
		if errors.Is(err, domain.ErrTokenRevoked) {
			s.publish(ctx, ports.AuditEvent{
				Kind:      ports.AuditReuseDetected,
				Subject:   claims.Subject,
				Timestamp: now,
			})
		}
		return nil, err
	}

	if err := s.blacklist.Save(ctx, &domain.BlacklistedToken{
		Token:     accessToken,
		UserID:    user.ID,
		ExpiresAt: accessExp,
		RevokedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("blacklist access token: %w", err)
	}

	if err := s.trimLedger(ctx, user.ID, now); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("ledger trim failed")
	}

	pair, err := s.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ports.AuditEvent{
		Kind:      ports.AuditRotation,
		Subject:   user.Email,
		Timestamp: now,
	})
	s.log.Info().Str("subject", user.Email).Msg("refresh token rotated")

	return pair, nil
}

// trimLedger revokes the single oldest active token when the user is at or
// above the session ceiling, making room for the replacement pair.
func (s *TokenService) trimLedger(ctx context.Context, userID string, now time.Time) error {
	count, err := s.ledger.CountActive(ctx, userID)
	if err != nil {
		return err
	}
	if count < domain.MaxActiveRefreshTokens {
		return nil
	}

	oldest, err := s.ledger.OldestActive(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrTokenRevoked) {
			return nil
		}
		return err
	}
	return s.ledger.Revoke(ctx, oldest.Token, now)
}

func (s *TokenService) publish(ctx context.Context, event ports.AuditEvent) {
	if s.audit != nil {
		s.audit.Publish(ctx, event)
	}
}

package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/matt-iam/iam-api/internal/core/domain"
	"github.com/matt-iam/iam-api/internal/core/ports"
)

// TokenCleanupService sweeps stale state in the background. Every mutation it
// makes moves a row monotonically toward revoked or deleted, so it is safe to
// run concurrently with login and rotation.
type TokenCleanupService struct {
	ledger    ports.RefreshTokenRepository
	blacklist ports.BlacklistRepository
	log       zerolog.Logger
}

func NewTokenCleanupService(
	ledger ports.RefreshTokenRepository,
	blacklist ports.BlacklistRepository,
	log zerolog.Logger,
) *TokenCleanupService {
	return &TokenCleanupService{ledger: ledger, blacklist: blacklist, log: log}
}

// SweepUser revokes the user's expired-but-active refresh tokens, then
// revokes every active token beyond the most recent ceiling.
func (s *TokenCleanupService) SweepUser(ctx context.Context, user *domain.User) error {
	now := time.Now().UTC()

	expired, err := s.ledger.AllExpiredActive(ctx, user.ID, now)
	if err != nil {
		return err
	}
	for i := range expired {
		if err := s.ledger.Revoke(ctx, expired[i].Token, now); err != nil {
			s.log.Warn().Err(err).Str("user_id", user.ID).Msg("sweep: failed to revoke expired refresh token")
		}
	}

	active, err := s.ledger.AllActiveByCreatedDesc(ctx, user.ID)
	if err != nil {
		return err
	}
	excess := 0
	for i := domain.MaxActiveRefreshTokens; i < len(active); i++ {
		if err := s.ledger.Revoke(ctx, active[i].Token, now); err != nil {
			s.log.Warn().Err(err).Str("user_id", user.ID).Msg("sweep: failed to revoke excess refresh token")
			continue
		}
		excess++
	}

	s.log.Info().
		Str("user_id", user.ID).
		Int("expired", len(expired)).
		Int("excess", excess).
		Msg("user token sweep completed")
	return nil
}

// SweepBlacklist deletes blacklist rows whose expiry has passed. The codec
// already rejects those tokens on its own, so the rows are pure bookkeeping.
func (s *TokenCleanupService) SweepBlacklist(ctx context.Context) error {
	deleted, err := s.blacklist.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	s.log.Info().Int64("deleted", deleted).Msg("blacklist sweep completed")
	return nil
}

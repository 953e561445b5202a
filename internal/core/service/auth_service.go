package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/matt-iam/iam-api/internal/core/domain"
	"github.com/matt-iam/iam-api/internal/core/ports"
	"github.com/matt-iam/iam-api/internal/token"
)

// AuthService implements registration, login with lockout tracking, and logout.
type AuthService struct {
	users     ports.UserRepository
	roles     ports.RoleRepository
	ledger    ports.RefreshTokenRepository
	blacklist ports.BlacklistRepository
	tokens    ports.TokenService
	codec     *token.Codec
	audit     ports.AuditPublisher
	sweeps    ports.SweepScheduler
	log       zerolog.Logger
}

func NewAuthService(
	users ports.UserRepository,
	roles ports.RoleRepository,
	ledger ports.RefreshTokenRepository,
	blacklist ports.BlacklistRepository,
	tokens ports.TokenService,
	codec *token.Codec,
	audit ports.AuditPublisher,
	sweeps ports.SweepScheduler,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		roles:     roles,
		ledger:    ledger,
		blacklist: blacklist,
		tokens:    tokens,
		codec:     codec,
		audit:     audit,
		sweeps:    sweeps,
		log:       log,
	}
}

// Register creates an enabled account with the default role attached.
func (s *AuthService) Register(ctx context.Context, nickname, email, password string) error {
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	role, err := s.roles.FindByName(ctx, domain.DefaultRoleName)
	if err != nil {
		return err
	}

	user := &domain.User{
		Nickname:     nickname,
		Email:        email,
		PasswordHash: string(hash),
		Enabled:      true,
		CreatedAt:    time.Now().UTC(),
		Roles:        []domain.Role{*role},
	}

	if _, err := s.users.Create(ctx, user); err != nil {
		return err
	}

	s.log.Info().Str("email", email).Msg("user registered")
	return nil
}

// Login authenticates the credentials and issues a token pair. A failed
// attempt is persisted before the error surfaces: the counter mutation is
// durable even though the operation reports failure.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.TokenPair, error) {
	now := time.Now().UTC()

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := user.Accessible(now); err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		locked := user.RecordFailure(now)
		if saveErr := s.users.Save(ctx, user); saveErr != nil {
			s.log.Error().Err(saveErr).Str("email", email).Msg("failed to persist login failure")
		}
		if locked {
			s.publish(ctx, ports.AuditEvent{Kind: ports.AuditLockout, Subject: email, Timestamp: now})
			s.log.Warn().Str("email", email).Msg("account locked after repeated failures")
			return nil, domain.ErrTooManyAttempts
		}
		s.publish(ctx, ports.AuditEvent{Kind: ports.AuditLoginFailed, Subject: email, Timestamp: now})
		return nil, domain.ErrInvalidCredentials
	}

	user.RecordSuccess(now)
	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ports.AuditEvent{Kind: ports.AuditLogin, Subject: email, Timestamp: now})
	s.log.Info().Str("email", email).Msg("login succeeded")
	return pair, nil
}

// Logout blacklists the access token and, when the optional refresh token
// validates for the same subject and is still active, revokes it. A stale,
// mismatched, or absent refresh token is silently ignored: the access-token
// revocation is the operation the caller actually needs.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	now := time.Now().UTC()

	claims, err := s.codec.Verify(accessToken, token.TypeAccess)
	if err != nil {
		return domain.ErrInvalidToken
	}

	user, err := s.users.FindByEmail(ctx, claims.Subject)
	if err != nil {
		return err
	}

	if err := s.blacklist.Save(ctx, &domain.BlacklistedToken{
		Token:     accessToken,
		UserID:    user.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		RevokedAt: now,
	}); err != nil {
		return err
	}

	if refreshToken != "" {
		s.revokeRefreshOnLogout(ctx, refreshToken, user, now)
	}

	s.publish(ctx, ports.AuditEvent{Kind: ports.AuditLogout, Subject: user.Email, Timestamp: now})
	s.log.Info().Str("email", user.Email).Msg("logout completed")

	if s.sweeps != nil {
		s.sweeps.EnqueueUserSweep(user)
	}
	return nil
}

// revokeRefreshOnLogout handles the optional half of logout. Every failure
// here is logged and swallowed.
func (s *AuthService) revokeRefreshOnLogout(ctx context.Context, refreshToken string, user *domain.User, now time.Time) {
	claims, err := s.codec.Verify(refreshToken, token.TypeRefresh)
	if err != nil || claims.Subject != user.Email {
		s.log.Debug().Str("email", user.Email).Msg("logout refresh token invalid or mismatched, ignored")
		return
	}

	record, err := s.ledger.FindByToken(ctx, refreshToken)
	if err != nil {
		s.log.Debug().Str("email", user.Email).Msg("logout refresh token unknown, ignored")
		return
	}
	if record.UserID != user.ID || record.Revoked || record.Expired(now) {
		return
	}

	if _, err := s.ledger.Consume(ctx, refreshToken, now); err != nil {
		s.log.Debug().Err(err).Str("email", user.Email).Msg("logout refresh revocation lost race, ignored")
	}
}

func (s *AuthService) publish(ctx context.Context, event ports.AuditEvent) {
	if s.audit != nil {
		s.audit.Publish(ctx, event)
	}
}

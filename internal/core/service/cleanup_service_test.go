package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/matt-iam/iam-api/internal/core/domain"
)

func TestSweepUserRevokesExpiredAndExcess(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "sweep@example.com", "pass-word")
	cleanup := NewTokenCleanupService(f.ledger, f.blacklist, zerolog.Nop())

	base := time.Now().UTC().Add(-time.Hour)
	tokens := make([]string, 0, domain.MaxActiveRefreshTokens+3)
	for i := 0; i < domain.MaxActiveRefreshTokens+3; i++ {
		pair, err := f.tokens.IssuePair(ctx, user)
		if err != nil {
			t.Fatalf("issue pair %d: %v", i, err)
		}
		f.ledger.setCreatedAt(pair.RefreshToken, base.Add(time.Duration(i)*time.Minute))
		tokens = append(tokens, pair.RefreshToken)
	}

	// One expired-but-active row on top of the excess ones.
	f.ledger.setExpiry(tokens[len(tokens)-1], time.Now().UTC().Add(-time.Second))

	if err := cleanup.SweepUser(ctx, user); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if n, _ := f.ledger.CountActive(ctx, user.ID); n != domain.MaxActiveRefreshTokens {
		t.Fatalf("active after sweep = %d, want %d", n, domain.MaxActiveRefreshTokens)
	}
	if _, err := f.ledger.FindActiveByToken(ctx, tokens[len(tokens)-1]); !errors.Is(err, domain.ErrTokenRevoked) {
		t.Fatal("expired token survived the sweep")
	}
	// The oldest rows go first; the ceiling keeps the newest sessions.
	for _, tok := range tokens[:2] {
		if _, err := f.ledger.FindActiveByToken(ctx, tok); !errors.Is(err, domain.ErrTokenRevoked) {
			t.Fatal("old excess token survived the sweep")
		}
	}

	// A second sweep finds nothing to do.
	if err := cleanup.SweepUser(ctx, user); err != nil {
		t.Fatalf("repeat sweep: %v", err)
	}
	if n, _ := f.ledger.CountActive(ctx, user.ID); n != domain.MaxActiveRefreshTokens {
		t.Fatalf("repeat sweep changed active count to %d", n)
	}
}

func TestSweepUserLeavesOtherUsersAlone(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, "alice-sweep@example.com", "pass-word")
	bob := f.seedUser(t, "bob-sweep@example.com", "pass-word")
	cleanup := NewTokenCleanupService(f.ledger, f.blacklist, zerolog.Nop())

	bobPair, err := f.tokens.IssuePair(ctx, bob)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	f.ledger.setExpiry(bobPair.RefreshToken, time.Now().UTC().Add(-time.Second))

	if err := cleanup.SweepUser(ctx, alice); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// Bob's expired row is not Alice's problem.
	if _, err := f.ledger.FindActiveByToken(ctx, bobPair.RefreshToken); err != nil {
		t.Fatalf("sweep crossed user boundary: %v", err)
	}
}

func TestSweepBlacklistDeletesOnlyExpired(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	cleanup := NewTokenCleanupService(f.ledger, f.blacklist, zerolog.Nop())

	now := time.Now().UTC()
	stale := &domain.BlacklistedToken{Token: "stale", ExpiresAt: now.Add(-time.Minute), RevokedAt: now}
	live := &domain.BlacklistedToken{Token: "live", ExpiresAt: now.Add(time.Hour), RevokedAt: now}
	for _, bt := range []*domain.BlacklistedToken{stale, live} {
		if err := f.blacklist.Save(ctx, bt); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	if err := cleanup.SweepBlacklist(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if found, _ := f.blacklist.Exists(ctx, "stale"); found {
		t.Fatal("expired blacklist row survived")
	}
	if found, _ := f.blacklist.Exists(ctx, "live"); !found {
		t.Fatal("live blacklist row was deleted")
	}
}

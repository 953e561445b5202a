package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matt-iam/iam-api/internal/core/domain"
	"github.com/matt-iam/iam-api/internal/core/ports"
	"github.com/matt-iam/iam-api/internal/token"
)

func TestRotateIssuesNewPairAndKillsOld(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "rot@example.com", "pass-word")

	old, err := f.tokens.IssuePair(ctx, user)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	fresh, err := f.tokens.Rotate(ctx, old.AccessToken, old.RefreshToken)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if fresh.AccessToken == old.AccessToken || fresh.RefreshToken == old.RefreshToken {
		t.Fatal("rotation returned a token from the old pair")
	}

	if dead, _ := f.blacklist.Exists(ctx, old.AccessToken); !dead {
		t.Fatal("old access token not blacklisted")
	}
	if _, err := f.ledger.FindActiveByToken(ctx, old.RefreshToken); !errors.Is(err, domain.ErrTokenRevoked) {
		t.Fatalf("old refresh token still active: %v", err)
	}
	if _, err := f.ledger.FindActiveByToken(ctx, fresh.RefreshToken); err != nil {
		t.Fatalf("new refresh token not active: %v", err)
	}
	if _, err := f.codec.Verify(fresh.AccessToken, token.TypeAccess); err != nil {
		t.Fatalf("new access token invalid: %v", err)
	}
}

func TestRotateReplayIsReuseDetection(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "replay@example.com", "pass-word")

	old, err := f.tokens.IssuePair(ctx, user)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if _, err := f.tokens.Rotate(ctx, old.AccessToken, old.RefreshToken); err != nil {
		t.Fatalf("first rotate: %v", err)
	}

	if _, err := f.tokens.Rotate(ctx, old.AccessToken, old.RefreshToken); !errors.Is(err, domain.ErrTokenRevoked) {
		t.Fatalf("replay err = %v, want ErrTokenRevoked", err)
	}

	var reuse bool
	for _, kind := range f.audit.kinds() {
		if kind == ports.AuditReuseDetected {
			reuse = true
		}
	}
	if !reuse {
		t.Fatal("reuse detection event not published")
	}
}

func TestRotateExpiredThenRevoked(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "expired@example.com", "pass-word")

	old, err := f.tokens.IssuePair(ctx, user)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	f.ledger.setExpiry(old.RefreshToken, time.Now().UTC().Add(-time.Minute))

	// First attempt trips lazy expiry and revokes the row.
	if _, err := f.tokens.Rotate(ctx, old.AccessToken, old.RefreshToken); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
	// The replay of the same dead token reports revoked, not expired.
	if _, err := f.tokens.Rotate(ctx, old.AccessToken, old.RefreshToken); !errors.Is(err, domain.ErrTokenRevoked) {
		t.Fatalf("replay err = %v, want ErrTokenRevoked", err)
	}
}

func TestRotateConcurrentExactlyOneWins(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "race@example.com", "pass-word")

	old, err := f.tokens.IssuePair(ctx, user)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.tokens.Rotate(ctx, old.AccessToken, old.RefreshToken)
		}(i)
	}
	wg.Wait()

	var wins, revoked int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrTokenRevoked):
			revoked++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
	if revoked != attempts-1 {
		t.Fatalf("revoked = %d, want %d", revoked, attempts-1)
	}
}

func TestRotateTrimsLedgerAtCeiling(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "ceiling@example.com", "pass-word")

	// Logins never trim, so the ledger can transiently exceed the ceiling.
	pairs := make([]*ports.TokenPair, 0, domain.MaxActiveRefreshTokens+1)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i <= domain.MaxActiveRefreshTokens; i++ {
		pair, err := f.tokens.IssuePair(ctx, user)
		if err != nil {
			t.Fatalf("issue pair %d: %v", i, err)
		}
		f.ledger.setCreatedAt(pair.RefreshToken, base.Add(time.Duration(i)*time.Minute))
		pairs = append(pairs, pair)
	}

	if n, _ := f.ledger.CountActive(ctx, user.ID); n != domain.MaxActiveRefreshTokens+1 {
		t.Fatalf("active before rotation = %d, want %d", n, domain.MaxActiveRefreshTokens+1)
	}

	newest := pairs[len(pairs)-1]
	if _, err := f.tokens.Rotate(ctx, newest.AccessToken, newest.RefreshToken); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	// Rotation consumed one, trimmed the oldest, and issued one replacement.
	if n, _ := f.ledger.CountActive(ctx, user.ID); n != domain.MaxActiveRefreshTokens {
		t.Fatalf("active after rotation = %d, want %d", n, domain.MaxActiveRefreshTokens)
	}
	if _, err := f.ledger.FindActiveByToken(ctx, pairs[0].RefreshToken); !errors.Is(err, domain.ErrTokenRevoked) {
		t.Fatalf("oldest session survived the trim: %v", err)
	}
}

func TestRotateLockedAccountLeavesTokenActive(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "locked@example.com", "pass-word")

	old, err := f.tokens.IssuePair(ctx, user)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	until := time.Now().UTC().Add(domain.LockDuration)
	user.LockedUntil = &until
	if err := f.users.Save(ctx, user); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := f.tokens.Rotate(ctx, old.AccessToken, old.RefreshToken); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("err = %v, want ErrAccountLocked", err)
	}

	// Validation failed before the consumption point, so the token survives
	// and works once the lock lapses.
	if _, err := f.ledger.FindActiveByToken(ctx, old.RefreshToken); err != nil {
		t.Fatalf("refresh token was consumed on a rejected rotation: %v", err)
	}
	if dead, _ := f.blacklist.Exists(ctx, old.AccessToken); dead {
		t.Fatal("access token was blacklisted on a rejected rotation")
	}
}

func TestRotateRejectsGarbageTokens(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "garbage@example.com", "pass-word")

	old, err := f.tokens.IssuePair(ctx, user)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	if _, err := f.tokens.Rotate(ctx, old.AccessToken, "nonsense"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("garbage refresh err = %v, want ErrInvalidToken", err)
	}
	if _, err := f.tokens.Rotate(ctx, "nonsense", old.RefreshToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("garbage access err = %v, want ErrInvalidToken", err)
	}
	// An access token in the refresh slot fails the type check.
	if _, err := f.tokens.Rotate(ctx, old.AccessToken, old.AccessToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("access-as-refresh err = %v, want ErrInvalidToken", err)
	}

	if _, err := f.ledger.FindActiveByToken(ctx, old.RefreshToken); err != nil {
		t.Fatalf("refresh token mutated by rejected rotations: %v", err)
	}
}

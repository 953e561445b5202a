package token

import (
	"testing"
	"time"

	"github.com/matt-iam/iam-api/internal/core/domain"
)

const testSecret = "test-secret-0123456789"

func testCodec() *Codec {
	return NewCodec(testSecret, 15*time.Minute, 7*24*time.Hour)
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	c := testCodec()

	signed, exp, err := c.Issue("user@example.com", TypeAccess, []string{"USER"}, []string{"READ_PRIVILEGES"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if remaining := time.Until(exp); remaining < 14*time.Minute || remaining > 15*time.Minute {
		t.Fatalf("expiry %v not within access window", remaining)
	}

	claims, err := c.Verify(signed, TypeAccess)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user@example.com" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if claims.Issuer != Issuer {
		t.Fatalf("issuer = %q, want %q", claims.Issuer, Issuer)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "USER" {
		t.Fatalf("roles = %v", claims.Roles)
	}
	if len(claims.Permissions) != 1 || claims.Permissions[0] != "READ_PRIVILEGES" {
		t.Fatalf("permissions = %v", claims.Permissions)
	}
	if !claims.ExpiresAt.Time.Equal(exp) {
		t.Fatalf("exp claim %v != returned expiry %v", claims.ExpiresAt.Time, exp)
	}
}

func TestVerifyRejectsWrongType(t *testing.T) {
	c := testCodec()

	refresh, _, err := c.Issue("user@example.com", TypeRefresh, nil, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := c.Verify(refresh, TypeAccess); err != domain.ErrInvalidToken {
		t.Fatalf("refresh verified as access: err = %v, want ErrInvalidToken", err)
	}
	if _, err := c.Verify(refresh, TypeRefresh); err != nil {
		t.Fatalf("refresh rejected as refresh: %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	signed, _, err := NewCodec("other-secret", 0, 0).Issue("user@example.com", TypeAccess, nil, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := testCodec().Verify(signed, TypeAccess); err != domain.ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

// expiredCodec bypasses the TTL floor in NewCodec so tokens come out already
// past their window.
func expiredCodec() *Codec {
	return &Codec{secret: []byte(testSecret), accessTTL: -time.Minute, refreshTTL: -time.Minute}
}

func TestVerifyRejectsExpired(t *testing.T) {
	c := expiredCodec()

	signed, _, err := c.Issue("user@example.com", TypeAccess, nil, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Expired collapses into the same error as every other failure.
	if _, err := c.Verify(signed, TypeAccess); err != domain.ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	if _, err := testCodec().Verify("not.a.token", TypeAccess); err != domain.ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestRefreshTokensAreUnique(t *testing.T) {
	c := testCodec()

	a, _, err := c.Issue("user@example.com", TypeRefresh, nil, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	b, _, err := c.Issue("user@example.com", TypeRefresh, nil, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if a == b {
		t.Fatal("two refresh tokens for the same subject are byte-identical")
	}
}

func TestExpiryOfExpiredToken(t *testing.T) {
	c := expiredCodec()

	signed, exp, err := c.Issue("user@example.com", TypeAccess, nil, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := c.ExpiryOf(signed)
	if err != nil {
		t.Fatalf("ExpiryOf on expired token: %v", err)
	}
	if !got.Equal(exp) {
		t.Fatalf("ExpiryOf = %v, want %v", got, exp)
	}
}

func TestExpiryOfChecksSignature(t *testing.T) {
	signed, _, err := NewCodec("other-secret", 0, 0).Issue("user@example.com", TypeAccess, nil, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := testCodec().ExpiryOf(signed); err != domain.ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

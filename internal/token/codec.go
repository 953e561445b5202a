// Package token implements the stateless signer/verifier for bearer tokens.
// Every verification failure (bad signature, wrong issuer, expired, wrong
// type) collapses into domain.ErrInvalidToken so callers cannot tell why a
// token was rejected.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/matt-iam/iam-api/internal/core/domain"
)

// Type distinguishes the two token kinds carried in the "type" claim.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Issuer is the fixed issuer identity stamped into and required of every token.
const Issuer = "iam-api"

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the full claim set carried by both token kinds. Refresh tokens
// additionally get a random jti so two tokens for the same subject issued in
// the same instant are never byte-identical.
type Claims struct {
	Type        Type     `json:"type"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a single server-held HS256 secret.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewCodec(secret string, accessTTL, refreshTTL time.Duration) *Codec {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &Codec{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// Issue mints a token of the given type for subject, carrying the role and
// permission claims verbatim. The returned expiry is exactly the value stored
// in the exp claim, so the ledger and the codec always agree on it.
func (c *Codec) Issue(subject string, typ Type, roles, permissions []string) (string, time.Time, error) {
	ttl := c.accessTTL
	if typ == TypeRefresh {
		ttl = c.refreshTTL
	}

	exp := jwt.NewNumericDate(time.Now().UTC().Add(ttl))
	claims := Claims{
		Type:        typ,
		Roles:       roles,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: exp,
		},
	}
	if typ == TypeRefresh {
		claims.ID = uuid.NewString()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, domain.ErrTokenCreation
	}
	return signed, exp.Time, nil
}

// Verify parses and validates tokenStr and requires it to be of the given
// type. Any failure yields domain.ErrInvalidToken.
func (c *Codec) Verify(tokenStr string, want Type) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, domain.ErrInvalidToken
	}
	if claims.Type != want {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// ExpiryOf extracts the exp claim from one of our own tokens after checking
// the signature, skipping expiry validation. The blacklist needs the claim of
// tokens that may already be past their window.
func (c *Codec) ExpiryOf(tokenStr string) (time.Time, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	if _, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}); err != nil {
		return time.Time{}, domain.ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, domain.ErrInvalidToken
	}
	return claims.ExpiresAt.Time, nil
}

package domain

import "time"

// MaxActiveRefreshTokens caps the number of live sessions per user. Login may
// exceed it transiently; rotation and cleanup trim back down to the ceiling.
const MaxActiveRefreshTokens = 5

// RefreshToken is one entry in a user's session ledger. The revoked flag is
// monotonic: once true it never reverts.
type RefreshToken struct {
	ID         string     `json:"id"`
	Token      string     `json:"-"`
	UserID     string     `json:"user_id"`
	Subject    string     `json:"subject"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Revoked    bool       `json:"revoked"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Expired reports whether the token's lifetime has passed at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// BlacklistedToken records an access token that must be rejected before its
// natural expiry. Rows are purged once expires_at has passed, at which point
// the codec rejects the token on its own.
type BlacklistedToken struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	RevokedAt time.Time `json:"revoked_at"`
}

package domain

import (
	"sort"
	"time"
)

const (
	// MaxLoginAttempts is the number of consecutive failed logins that locks an account.
	MaxLoginAttempts = 5
	// LockDuration is how long an account stays locked after too many failures.
	LockDuration = 30 * time.Minute
)

// Role groups a flat set of permission names under a single name.
type Role struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// DefaultRoleName is attached to every user at registration.
const DefaultRoleName = "USER"

// User models an account in the identity service.
type User struct {
	ID                  string     `json:"id"`
	Nickname            string     `json:"nickname"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Enabled             bool       `json:"enabled"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	Roles               []Role     `json:"roles"`
}

// IsLocked reports whether the account lock is still in effect at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// Accessible checks whether the account may attempt authentication at all.
// A disabled or locked account never reaches the secret comparison.
func (u *User) Accessible(now time.Time) error {
	if !u.Enabled {
		return ErrAccountDisabled
	}
	if u.IsLocked(now) {
		return ErrAccountLocked
	}
	return nil
}

// RecordFailure increments the failure counter and, once MaxLoginAttempts is
// reached, sets the lock timestamp. It reports whether the account locked on
// this attempt.
func (u *User) RecordFailure(now time.Time) bool {
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= MaxLoginAttempts {
		until := now.Add(LockDuration)
		u.LockedUntil = &until
		return true
	}
	return false
}

// RecordSuccess resets the failure counter and stamps the last login.
func (u *User) RecordSuccess(now time.Time) {
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now
}

// RoleNames returns the names of all roles attached to the user.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// DerivePermissions flattens the permission sets of the given roles into a
// sorted, de-duplicated list.
func DerivePermissions(roles []Role) []string {
	seen := make(map[string]struct{})
	for _, r := range roles {
		for _, p := range r.Permissions {
			seen[p] = struct{}{}
		}
	}
	perms := make([]string, 0, len(seen))
	for p := range seen {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms
}

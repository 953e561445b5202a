package domain

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrAccountDisabled    = errors.New("account not enabled")
	ErrAccountLocked      = errors.New("account locked")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenRevoked       = errors.New("token was revoked")
	ErrTokenNotOwned      = errors.New("token does not belong to user")
	ErrRoleNotFound       = errors.New("role not found")
	ErrTokenCreation      = errors.New("failed to create token")
)

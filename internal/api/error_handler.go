package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/matt-iam/iam-api/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	// Known domain errors → deterministic HTTP codes. Unknown-user and
	// wrong-password both land in the 4xx rejection class without revealing
	// which sub-check failed.
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusBadRequest, "user already exists"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusForbidden, "invalid credentials"
	case errors.Is(err, domain.ErrTooManyAttempts):
		return http.StatusForbidden, "too many failed login attempts"
	case errors.Is(err, domain.ErrAccountLocked):
		return http.StatusForbidden, "account locked"
	case errors.Is(err, domain.ErrAccountDisabled):
		return http.StatusForbidden, "account not enabled"
	case errors.Is(err, domain.ErrInvalidToken):
		return http.StatusForbidden, "invalid token"
	case errors.Is(err, domain.ErrTokenExpired):
		return http.StatusForbidden, "token expired"
	case errors.Is(err, domain.ErrTokenRevoked):
		return http.StatusForbidden, "token was revoked"
	case errors.Is(err, domain.ErrTokenNotOwned):
		return http.StatusForbidden, "token does not belong to user"
	case errors.Is(err, domain.ErrRoleNotFound), errors.Is(err, domain.ErrTokenCreation):
		// Configuration and signing failures are server faults.
		break
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, "internal server error"
}

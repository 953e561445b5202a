package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/matt-iam/iam-api/internal/api/metrics"
	"github.com/matt-iam/iam-api/internal/core/domain"
	"github.com/matt-iam/iam-api/internal/token"
)

// BlacklistChecker answers whether an access token has been revoked.
type BlacklistChecker interface {
	Exists(ctx context.Context, token string) (bool, error)
}

// UserFinder resolves the token subject to a live account.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Auth is the request-authorization boundary: it extracts the bearer token,
// rejects blacklisted or invalid tokens, rejects refresh tokens presented as
// access tokens, rejects disabled or locked accounts, and injects the
// verified principal into the request context.
func Auth(codec *token.Codec, blacklist BlacklistChecker, users UserFinder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}
			raw := parts[1]

			ctx := c.Request().Context()

			revoked, err := blacklist.Exists(ctx, raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "authorization check failed")
			}
			if revoked {
				metrics.BlacklistChecksTotal.WithLabelValues("hit").Inc()
				return echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
			}
			metrics.BlacklistChecksTotal.WithLabelValues("miss").Inc()

			claims, err := codec.Verify(raw, token.TypeAccess)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "token failed validation")
			}

			user, err := users.FindByEmail(ctx, claims.Subject)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "user not found for given token")
			}
			if err := user.Accessible(time.Now().UTC()); err != nil {
				return echo.NewHTTPError(http.StatusForbidden, "account not accessible")
			}

			c.Set("subject", claims.Subject)
			c.Set("roles", claims.Roles)
			c.Set("permissions", claims.Permissions)
			c.Set("access_token", raw)

			return next(c)
		}
	}
}

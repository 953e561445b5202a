package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequirePermission enforces that the verified principal carries at least one
// of the given permission claims. Must run after Auth.
func RequirePermission(required ...string) echo.MiddlewareFunc {
	want := make(map[string]struct{}, len(required))
	for _, p := range required {
		want[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			perms, _ := c.Get("permissions").([]string)
			for _, p := range perms {
				if _, ok := want[p]; ok {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		}
	}
}

package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/matt-iam/iam-api/internal/api/metrics"
	"github.com/matt-iam/iam-api/internal/core/domain"
	"github.com/matt-iam/iam-api/internal/core/ports"
)

type AuthHandler struct {
	auth   ports.AuthService
	tokens ports.TokenService
}

func NewAuthHandler(auth ports.AuthService, tokens ports.TokenService) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens}
}

type registerRequest struct {
	Nickname string `json:"nickname" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type loginResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Register creates a new user account.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Registration details"
// @Success      200
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := h.auth.Register(c.Request().Context(), req.Nickname, req.Email, req.Password); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// Login authenticates credentials and returns an access/refresh pair.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	pair, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(loginResult(err)).Inc()
		if errors.Is(err, domain.ErrTooManyAttempts) {
			metrics.LockoutsTotal.Inc()
		}
		return err
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	return c.JSON(http.StatusOK, loginResponse{
		UserID:       pair.UserID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Refresh exchanges a refresh token for a new pair, consuming the old one.
//
// @Summary      Rotate a refresh token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  true  "Current token pair"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	pair, err := h.tokens.Rotate(c.Request().Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		metrics.RotationsTotal.WithLabelValues(rotationResult(err)).Inc()
		if errors.Is(err, domain.ErrTokenRevoked) {
			metrics.ReuseDetectedTotal.Inc()
		}
		return err
	}

	metrics.RotationsTotal.WithLabelValues("success").Inc()
	return c.JSON(http.StatusOK, loginResponse{
		UserID:       pair.UserID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Logout blacklists the presented access token and optionally revokes the
// refresh token supplied in the body.
//
// @Summary      Logout
// @Tags         auth
// @Accept       json
// @Param        Authorization  header  string         true   "Bearer access token"
// @Param        body           body    logoutRequest  false  "Optional refresh token"
// @Success      200
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	accessToken, err := bearerToken(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing bearer token"})
	}

	var req logoutRequest
	// The body is optional; a bind failure just means no refresh token.
	_ = c.Bind(&req)

	if err := h.auth.Logout(c.Request().Context(), accessToken, req.RefreshToken); err != nil {
		return err
	}

	metrics.LogoutsTotal.Inc()
	return c.NoContent(http.StatusOK)
}

func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "missing bearer token")
	}
	return parts[1], nil
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrAccountLocked), errors.Is(err, domain.ErrTooManyAttempts):
		return "locked"
	case errors.Is(err, domain.ErrAccountDisabled):
		return "disabled"
	case errors.Is(err, domain.ErrUserNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func rotationResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidToken):
		return "invalid"
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrTokenRevoked):
		return "revoked"
	default:
		return "error"
	}
}

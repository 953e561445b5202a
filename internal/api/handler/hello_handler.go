package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HelloHandler is a minimal protected endpoint: anything it returns proves
// the full authorization chain (blacklist, codec, account state) passed.
type HelloHandler struct{}

func NewHelloHandler() *HelloHandler {
	return &HelloHandler{}
}

// Hello greets the verified principal.
//
// @Summary      Greet the authenticated user
// @Tags         hello
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]any
// @Failure      401  {object}  map[string]string
// @Router       /hello [get]
func (h *HelloHandler) Hello(c echo.Context) error {
	subject, _ := c.Get("subject").(string)
	roles, _ := c.Get("roles").([]string)
	permissions, _ := c.Get("permissions").([]string)

	return c.JSON(http.StatusOK, map[string]any{
		"message":     "hello, " + subject,
		"roles":       roles,
		"permissions": permissions,
	})
}

package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/backend"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/session"
)

// API is the part of the backend client the root routes call.
type API interface {
	ValidateToken(ctx context.Context, cred backend.Credentials) (json.RawMessage, error)
}

type Handler struct {
	api    API
	logger zerolog.Logger
}

func NewHandler(api API, logger zerolog.Logger) *Handler {
	return &Handler{api: api, logger: logger}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Root)
	e.POST("/logout", h.Logout)
	e.GET("/session/validate", h.ValidateSession, Require(h.logger, ViewAdmin, ViewPatients))
}

// Root re-reads the session on every load and redirects to the matching view.
func (h *Handler) Root(c echo.Context) error {
	var id *session.Identity
	if sess := session.FromContext(c); sess != nil {
		var err error
		id, err = sess.Get(c.Request().Context())
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to read session")
			id = nil
		}
	}
	return c.Redirect(http.StatusSeeOther, Resolve(id).Path())
}

// Logout clears the session, detaches the browser from it and returns to the
// root view. It never fails.
func (h *Handler) Logout(c echo.Context) error {
	if sess := session.FromContext(c); sess != nil {
		if err := sess.Clear(c.Request().Context()); err != nil {
			h.logger.Warn().Err(err).Msg("failed to clear session on logout")
		}
		sess.Expire(c)
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

// ValidateSession asks the backend whether the session's token is still valid.
func (h *Handler) ValidateSession(c echo.Context) error {
	sess := session.FromContext(c)
	out, err := h.api.ValidateToken(c.Request().Context(), sess)
	if err != nil {
		status := http.StatusBadGateway
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return c.JSON(status, map[string]string{"error": err.Error()})
	}
	if len(out) == 0 {
		return c.JSON(http.StatusOK, map[string]bool{"valid": true})
	}
	return c.JSONBlob(http.StatusOK, out)
}

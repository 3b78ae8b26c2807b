// Package portal decides which view a browser session sees and guards the
// view routes accordingly.
package portal

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/session"
)

// View is one of the portal's top-level screens.
type View int

const (
	ViewAuth View = iota
	ViewAdmin
	ViewPatients
)

func (v View) String() string {
	switch v {
	case ViewAdmin:
		return "admin"
	case ViewPatients:
		return "patients"
	}
	return "auth"
}

// Path is where the view is served.
func (v View) Path() string {
	switch v {
	case ViewAdmin:
		return "/admin"
	case ViewPatients:
		return "/patients"
	}
	return "/login"
}

// Resolve picks the view for an identity. A nil identity is signed out.
func Resolve(id *session.Identity) View {
	switch {
	case id == nil:
		return ViewAuth
	case id.IsAdmin:
		return ViewAdmin
	default:
		return ViewPatients
	}
}

const identityKey = "portal_identity"

// Identity returns the identity loaded by Require, or nil.
func Identity(c echo.Context) *session.Identity {
	id, _ := c.Get(identityKey).(*session.Identity)
	return id
}

// Require lets a request through only when the session resolves to one of
// the given views. Anything else is sent back to / to be routed again.
func Require(logger zerolog.Logger, views ...View) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := session.FromContext(c)
			if sess == nil {
				return c.Redirect(http.StatusSeeOther, "/")
			}
			id, err := sess.Get(c.Request().Context())
			if err != nil {
				logger.Error().Err(err).Msg("failed to read session")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "session store unavailable")
			}
			current := Resolve(id)
			for _, v := range views {
				if v == current {
					c.Set(identityKey, id)
					return next(c)
				}
			}
			return c.Redirect(http.StatusSeeOther, "/")
		}
	}
}

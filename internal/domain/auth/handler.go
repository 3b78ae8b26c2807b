package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/session"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/validate"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/web"
)

type loginPage struct {
	UserID string
}

type passwordPage struct {
	UserID string
	Seal   string
}

type Handler struct {
	flow   *Flow
	logger zerolog.Logger
}

func NewHandler(flow *Flow, logger zerolog.Logger) *Handler {
	return &Handler{flow: flow, logger: logger}
}

// RegisterRoutes mounts the login routes on a group rooted at /login.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.ShowLogin)
	g.POST("", h.SubmitLogin)
	g.POST("/admin", h.SubmitPassword)
	g.POST("/cancel", h.Cancel)
}

func (h *Handler) ShowLogin(c echo.Context) error {
	sess := session.FromContext(c)
	if sess != nil {
		if id, err := sess.Get(c.Request().Context()); err == nil && id != nil {
			return c.Redirect(http.StatusSeeOther, "/")
		}
	}
	page := web.NewPage(c, "Sign in")
	page.Data = loginPage{}
	return c.Render(http.StatusOK, web.PageLogin, page)
}

func (h *Handler) SubmitLogin(c echo.Context) error {
	sess := session.FromContext(c)
	if sess == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "session unavailable")
	}
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}

	switch out := h.flow.Login(c.Request().Context(), sess, req.UserID).(type) {
	case GeneralSuccess:
		return c.Redirect(http.StatusSeeOther, "/")
	case AdminChallenge:
		return h.renderPassword(c, http.StatusOK, out, "")
	case Failed:
		page := web.NewPage(c, "Sign in")
		page.Error = out.Error()
		page.Data = loginPage{UserID: req.UserID}
		return c.Render(failureStatus(out.Err), web.PageLogin, page)
	}
	return echo.NewHTTPError(http.StatusInternalServerError)
}

func (h *Handler) SubmitPassword(c echo.Context) error {
	sess := session.FromContext(c)
	if sess == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "session unavailable")
	}
	var req PasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}

	switch out := h.flow.SubmitPassword(c.Request().Context(), sess, req.Seal, req.Password).(type) {
	case GeneralSuccess:
		return c.Redirect(http.StatusSeeOther, "/")
	case Failed:
		ch, err := h.flow.Challenge(req.Seal)
		if err != nil {
			page := web.NewPage(c, "Sign in")
			page.Error = ErrChallengeInvalid.Error()
			page.Data = loginPage{}
			return c.Render(http.StatusUnauthorized, web.PageLogin, page)
		}
		return h.renderPassword(c, failureStatus(out.Err), ch, out.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError)
}

// Cancel abandons a pending challenge. The session is not touched.
func (h *Handler) Cancel(c echo.Context) error {
	return c.Redirect(http.StatusSeeOther, "/login")
}

func (h *Handler) renderPassword(c echo.Context, status int, ch AdminChallenge, errMsg string) error {
	page := web.NewPage(c, "Administrator verification")
	page.Error = errMsg
	page.Data = passwordPage{UserID: ch.UserID, Seal: ch.Seal}
	return c.Render(status, web.PagePassword, page)
}

func failureStatus(err error) int {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrChallengeInvalid):
		return http.StatusUnauthorized
	}
	return http.StatusOK
}

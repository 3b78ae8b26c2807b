package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/domain/portal"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/domain/viewer"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/backend"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/session"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/validate"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/web"
)

const msgSettingsFailed = "Failed to load settings."

type Handler struct {
	svc    *Service
	opener *viewer.Opener
	logger zerolog.Logger
}

func NewHandler(svc *Service, opener *viewer.Opener, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, opener: opener, logger: logger}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/admin", portal.Require(h.logger, portal.ViewAdmin))
	g.GET("", h.Show)
	g.POST("/settings/:field", h.UpdateSetting)
	g.POST("/test-patient", h.TestPatient)
	g.POST("/test-viewer", h.TestViewer)
}

type view struct {
	status   int
	err      string
	notice   string
	settings *backend.AdminSettings
	result   json.RawMessage
}

// render shows the admin page. When v.settings is nil the settings are
// fetched first.
func (h *Handler) render(c echo.Context, v view) error {
	data := settingsPage{TestResult: v.result}
	settings := v.settings
	if settings == nil {
		var err error
		settings, err = h.svc.Settings(c.Request().Context(), session.FromContext(c))
		if err != nil {
			h.logger.Warn().Err(err).Msg("admin settings failed")
			data.SettingsError = msgSettingsFailed
		}
	}
	data.Fields = rows(settings)

	page := web.NewPage(c, "Administration")
	page.Identity = portal.Identity(c)
	page.Error = v.err
	page.Notice = v.notice
	page.Data = data
	if v.status == 0 {
		v.status = http.StatusOK
	}
	return c.Render(v.status, web.PageAdmin, page)
}

func (h *Handler) Show(c echo.Context) error {
	return h.render(c, view{})
}

func (h *Handler) UpdateSetting(c echo.Context) error {
	field, ok := backend.LookupSettingField(c.Param("field"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, ErrUnknownField.Error())
	}
	var form UpdateForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}

	sess := session.FromContext(c)
	res, err := h.svc.UpdateField(c.Request().Context(), sess, sess.ID(), field.Slug, form.Value)
	var verr *validate.Error
	switch {
	case err == nil:
	case errors.As(err, &verr):
		return h.render(c, view{status: http.StatusUnprocessableEntity, err: fmt.Sprintf("Enter a value for %s.", Label(field))})
	case errors.Is(err, ErrUpdateInProgress):
		return h.render(c, view{status: http.StatusConflict, err: err.Error()})
	default:
		return h.render(c, view{err: err.Error()})
	}

	v := view{notice: fmt.Sprintf("%s updated successfully.", Label(field)), settings: res.Settings}
	if res.ReloadErr != nil {
		h.logger.Warn().Err(res.ReloadErr).Msg("admin settings reload failed")
		return h.renderReloadFailed(c, v)
	}
	return h.render(c, v)
}

func (h *Handler) renderReloadFailed(c echo.Context, v view) error {
	page := web.NewPage(c, "Administration")
	page.Identity = portal.Identity(c)
	page.Notice = v.notice
	page.Data = settingsPage{Fields: rows(nil), SettingsError: msgSettingsFailed}
	return c.Render(http.StatusOK, web.PageAdmin, page)
}

func (h *Handler) TestPatient(c echo.Context) error {
	var form TestForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	id := portal.Identity(c)

	out, err := h.svc.TestPatient(c.Request().Context(), session.FromContext(c), id.UserID, form.ResidentNumber)
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		return h.render(c, view{status: http.StatusUnprocessableEntity, err: verr.Error()})
	case err != nil:
		return h.render(c, view{err: err.Error()})
	}
	if len(out) == 0 {
		out = json.RawMessage(`{}`)
	}
	return h.render(c, view{notice: "Test request completed.", result: out})
}

// TestViewer opens the viewer for the synthetic test patient in the new tab
// the form targets.
func (h *Handler) TestViewer(c echo.Context) error {
	var form TestForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	tabs := viewer.NewEchoTabs(c)

	if err := c.Validate(&form); err != nil {
		tab, ok := tabs.OpenTab()
		if !ok {
			return viewer.RespondBlocked(c)
		}
		return tab.Close(err)
	}

	id := portal.Identity(c)
	dept := id.DeptCode
	if dept == "" {
		dept = TestDeptDefault
	}
	req := h.opener.Request(id.UserID, TestPatientID, dept, form.ResidentNumber)
	err := h.opener.Open(c.Request().Context(), tabs, session.FromContext(c), req)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, viewer.ErrPopupBlocked):
		return viewer.RespondBlocked(c)
	case c.Response().Committed:
		return nil
	}
	return err
}

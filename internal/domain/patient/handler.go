package patient

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/domain/portal"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/domain/viewer"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/backend"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/session"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/web"
)

const msgDepartmentsFailed = "Failed to load the department list."

type flagOption struct {
	Value    int
	Label    string
	Selected bool
}

type listPage struct {
	Departments []string
	Flags       []flagOption
	Patients    []backend.PatientInfo
	Searched    bool
	SearchError string
}

// ViewerForm identifies the row a viewer is opened for.
type ViewerForm struct {
	PatID    string `form:"patId" label:"Patient ID" validate:"notblank"`
	DeptCode string `form:"deptCode"`
	JuminNum string `form:"juminNum"`
}

type Handler struct {
	svc    *Service
	opener *viewer.Opener
	logger zerolog.Logger
}

func NewHandler(svc *Service, opener *viewer.Opener, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, opener: opener, logger: logger}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/patients", portal.Require(h.logger, portal.ViewPatients))
	g.GET("", h.List)
	g.POST("/viewer", h.OpenViewer)
}

// List renders the patient view. Departments are loaded on every render; the
// patient list only when a review flag is given.
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	id := portal.Identity(c)
	sess := session.FromContext(c)

	page := web.NewPage(c, "Patients")
	page.Identity = id

	depts, err := h.svc.Departments(ctx, sess)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", id.UserID).Msg("department list failed")
		page.Title = "Patients unavailable"
		page.Data = msgDepartmentsFailed
		return c.Render(http.StatusBadGateway, web.PageError, page)
	}

	data := listPage{Departments: depts}
	selected := backend.ReviewUnreviewed
	if raw := c.QueryParam("clncCnfrmFlag"); raw != "" {
		flag, err := backend.ParseReviewFlag(raw)
		if err != nil {
			data.SearchError = "Choose a valid review status."
		} else {
			selected = flag
			data.Searched = true
			list, err := h.svc.Search(ctx, sess, flag)
			if err != nil {
				data.SearchError = err.Error()
			} else {
				data.Patients = list
			}
		}
	}
	for _, f := range backend.ReviewFlags {
		data.Flags = append(data.Flags, flagOption{Value: int(f), Label: f.String(), Selected: f == selected})
	}

	page.Data = data
	return c.Render(http.StatusOK, web.PagePatients, page)
}

// OpenViewer answers the new tab opened by a patient row's viewer button.
func (h *Handler) OpenViewer(c echo.Context) error {
	id := portal.Identity(c)
	var form ViewerForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	if err := c.Validate(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	req := h.opener.Request(id.UserID, form.PatID, form.DeptCode, form.JuminNum)
	err := h.opener.Open(c.Request().Context(), viewer.NewEchoTabs(c), session.FromContext(c), req)
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

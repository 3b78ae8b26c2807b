package viewer

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/validate"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/web"
)

// FailureMessage is shown in the tab when the viewer could not be opened and
// the backend gave no better text.
const FailureMessage = "Failed to open the web viewer."

type closedPage struct {
	Message string
}

// EchoTabs treats a top-level document navigation as the new tab. Form posts
// with target="_blank" arrive this way; fetch and XHR calls do not, and are
// reported as blocked.
type EchoTabs struct {
	c echo.Context
}

func NewEchoTabs(c echo.Context) *EchoTabs {
	return &EchoTabs{c: c}
}

func (t *EchoTabs) OpenTab() (Tab, bool) {
	dest := t.c.Request().Header.Get("Sec-Fetch-Dest")
	if dest != "" && dest != "document" {
		return nil, false
	}
	return &echoTab{c: t.c}, true
}

type echoTab struct {
	c echo.Context
}

// Navigate redirects the tab to the viewer.
func (t *echoTab) Navigate(url string) error {
	return t.c.Redirect(http.StatusSeeOther, url)
}

// Close renders a page that shows the reason and closes itself.
func (t *echoTab) Close(reason error) error {
	msg := FailureMessage
	if reason != nil && reason.Error() != "" {
		msg = reason.Error()
	}
	status := http.StatusBadGateway
	var verr *validate.Error
	if errors.As(reason, &verr) {
		status = http.StatusUnprocessableEntity
	}
	page := web.NewPage(t.c, "Web viewer")
	page.Data = closedPage{Message: msg}
	return t.c.Render(status, web.PageViewerClosed, page)
}

// RespondBlocked answers a request whose tab could not be opened.
func RespondBlocked(c echo.Context) error {
	return c.JSON(http.StatusConflict, map[string]string{"warning": ErrPopupBlocked.Error()})
}

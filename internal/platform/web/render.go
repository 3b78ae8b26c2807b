// Package web renders the portal's HTML pages and serves its static assets.
package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page names.
const (
	PageLogin        = "login"
	PagePassword     = "password"
	PagePatients     = "patients"
	PageAdmin        = "admin"
	PageViewerClosed = "viewer_closed"
	PageError        = "error"
)

var pages = []string{PageLogin, PagePassword, PagePatients, PageAdmin, PageViewerClosed, PageError}

// CSRFContextKey is where the CSRF middleware leaves the form token.
const CSRFContextKey = "csrf"

// Page is the data every template receives.
type Page struct {
	Title    string
	Identity *session.Identity
	CSRF     string
	Error    string
	Notice   string
	Data     any
}

// NewPage starts a page with the request's CSRF token filled in.
func NewPage(c echo.Context, title string) Page {
	tok, _ := c.Get(CSRFContextKey).(string)
	return Page{Title: title, CSRF: tok}
}

// Renderer is an echo.Renderer over the embedded templates. Each page is
// parsed together with the shared layout.
type Renderer struct {
	templates map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"json": toJSON,
		"orDefault": func(def, s string) string {
			if s == "" {
				return def
			}
			return s
		},
	}

	r := &Renderer{templates: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := template.New("layout").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	t, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

// RegisterStatic serves the embedded assets under /static.
func RegisterStatic(e *echo.Echo) {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	e.GET("/static/*", echo.WrapHandler(http.StripPrefix("/static/", http.FileServer(http.FS(sub)))))
}

func toJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

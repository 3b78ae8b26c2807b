package integration

import (
	"bytes"
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/app"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/config"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/backendstub"
)

// portalEnv is a running portal wired to a running mock backend.
type portalEnv struct {
	Portal *httptest.Server
	Stub   *backendstub.Server
}

var csrfRe = regexp.MustCompile(`name="_csrf" value="([^"]*)"`)

func baseConfig(backendURL string) *config.Config {
	return &config.Config{
		Env:                   "development",
		BackendURL:            backendURL,
		SessionBackend:        config.SessionBackendMemory,
		SessionCookieName:     "portal_session",
		SessionIdleTTL:        time.Hour,
		ChallengeSecret:       "integration-challenge-secret-0123456789",
		LoginRateLimitRPS:     1000,
		LoginRateLimitBurst:   1000,
		ViewerInstitutionType: "20",
		ViewerDevMode:         "0",
	}
}

// startPortal starts the mock backend and a portal in front of it. mutate
// may adjust the config before the portal is built.
func startPortal(t *testing.T, mutate func(*config.Config)) *portalEnv {
	t.Helper()

	stub := backendstub.New(backendstub.DefaultConfig(), zerolog.Nop())
	be := echo.New()
	stub.RegisterRoutes(be.Group("/api"))
	backendSrv := httptest.NewServer(be)
	t.Cleanup(backendSrv.Close)

	cfg := baseConfig(backendSrv.URL + "/api")
	if mutate != nil {
		mutate(cfg)
	}

	sessions, err := app.OpenSessions(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open sessions: %v", err)
	}
	t.Cleanup(sessions.Close)

	e, err := app.New(cfg, sessions, zerolog.Nop())
	if err != nil {
		t.Fatalf("build portal: %v", err)
	}
	portalSrv := httptest.NewServer(e)
	t.Cleanup(portalSrv.Close)

	return &portalEnv{Portal: portalSrv, Stub: stub}
}

// browser is a cookie-keeping client that does not follow redirects.
type browser struct {
	t    *testing.T
	base string
	http *http.Client
	csrf string
}

func (env *portalEnv) newBrowser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &browser{
		t:    t,
		base: env.Portal.URL,
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type page struct {
	Status   int
	Location string
	Body     string
	Header   http.Header
}

func (b *browser) do(req *http.Request) page {
	b.t.Helper()
	resp, err := b.http.Do(req)
	if err != nil {
		b.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	var sb bytes.Buffer
	if _, err := sb.ReadFrom(resp.Body); err != nil {
		b.t.Fatalf("read body: %v", err)
	}
	p := page{Status: resp.StatusCode, Location: resp.Header.Get("Location"), Body: sb.String(), Header: resp.Header}
	if m := csrfRe.FindStringSubmatch(p.Body); m != nil {
		b.csrf = m[1]
	}
	return p
}

func (b *browser) get(path string) page {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	if err != nil {
		b.t.Fatal(err)
	}
	return b.do(req)
}

// post submits a form, adding the CSRF token picked up from the last page.
func (b *browser) post(path string, form url.Values, headers ...string) page {
	b.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("_csrf", b.csrf)
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	if err != nil {
		b.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return b.do(req)
}

func requireDocker(t *testing.T) {
	t.Helper()
	if os.Getenv("PORTAL_IT_POSTGRES") == "" {
		t.Skip("set PORTAL_IT_POSTGRES=1 to run tests that start a Postgres container")
	}
}

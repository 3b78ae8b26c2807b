package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/backend"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/session"
)

const testSID = "0f8fad5b-d9cb-469f-a165-70867728950e"

type fakeAPI struct {
	out   json.RawMessage
	err   error
	token string
}

func (f *fakeAPI) ValidateToken(ctx context.Context, cred backend.Credentials) (json.RawMessage, error) {
	f.token = cred.BearerToken(ctx)
	return f.out, f.err
}

type env struct {
	e       *echo.Echo
	manager *session.Manager
	store   *session.MemoryStore
}

func newEnv(t *testing.T, api API) *env {
	t.Helper()
	store := session.NewMemoryStore(time.Hour)
	t.Cleanup(store.Close)
	m := session.NewManager(store, session.CookieConfig{Name: "sid"})

	e := echo.New()
	e.Use(m.Middleware())
	NewHandler(api, zerolog.Nop()).RegisterRoutes(e)
	e.GET("/admin", func(c echo.Context) error {
		return c.String(http.StatusOK, "admin:"+Identity(c).UserID)
	}, Require(zerolog.Nop(), ViewAdmin))
	e.GET("/patients", func(c echo.Context) error {
		return c.String(http.StatusOK, "patients:"+Identity(c).UserID)
	}, Require(zerolog.Nop(), ViewPatients))
	return &env{e: e, manager: m, store: store}
}

func (en *env) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: testSID})
	rec := httptest.NewRecorder()
	en.e.ServeHTTP(rec, req)
	return rec
}

func (en *env) signIn(t *testing.T, id session.Identity) {
	t.Helper()
	if err := en.manager.Session(testSID).Set(context.Background(), id); err != nil {
		t.Fatal(err)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		id   *session.Identity
		want View
	}{
		{"signed out", nil, ViewAuth},
		{"general", &session.Identity{UserID: "doc1", Token: "t1"}, ViewPatients},
		{"admin", &session.Identity{UserID: "root", Token: "a1", IsAdmin: true}, ViewAdmin},
	}
	for _, tt := range tests {
		if got := Resolve(tt.id); got != tt.want {
			t.Errorf("%s: Resolve = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRoot_Redirects(t *testing.T) {
	en := newEnv(t, &fakeAPI{})

	rec := en.do(http.MethodGet, "/")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("signed out: %d %q", rec.Code, rec.Header().Get("Location"))
	}

	en.signIn(t, session.Identity{UserID: "doc1", Token: "t1", DeptCode: "ER"})
	rec = en.do(http.MethodGet, "/")
	if rec.Header().Get("Location") != "/patients" {
		t.Fatalf("general: %q", rec.Header().Get("Location"))
	}

	en.signIn(t, session.Identity{UserID: "root", Token: "a1", IsAdmin: true})
	rec = en.do(http.MethodGet, "/")
	if rec.Header().Get("Location") != "/admin" {
		t.Fatalf("admin: %q", rec.Header().Get("Location"))
	}
}

func TestRequire_GuardsViews(t *testing.T) {
	en := newEnv(t, &fakeAPI{})

	if rec := en.do(http.MethodGet, "/patients"); rec.Code != http.StatusSeeOther {
		t.Errorf("signed out /patients = %d", rec.Code)
	}

	en.signIn(t, session.Identity{UserID: "doc1", Token: "t1"})
	if rec := en.do(http.MethodGet, "/patients"); rec.Code != http.StatusOK || rec.Body.String() != "patients:doc1" {
		t.Errorf("general /patients = %d %s", rec.Code, rec.Body.String())
	}
	if rec := en.do(http.MethodGet, "/admin"); rec.Code != http.StatusSeeOther {
		t.Errorf("general /admin = %d", rec.Code)
	}
}

func TestLogout_ClearsEverything(t *testing.T) {
	en := newEnv(t, &fakeAPI{})
	en.signIn(t, session.Identity{UserID: "root", UserName: "Administrator", Token: "a1", DeptCode: "ADMIN", IsAdmin: true})

	rec := en.do(http.MethodPost, "/logout")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("logout = %d %q", rec.Code, rec.Header().Get("Location"))
	}
	fields, err := en.store.Get(context.Background(), testSID)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 0 {
		t.Errorf("fields left after logout: %v", fields)
	}
	if rec := en.do(http.MethodGet, "/"); rec.Header().Get("Location") != "/login" {
		t.Errorf("after logout / -> %q", rec.Header().Get("Location"))
	}
}

// failingDelete keeps identities but cannot remove them.
type failingDelete struct {
	*session.MemoryStore
}

func (failingDelete) Delete(context.Context, string, ...string) error {
	return errors.New("store unavailable")
}

func TestLogout_DetachesBrowserWhenClearFails(t *testing.T) {
	store := failingDelete{session.NewMemoryStore(time.Hour)}
	t.Cleanup(store.Close)
	m := session.NewManager(store, session.CookieConfig{Name: "sid"})
	if err := m.Session(testSID).Set(context.Background(), session.Identity{UserID: "doc1", Token: "t1"}); err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	e.Use(m.Middleware())
	NewHandler(&fakeAPI{}, zerolog.Nop()).RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: testSID})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("logout = %d %q", rec.Code, rec.Header().Get("Location"))
	}
	expired := false
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "sid" && ck.Value == "" && ck.MaxAge < 0 {
			expired = true
		}
	}
	if !expired {
		t.Errorf("session cookie not expired: %v", rec.Result().Cookies())
	}
}

func TestLogout_WhenSignedOut(t *testing.T) {
	en := newEnv(t, &fakeAPI{})
	if rec := en.do(http.MethodPost, "/logout"); rec.Code != http.StatusSeeOther {
		t.Errorf("logout = %d", rec.Code)
	}
}

func TestValidateSession(t *testing.T) {
	api := &fakeAPI{out: json.RawMessage(`{"valid":true,"userId":"doc1"}`)}
	en := newEnv(t, api)
	en.signIn(t, session.Identity{UserID: "doc1", Token: "t1"})

	rec := en.do(http.MethodGet, "/session/validate")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"userId":"doc1"`) {
		t.Fatalf("validate = %d %s", rec.Code, rec.Body.String())
	}
	if api.token != "t1" {
		t.Errorf("token = %q", api.token)
	}
}

func TestValidateSession_BackendRejects(t *testing.T) {
	api := &fakeAPI{err: &backend.APIError{StatusCode: http.StatusUnauthorized, Message: "token expired"}}
	en := newEnv(t, api)
	en.signIn(t, session.Identity{UserID: "doc1", Token: "t1"})

	rec := en.do(http.MethodGet, "/session/validate")
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "token expired") {
		t.Errorf("validate = %d %s", rec.Code, rec.Body.String())
	}
}

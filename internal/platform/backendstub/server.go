// Package backendstub is an in-process stand-in for the hospital API, used
// for local development (staff-portal mock-backend) and integration tests.
package backendstub

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/backend"
)

const (
	issuer    = "staff-portal/mock-backend"
	claimsKey = "mock_claims"
)

var residentNumberRe = regexp.MustCompile(`^\d{13}$`)

// Claims are carried by the bearer tokens the mock backend issues.
type Claims struct {
	jwt.RegisteredClaims
	Admin    bool   `json:"admin"`
	DeptCode string `json:"dept_code,omitempty"`
}

// Config configures a Server.
type Config struct {
	SigningKey    []byte
	TokenTTL      time.Duration
	ViewerBaseURL string
	Fixtures      Fixtures
}

// DefaultConfig returns a config with the development fixtures.
func DefaultConfig() Config {
	return Config{
		SigningKey:    []byte("mock-backend-signing-key"),
		TokenTTL:      8 * time.Hour,
		ViewerBaseURL: "http://localhost:8081/viewer",
		Fixtures:      DefaultFixtures(),
	}
}

// Server serves the hospital API contract from fixtures. Settings updates
// are kept in memory for the life of the process.
type Server struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	settings backend.AdminSettings
	tests    int
}

// New creates a mock backend.
func New(cfg Config, logger zerolog.Logger) *Server {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 8 * time.Hour
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		settings: cfg.Fixtures.Settings,
	}
}

// RegisterRoutes mounts the API under g (conventionally /api).
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.POST("/auth/login", s.login)
	g.POST("/admin/login", s.adminLogin)

	user := s.requireToken(false)
	g.POST("/auth/validate", s.validate, user)
	g.GET("/auth/departments", s.departments, user)
	g.GET("/patients", s.patients, user)
	g.POST("/webviewer/open", s.openViewer, user)

	admin := s.requireToken(true)
	g.GET("/admin/settings", s.getSettings, admin)
	g.POST("/admin/settings/:field", s.updateSetting, admin)
	g.POST("/admin/test-patient", s.testPatient, admin)
}

// RegisterViewer mounts a placeholder page at the viewer base path so issued
// viewer URLs resolve during development.
func (s *Server) RegisterViewer(e *echo.Echo, path string) {
	e.GET(path, func(c echo.Context) error {
		return c.HTML(http.StatusOK, fmt.Sprintf(
			"<!doctype html><title>Web viewer</title><p>Viewer for patient %s</p>",
			html.EscapeString(c.QueryParam("patientId"))))
	})
}

// Settings returns the current settings.
func (s *Server) Settings() backend.AdminSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// TestRequests returns how many test-patient requests were accepted.
func (s *Server) TestRequests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tests
}

// IssueToken signs a bearer token for the user.
func (s *Server) IssueToken(u User) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
		Admin:    u.Admin,
		DeptCode: u.DeptCode,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
}

// ParseToken verifies a bearer token issued by IssueToken.
func (s *Server) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *Server) requireToken(adminOnly bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				return fail(c, http.StatusUnauthorized, "missing bearer token")
			}
			claims, err := s.ParseToken(raw)
			if err != nil {
				s.logger.Debug().Err(err).Msg("mock backend rejected token")
				return fail(c, http.StatusUnauthorized, "invalid or expired token")
			}
			if adminOnly && !claims.Admin {
				return fail(c, http.StatusForbidden, "administrator privileges required")
			}
			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

func claimsFrom(c echo.Context) *Claims {
	cl, _ := c.Get(claimsKey).(*Claims)
	return cl
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

type loginBody struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

func (s *Server) login(c echo.Context) error {
	var body loginBody
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	u, ok := s.cfg.Fixtures.user(strings.TrimSpace(body.UserID))
	if !ok {
		return fail(c, http.StatusUnauthorized, "unknown user id")
	}

	if u.Admin {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"requirePassword": true,
			"isAdmin":         true,
			"userId":          u.ID,
		})
	}

	tok, err := s.IssueToken(u)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "token issue failed")
	}
	return c.JSON(http.StatusOK, backend.LoginResponse{
		Token: tok,
		User:  &backend.LoginUser{UserID: u.ID, UserName: u.Name, DeptCode: u.DeptCode},
	})
}

func (s *Server) adminLogin(c echo.Context) error {
	var body loginBody
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	u, ok := s.cfg.Fixtures.user(strings.TrimSpace(body.UserID))
	if !ok || !u.Admin || u.Password != body.Password {
		return fail(c, http.StatusUnauthorized, "invalid administrator credentials")
	}

	tok, err := s.IssueToken(u)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "token issue failed")
	}
	return c.JSON(http.StatusOK, backend.AdminLoginResponse{
		UserID: u.ID,
		User:   &backend.LoginUser{UserName: u.Name, DeptCode: u.DeptCode},
		Token:  tok,
	})
}

func (s *Server) validate(c echo.Context) error {
	cl := claimsFrom(c)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"valid":     true,
		"userId":    cl.Subject,
		"isAdmin":   cl.Admin,
		"expiresAt": cl.ExpiresAt.Time.UTC().Format(time.RFC3339),
	})
}

func (s *Server) departments(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cfg.Fixtures.Departments)
}

// patients lists patients with the requested review flag. General users see
// their own department; administrators see everyone.
func (s *Server) patients(c echo.Context) error {
	flag, err := backend.ParseReviewFlag(c.QueryParam("clncCnfrmFlag"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "clncCnfrmFlag must be 0, 1 or 2")
	}
	cl := claimsFrom(c)

	out := make([]backend.PatientInfo, 0)
	for _, p := range s.cfg.Fixtures.Patients {
		if p.ClncCnfrmFlag != flag {
			continue
		}
		if !cl.Admin && cl.DeptCode != "" && p.DeptCode != cl.DeptCode {
			continue
		}
		out = append(out, p)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Settings())
}

func (s *Server) updateSetting(c echo.Context) error {
	field, ok := backend.LookupSettingField(c.Param("field"))
	if !ok {
		return fail(c, http.StatusNotFound, "unknown setting")
	}
	var body map[string]string
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	value, ok := body[field.RequestField]
	if !ok || strings.TrimSpace(value) == "" {
		return fail(c, http.StatusBadRequest, field.RequestField+" is required")
	}

	s.mu.Lock()
	s.settings.Set(field.Key, value)
	s.mu.Unlock()

	s.logger.Info().Str("field", field.Key).Str("by", claimsFrom(c).Subject).Msg("mock backend setting updated")
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) testPatient(c echo.Context) error {
	var body backend.TestPatientRequest
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if !residentNumberRe.MatchString(body.ResidentNumber) {
		return fail(c, http.StatusBadRequest, "residentNumber must be 13 digits")
	}

	s.mu.Lock()
	s.tests++
	n := s.tests
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"result":    "ok",
		"requestNo": n,
		"userId":    body.UserID,
		"birthDate": body.ResidentNumber[:6],
	})
}

func (s *Server) openViewer(c echo.Context) error {
	var body backend.WebViewerRequest
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if err := checkViewerRequest(body); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	q := url.Values{}
	q.Set("session", uuid.NewString())
	q.Set("patientId", body.PatientID)
	q.Set("deptCode", body.DeptCode)
	return c.JSON(http.StatusOK, map[string]string{
		"webViewerUrl": s.cfg.ViewerBaseURL + "?" + q.Encode(),
	})
}

func checkViewerRequest(r backend.WebViewerRequest) error {
	switch {
	case r.PatientID == "":
		return errors.New("patientId is required")
	case r.ThirdPartyUserID == "":
		return errors.New("thirdPartyUserId is required")
	case r.ResidentNumber != "" && !residentNumberRe.MatchString(r.ResidentNumber):
		return errors.New("residentNumber must be 13 digits")
	}
	return nil
}

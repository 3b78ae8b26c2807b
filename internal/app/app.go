// Package app assembles the staff portal: session backend, backend client,
// middleware chain and every view's routes.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/config"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/domain/admin"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/domain/auth"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/domain/patient"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/domain/portal"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/domain/viewer"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/backend"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/db"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/middleware"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/session"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/validate"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/web"
)

const purgeInterval = 5 * time.Minute

// Sessions is the opened session backend.
type Sessions struct {
	Store session.Store
	// Pool is set for the postgres backend only.
	Pool *pgxpool.Pool

	closers []func()
}

// Close stops background work and releases connections.
func (s *Sessions) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// OpenSessions connects the session backend selected by SESSION_BACKEND.
func OpenSessions(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Sessions, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		store, err := session.NewRedisStoreFromURL(cfg.RedisURL, cfg.SessionIdleTTL)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return &Sessions{Store: store, closers: []func(){func() { store.Close() }}}, nil

	case config.SessionBackendPostgres:
		pool, err := db.OpenSessionDB(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, logger)
		if err != nil {
			return nil, err
		}
		store := session.NewPGStore(pool, cfg.SessionIdleTTL)
		purgeCtx, cancel := context.WithCancel(context.Background())
		go store.RunPurge(purgeCtx, purgeInterval, logger)
		return &Sessions{Store: store, Pool: pool, closers: []func(){pool.Close, cancel}}, nil

	default:
		store := session.NewMemoryStore(cfg.SessionIdleTTL)
		return &Sessions{Store: store, closers: []func(){store.Close}}, nil
	}
}

// New builds the portal server on top of an opened session backend.
func New(cfg *config.Config, sessions *Sessions, logger zerolog.Logger) (*echo.Echo, error) {
	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, err
	}
	v := validate.New()
	client := backend.NewClient(cfg.BackendURL, logger, backend.WithTimeout(cfg.BackendTimeout))
	manager := session.NewManager(sessions.Store, session.CookieConfig{
		Name:   cfg.SessionCookieName,
		Secure: cfg.SessionCookieSecure || cfg.TLSEnabled,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.Validator = v

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{HSTS: cfg.TLSEnabled}))
	e.Use(middleware.BodyLimit("64K"))
	e.Use(manager.Middleware())
	e.Use(echomw.CSRFWithConfig(echomw.CSRFConfig{
		Skipper:        skipAssets,
		TokenLookup:    "form:_csrf,header:X-CSRF-Token",
		ContextKey:     web.CSRFContextKey,
		CookieName:     "portal_csrf",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   cfg.SessionCookieSecure || cfg.TLSEnabled,
		CookieSameSite: http.SameSiteLaxMode,
	}))

	// Views
	login := e.Group("/login", middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.LoginRateLimitRPS,
		BurstSize:         cfg.LoginRateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}))
	flow := auth.NewFlow(client, auth.NewChallengeSealer([]byte(cfg.ChallengeSecret)), v, logger)
	auth.NewHandler(flow, logger).RegisterRoutes(login)

	portal.NewHandler(client, logger).RegisterRoutes(e)

	opener := viewer.NewOpener(client, viewer.Defaults{
		InstitutionType: cfg.ViewerInstitutionType,
		DevMode:         cfg.ViewerDevMode,
	}, logger)
	patient.NewHandler(patient.NewService(client), opener, logger).RegisterRoutes(e)
	admin.NewHandler(admin.NewService(client, v, logger), opener, logger).RegisterRoutes(e)

	web.RegisterStatic(e)

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/sessions", db.HealthHandler(cfg.SessionBackend, sessions.Store, sessions.Pool))

	return e, nil
}

func skipAssets(c echo.Context) bool {
	p := c.Request().URL.Path
	return strings.HasPrefix(p, "/static/") || strings.HasPrefix(p, "/health")
}

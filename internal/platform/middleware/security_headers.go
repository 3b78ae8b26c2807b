package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeadersConfig controls SecurityHeaders.
type SecurityHeadersConfig struct {
	// HSTS adds Strict-Transport-Security. Only set it when served over TLS.
	HSTS bool
}

// portalCSP allows the portal's own scripts and styles only. form-action is
// left open because the viewer form is redirected to the external viewer.
const portalCSP = "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self' data:; object-src 'none'; base-uri 'self'; frame-ancestors 'none'"

// SecurityHeaders sets the response headers for pages that show patient data.
func SecurityHeaders(cfg SecurityHeadersConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")
			h.Set("Content-Security-Policy", portalCSP)
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Cache-Control", "no-store")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			return next(c)
		}
	}
}

package middleware

import (
	"github.com/labstack/echo/v4"
)

const defaultCSP = "default-src 'none'; frame-ancestors 'none'"

type SecurityHeadersConfig struct {
	// HSTS adds Strict-Transport-Security. Only set it when serving TLS.
	HSTS bool
	// RouteCSP replaces the default Content-Security-Policy for the given
	// route paths, e.g. an HTML docs page that loads external scripts.
	RouteCSP map[string]string
}

// SecurityHeaders sets response headers for a JSON API that returns
// patient data. Responses are never cacheable.
func SecurityHeaders(cfg SecurityHeadersConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")

			csp, ok := cfg.RouteCSP[c.Path()]
			if !ok {
				csp = defaultCSP
			}
			h.Set("Content-Security-Policy", csp)
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			return next(c)
		}
	}
}

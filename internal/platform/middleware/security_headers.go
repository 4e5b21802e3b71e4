package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CacheRule gives GET responses under Path a Cache-Control value. With
// Exact set only Path itself matches, otherwise any sub-path does too.
type CacheRule struct {
	Path  string
	Exact bool
	Value string
}

// SecurityConfig configures SecurityHeaders.
type SecurityConfig struct {
	// HSTS is left off in development, where the server speaks plain HTTP.
	HSTS       bool
	CacheRules []CacheRule
}

// DefaultCacheRules lets browsers briefly reuse the service catalog and the
// measure list. Appointments, payments and reports are never cached since
// balances move with every payment.
func DefaultCacheRules() []CacheRule {
	return []CacheRule{
		{Path: "/api/v1/services", Value: "private, max-age=60"},
		{Path: "/api/v1/reports/measures", Exact: true, Value: "private, max-age=3600"},
	}
}

// SecurityHeaders sets the response headers every patient and billing
// response carries, plus a per-route Cache-Control.
func SecurityHeaders(cfg SecurityConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			h.Set("Cache-Control", cacheControl(cfg.CacheRules, c.Request()))
			if h.Get("Cache-Control") != "no-store" {
				// Responses are scoped to the caller's professional.
				h.Add("Vary", "Authorization")
			}
			return next(c)
		}
	}
}

func cacheControl(rules []CacheRule, r *http.Request) string {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return "no-store"
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	for _, rule := range rules {
		if path == rule.Path || (!rule.Exact && strings.HasPrefix(path, rule.Path+"/")) {
			return rule.Value
		}
	}
	return "no-store"
}

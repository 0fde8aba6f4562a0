package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Limiter decides whether a caller identified by key may proceed.
type Limiter interface {
	Allow(key string) bool
}

// RateLimit rejects callers over their budget with 429. Only paths under prefix
// are limited; callers are keyed by real IP.
func RateLimit(l Limiter, prefix string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(c.Request().URL.Path, prefix) {
				return next(c)
			}
			if l != nil && !l.Allow(c.RealIP()) {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
					"data": []map[string]string{{
						"code":    "ERR_RATE_LIMITED",
						"message": "too many requests, retry later",
					}},
				})
			}
			return next(c)
		}
	}
}

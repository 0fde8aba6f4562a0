package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "StratLab/pkg/logger"
)

// RequestLogging logs one line per request at debug level.
// 5xx responses and requests slower than slow are logged at warn.
func RequestLogging(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			took := time.Since(start)
			status := c.Response().Status
			fields := []applogger.Field{
				applogger.String("method", c.Request().Method),
				applogger.String("route", c.Path()),
				applogger.Int("status", status),
				applogger.Duration("duration_ms", took),
				applogger.String("remote", c.RealIP()),
			}
			switch {
			case status >= 500:
				l.Warn("http request failed", fields...)
			case slow > 0 && took >= slow:
				l.Warn("http request slow", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}

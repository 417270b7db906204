package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger writes one event per request. Handler errors are logged at error
// level with the status echo will send for them.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)

			rid := GetRequestID(c)
			status := c.Response().Status
			evt := logger.Info()
			if err != nil {
				status = statusOf(err, status)
				evt = logger.Error().Err(err)
				if he, ok := err.(*echo.HTTPError); ok && he.Internal != nil {
					evt = evt.AnErr("cause", he.Internal)
				}
			}

			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}

// statusOf returns the status echo's error handler will write for err.
func statusOf(err error, committed int) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	if committed >= 400 {
		return committed
	}
	return 500
}

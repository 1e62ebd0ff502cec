package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/telemed/telemed/internal/platform/auth"
)

// Logger emits one structured line per request. The user id appears only on
// requests that passed authentication, which happens downstream of this
// middleware.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}

			rid, _ := c.Get(requestIDKey).(string)
			evt = evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Int64("bytes_out", res.Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())

			if identity := auth.IdentityFromContext(req.Context()); identity != nil {
				evt = evt.Str("user_id", identity.UserID.String())
			}

			evt.Msg("request")
			return err
		}
	}
}

package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader is the header carrying the request correlation id.
const RequestIDHeader = "X-Request-ID"

// requestIDKey is the echo context key under which the id is stored; the
// logger and recovery middlewares read it from there.
const requestIDKey = "request_id"

// RequestID assigns a correlation id to every request, preserving one sent by
// the client, and echoes it back in the response.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.New().String()
			}

			c.Set(requestIDKey, rid)
			c.Response().Header().Set(RequestIDHeader, rid)

			return next(c)
		}
	}
}

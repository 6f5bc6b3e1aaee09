package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader is the header used to propagate request IDs.
const RequestIDHeader = "X-Request-ID"

// requestIDContextKey is where RequestID stores the id on the echo context.
const requestIDContextKey = "request_id"

// RequestIDFromContext returns the request id attached by RequestID, or ""
// when the middleware did not run.
func RequestIDFromContext(c echo.Context) string {
	rid, _ := c.Get(requestIDContextKey).(string)
	return rid
}

// RequestID attaches a request ID to each request, honoring an ID supplied
// by the client, and echoes it on the response.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Set(requestIDContextKey, rid)
			c.Response().Header().Set(RequestIDHeader, rid)
			return next(c)
		}
	}
}

package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Kode-Rex/weave/pkg/context"
)

const (
	// HeaderUserID carries the caller's Slack or mesh user id.
	HeaderUserID = "X-User-ID"
	// HeaderUserEmail carries the caller's email for identity resolution.
	HeaderUserEmail = "X-User-Email"
)

// Context seeds the request context with a correlation id and the caller
// identity headers. Handlers that resolve identity themselves, like the
// context retrieval route, overwrite the user values after authentication.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			ctx := context.SetRequestID(req.Context(), requestID(c))
			ctx = context.SetUserID(ctx, req.Header.Get(HeaderUserID))
			ctx = context.SetUserEmail(ctx, req.Header.Get(HeaderUserEmail))
			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}

// requestID reuses the caller's X-Request-ID when present, minting one
// otherwise, and reflects the id on the response.
func requestID(c echo.Context) string {
	id := c.Request().Header.Get(echo.HeaderXRequestID)
	if id == "" {
		id = uuid.New().String()
	}
	c.Response().Header().Set(echo.HeaderXRequestID, id)
	return id
}

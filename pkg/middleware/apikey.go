package middleware

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Kode-Rex/weave/pkg/tracing"
)

// APIKey guards a route group with a shared x-api-key header check.
func APIKey(logger ectologger.Logger, key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ctx, span := tracing.StartSpan(ctx, "middleware.APIKey")
			defer span.End()

			provided := c.Request().Header.Get("x-api-key")
			if provided == "" {
				logger.WithContext(ctx).Warn("request is missing api key")
				return echo.NewHTTPError(http.StatusUnauthorized, "missing API key")
			}
			if provided != key {
				logger.WithContext(ctx).Warn("request api key is invalid")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
			}

			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

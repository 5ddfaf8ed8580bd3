package middleware

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Kode-Rex/weave/pkg/context"
)

// Logger emits one structured entry per request after the handler chain
// finishes. Correlation and identity fields come off the request context, so
// Context must be registered before it.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()

			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			ctx := req.Context()
			fields := context.Fields(ctx)
			fields["method"] = req.Method
			fields["uri"] = req.RequestURI
			fields["route"] = c.Path()
			fields["status"] = res.Status
			fields["remote_ip"] = c.RealIP()
			fields["host"] = req.Host
			fields["referer"] = req.Referer()
			fields["user_agent"] = req.UserAgent()
			fields["request_size"] = req.Header.Get(echo.HeaderContentLength)
			fields["response_size"] = res.Size
			fields["response_time"] = elapsed

			logger.WithContext(ctx).WithFields(fields).Info("Request")

			return nil
		}
	}
}

package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Kode-Rex/weave/pkg/context"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

// ErrorResponse is the JSON body returned for every failed request. The
// request and trace ids give callers something support can look up.
type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// Error converts handler errors into JSON responses. httperror values keep
// their status code and meta; anything unrecognized becomes a 500.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		logger.WithContext(ctx).WithFields(context.Fields(ctx)).WithError(err).Error("Request failed")

		if c.Response().Committed {
			return
		}

		code, resp := classifyError(err)
		resp.RequestID = context.GetRequestID(ctx)
		resp.TraceID = tracing.GetTraceID(ctx)

		_ = c.JSON(code, resp)
	}
}

// classifyError maps an error to a status code and body. echo's own HTTPError
// is recognized first so router 404s keep their code; httperror values then
// override both code and message and carry their meta along.
func classifyError(err error) (int, ErrorResponse) {
	code := http.StatusInternalServerError
	resp := ErrorResponse{
		Message: "Internal Server Error",
		Meta:    map[string]any{},
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		code = echoErr.Code
		if msg, ok := echoErr.Message.(string); ok {
			resp.Message = msg
		}
	}

	if httperror.IsHTTPError(err) {
		httpErr := httperror.ToHTTPError(err)
		code = httperror.GetStatusCode(err)
		resp.Message = httpErr.Error()
		resp.Meta = httpErr.Meta
	}

	return code, resp
}

package slackuser

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/Kode-Rex/weave/pkg/middleware"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func putUser(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(testLogger())
	Register(e.Group("/slack-users"))

	req := httptest.NewRequest(http.MethodPut, "/slack-users", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestUpsertRejectsMalformedBody(t *testing.T) {
	rec := putUser(t, "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpsertRequiresID(t *testing.T) {
	rec := putUser(t, `{"name":"dana"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ID")
}

func TestUpsertRejectsBadEmail(t *testing.T) {
	rec := putUser(t, `{"id":"U1","email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email")
}

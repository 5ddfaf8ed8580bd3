package recordsearch

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/Kode-Rex/weave/pkg/middleware"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func searchRequest(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(testLogger())
	Register(e.Group("/search"))

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSearchRequiresQuery(t *testing.T) {
	rec := searchRequest(t, "/search/slack:user")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "q is required")
}

func TestSearchEmptyQueryParam(t *testing.T) {
	rec := searchRequest(t, "/search/slack:user?q=")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

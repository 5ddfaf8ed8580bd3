package contextapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kode-Rex/weave/pkg/middleware"
	"github.com/Kode-Rex/weave/pkg/retrieval"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func postContext(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(testLogger())
	Register(e.Group("/context"))

	req := httptest.NewRequest(http.MethodPost, "/context", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGetContextRejectsMalformedBody(t *testing.T) {
	rec := postContext(t, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetContextRequiresAuthToken(t *testing.T) {
	rec := postContext(t, `{"token_type":"Slack","prompt":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "AuthToken")
}

func TestGetContextRequiresPrompt(t *testing.T) {
	rec := postContext(t, `{"auth_token":"slack:U1","token_type":"Slack"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Prompt")
}

func TestGetContextRequiresTokenType(t *testing.T) {
	rec := postContext(t, `{"auth_token":"slack:U1","prompt":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContextItemsFromDocuments(t *testing.T) {
	result := &retrieval.Result{Documents: []retrieval.DocumentResult{
		{ID: "d1", Content: "the roadmap", Source: "google_drive", Score: 2.5},
		{ID: "s1", Content: "a thread", Source: "slack", Score: 1.0},
	}}

	items := contextItems(result)
	require.Len(t, items, 2)

	assert.Equal(t, "the roadmap", items[0].Content)
	assert.Equal(t, "system", items[0].Role)
	assert.Equal(t, "document", items[0].Metadata["source"])
	assert.Equal(t, "d1", items[0].Metadata["document_id"])
	assert.Equal(t, 2.5, items[0].Metadata["relevance_score"])
}

func TestContextItemsDefaultMessage(t *testing.T) {
	items := contextItems(&retrieval.Result{})
	require.Len(t, items, 1)

	assert.Equal(t, DefaultContextMessage, items[0].Content)
	assert.Equal(t, "system", items[0].Role)
	assert.Equal(t, "default", items[0].Metadata["source"])
}

func TestResponseMetadata(t *testing.T) {
	identity := &retrieval.Identity{ID: "U1", Email: "dana@acme.io", Name: "Dana", TokenType: retrieval.TokenTypeSlack}
	result := &retrieval.Result{
		Documents: []retrieval.DocumentResult{
			{ID: "d1", Content: "doc", Source: "google_drive"},
			{ID: "s1", Content: "thread", Source: "slack"},
			{ID: "d2", Content: "doc two", Source: "google_drive"},
		},
		RetrievalTimeMS: 42,
		CacheHit:        true,
	}

	meta := responseMetadata(identity, "Slack", result)

	user := meta["user"].(map[string]any)
	assert.Equal(t, "U1", user["id"])
	assert.Equal(t, "dana@acme.io", user["email"])
	assert.Equal(t, "Dana", user["name"])

	assert.Equal(t, "Slack", meta["token_type"])
	assert.NotEmpty(t, meta["timestamp"])
	assert.Equal(t, []string{"google_drive", "slack"}, meta["context_sources"])

	rm := meta["retrieval_metadata"].(map[string]any)
	assert.Equal(t, true, rm["cache_hit"])
	assert.Equal(t, int64(42), rm["retrieval_time_ms"])
}

package hook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		TokenType:  "Slack",
		Timeout:    time.Second,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, testLogger())
}

func contextItemsResponse(items ...ContextItem) string {
	raw, _ := json.Marshal(ContextResponse{ContextItems: items})
	return string(raw)
}

func TestGetContextSuccess(t *testing.T) {
	var got ContextRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/context", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(contextItemsResponse(ContextItem{
			Content:  "the roadmap",
			Role:     "system",
			Metadata: map[string]any{"source": "document"},
		})))
	}))
	defer srv.Close()

	response, err := testClient(srv.URL).GetContext(context.Background(), "slack:U1", "what is the roadmap", "user: hi...")
	require.NoError(t, err)

	assert.Equal(t, "slack:U1", got.AuthToken)
	assert.Equal(t, "Slack", got.TokenType)
	assert.Equal(t, "what is the roadmap", got.Prompt)
	assert.Equal(t, "user: hi...", got.HistorySummary)

	require.Len(t, response.ContextItems, 1)
	assert.Equal(t, "the roadmap", response.ContextItems[0].Content)
}

func TestGetContextRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(contextItemsResponse()))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).GetContext(context.Background(), "slack:U1", "prompt", "")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestGetContextDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).GetContext(context.Background(), "slack:U1", "prompt", "")
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "4xx responses are not retried")
}

func TestGetContextExhaustsRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).GetContext(context.Background(), "slack:U1", "prompt", "")
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestGetContextRequiresFields(t *testing.T) {
	client := testClient("http://unused")

	_, err := client.GetContext(context.Background(), "", "prompt", "")
	assert.Error(t, err, "auth token is required")

	_, err = client.GetContext(context.Background(), "token", "", "")
	assert.Error(t, err, "prompt is required")
}

func TestGetContextMalformedResponse(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).GetContext(context.Background(), "slack:U1", "prompt", "")
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "a bad body from a healthy endpoint is not retried")
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://weave:8080", APIKey: "k"}, testLogger())

	assert.Equal(t, DefaultTimeout, client.config.Timeout)
	assert.Equal(t, DefaultMaxRetries, client.config.MaxRetries)
	assert.Equal(t, DefaultRetryDelay, client.config.RetryDelay)
}

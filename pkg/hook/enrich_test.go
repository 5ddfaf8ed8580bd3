package hook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextServer(t *testing.T, got *ContextRequest, items ...ContextItem) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Write([]byte(contextItemsResponse(items...)))
	}))
}

func TestEnrichCreatesSystemMessage(t *testing.T) {
	srv := contextServer(t, nil,
		ContextItem{Content: "the roadmap doc", Role: "system", Metadata: map[string]any{"source": "document"}},
	)
	defer srv.Close()

	messages := []Message{{Role: "user", Content: "what is the roadmap"}}
	enriched := testClient(srv.URL).Enrich(context.Background(), "slack:U1", messages)

	require.Len(t, enriched, 2)
	assert.Equal(t, "system", enriched[0].Role)
	assert.Contains(t, enriched[0].Content, "You are a helpful assistant.")
	assert.Contains(t, enriched[0].Content, "[document]\nthe roadmap doc")
	assert.Equal(t, messages[0], enriched[1], "the user message is untouched")
}

func TestEnrichAppendsToExistingSystemMessage(t *testing.T) {
	srv := contextServer(t, nil,
		ContextItem{Content: "doc one", Metadata: map[string]any{"source": "google_drive"}},
		ContextItem{Content: "doc two", Metadata: map[string]any{"source": "slack"}},
	)
	defer srv.Close()

	messages := []Message{
		{Role: "system", Content: "Answer briefly."},
		{Role: "user", Content: "what is the roadmap"},
	}
	enriched := testClient(srv.URL).Enrich(context.Background(), "slack:U1", messages)

	require.Len(t, enriched, 2)
	assert.True(t, strings.HasPrefix(enriched[0].Content, "Answer briefly."), "existing instructions survive")
	assert.Contains(t, enriched[0].Content, "[google_drive]\ndoc one")
	assert.Contains(t, enriched[0].Content, "[slack]\ndoc two")

	assert.Equal(t, "Answer briefly.", messages[0].Content, "the input slice is not mutated")
}

func TestEnrichSendsPromptAndHistory(t *testing.T) {
	var got ContextRequest
	srv := contextServer(t, &got, ContextItem{Content: "doc"})
	defer srv.Close()

	messages := []Message{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "second question"},
	}
	testClient(srv.URL).Enrich(context.Background(), "slack:U1", messages)

	assert.Equal(t, "second question", got.Prompt, "the latest user message is the prompt")
	assert.Contains(t, got.HistorySummary, "user: first question...")
	assert.Contains(t, got.HistorySummary, "assistant: first answer...")
	assert.NotContains(t, got.HistorySummary, "second question")
}

func TestEnrichFailureLeavesMessagesUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	messages := []Message{{Role: "user", Content: "what is the roadmap"}}
	enriched := testClient(srv.URL).Enrich(context.Background(), "slack:U1", messages)

	assert.Equal(t, messages, enriched)
}

func TestEnrichEmptyContextLeavesMessagesUntouched(t *testing.T) {
	srv := contextServer(t, nil)
	defer srv.Close()

	messages := []Message{{Role: "user", Content: "what is the roadmap"}}
	enriched := testClient(srv.URL).Enrich(context.Background(), "slack:U1", messages)

	assert.Equal(t, messages, enriched)
}

func TestEnrichWithoutUserMessages(t *testing.T) {
	client := testClient("http://unused")

	messages := []Message{{Role: "system", Content: "Answer briefly."}}
	enriched := client.Enrich(context.Background(), "slack:U1", messages)

	assert.Equal(t, messages, enriched)
}

func TestEnrichStripsByteOrderMarks(t *testing.T) {
	srv := contextServer(t, nil, ContextItem{Content: "\ufeff  padded doc  ", Metadata: map[string]any{"source": "web"}})
	defer srv.Close()

	enriched := testClient(srv.URL).Enrich(context.Background(), "slack:U1", []Message{{Role: "user", Content: "q"}})

	require.Len(t, enriched, 2)
	assert.Contains(t, enriched[0].Content, "[web]\npadded doc")
}

func TestSummarizeHistoryWindowsAndClips(t *testing.T) {
	long := strings.Repeat("x", 150)
	messages := []Message{
		{Role: "user", Content: "dropped"},
		{Role: "assistant", Content: "one"},
		{Role: "user", Content: "two"},
		{Role: "assistant", Content: long},
		{Role: "user", Content: "four"},
		{Role: "assistant", Content: "five"},
	}

	summary := SummarizeHistory(messages)

	assert.NotContains(t, summary, "dropped", "only the last five messages are kept")
	assert.Contains(t, summary, "assistant: one...")
	assert.Contains(t, summary, "assistant: "+strings.Repeat("x", 100)+"...")
	assert.NotContains(t, summary, strings.Repeat("x", 101))
}

func TestSummarizeHistorySkipsEmptyMessages(t *testing.T) {
	summary := SummarizeHistory([]Message{
		{Role: "user", Content: "   "},
		{Role: "assistant", Content: "hello"},
	})

	assert.Equal(t, "assistant: hello...", summary)
}

func TestSummarizeHistoryEmpty(t *testing.T) {
	assert.Equal(t, "", SummarizeHistory(nil))
}

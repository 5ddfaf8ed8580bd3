package hook

import (
	"context"
	"fmt"
	"strings"
)

const (
	historyWindow    = 5
	historySnippet   = 100
	contextPreamble  = "Here are some relevant documents to help answer the user's question:\n\n"
	defaultSystemMsg = "You are a helpful assistant. "
)

// Message is one chat message in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Enrich injects retrieved context into a completion request's messages. The
// latest user message becomes the retrieval prompt and earlier messages are
// summarized as history. Any failure, or an empty context, returns the
// messages unchanged.
func (c *Client) Enrich(ctx context.Context, authToken string, messages []Message) []Message {
	if len(messages) == 0 {
		c.logger.WithContext(ctx).Warn("No messages in completion request")
		return messages
	}

	promptIdx := latestUserMessage(messages)
	if promptIdx < 0 {
		c.logger.WithContext(ctx).Warn("No user messages in completion request")
		return messages
	}

	prompt := messages[promptIdx].Content
	history := SummarizeHistory(messages[:promptIdx])

	response, err := c.GetContext(ctx, authToken, prompt, history)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Context retrieval failed, passing request through")
		return messages
	}
	if len(response.ContextItems) == 0 {
		c.logger.WithContext(ctx).Debug("No context items for prompt")
		return messages
	}

	contextStr := renderContext(response.ContextItems)
	if contextStr == "" {
		return messages
	}

	enriched := make([]Message, len(messages))
	copy(enriched, messages)

	if sysIdx := firstSystemMessage(enriched); sysIdx >= 0 {
		enriched[sysIdx].Content = enriched[sysIdx].Content + "\n\n" + contextPreamble + contextStr
		return enriched
	}

	system := Message{Role: "system", Content: defaultSystemMsg + contextPreamble + contextStr}
	return append([]Message{system}, enriched...)
}

// SummarizeHistory condenses prior messages into a short transcript: the last
// five messages, each clipped to its first hundred characters.
func SummarizeHistory(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}

	recent := messages
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}

	lines := make([]string, 0, len(recent))
	for _, msg := range recent {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		if len(content) > historySnippet {
			content = content[:historySnippet]
		}
		lines = append(lines, fmt.Sprintf("%s: %s...", msg.Role, content))
	}
	return strings.Join(lines, "\n")
}

// renderContext formats context items as source-labelled blocks.
func renderContext(items []ContextItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		content := strings.TrimSpace(strings.ReplaceAll(item.Content, "\ufeff", ""))
		if content == "" {
			continue
		}
		source := "unknown"
		if s, ok := item.Metadata["source"].(string); ok && s != "" {
			source = s
		}
		parts = append(parts, fmt.Sprintf("[%s]\n%s\n", source, content))
	}
	return strings.Join(parts, "\n\n")
}

func latestUserMessage(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return i
		}
	}
	return -1
}

func firstSystemMessage(messages []Message) int {
	for i := range messages {
		if messages[i].Role == "system" {
			return i
		}
	}
	return -1
}

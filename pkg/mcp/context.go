package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Kode-Rex/weave/pkg/tracing"
)

// GetContextTool handles the get_context MCP tool.
type GetContextTool struct {
	resolver  IdentityResolver
	retriever ContextRetriever
	logger    ectologger.Logger
}

// NewGetContextTool creates a GetContextTool.
func NewGetContextTool(resolver IdentityResolver, retriever ContextRetriever, logger ectologger.Logger) *GetContextTool {
	return &GetContextTool{resolver: resolver, retriever: retriever, logger: logger}
}

// Definition returns the MCP tool definition for get_context.
func (t *GetContextTool) Definition() mcp.Tool {
	return mcp.NewTool("get_context",
		mcp.WithDescription(
			"Retrieve documents relevant to a prompt, scoped to what the authenticated "+
				"user is allowed to see. Returns source-labelled content blocks ready to "+
				"inject into a conversation.",
		),
		mcp.WithString("auth_token",
			mcp.Required(),
			mcp.Description("User auth token, for example slack:{user_id} or an email address"),
		),
		mcp.WithString("token_type",
			mcp.Required(),
			mcp.Description("Token type: Slack, Mesh, OpenWebUI or Email"),
		),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The prompt to retrieve context for"),
		),
	)
}

// Handle processes the get_context tool call.
func (t *GetContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracing.StartSpan(ctx, "mcp.GetContextTool.Handle")
	defer span.End()

	token := req.GetString("auth_token", "")
	tokenType := req.GetString("token_type", "")
	prompt := req.GetString("prompt", "")
	if token == "" || tokenType == "" || prompt == "" {
		return mcp.NewToolResultError("'auth_token', 'token_type' and 'prompt' are required"), nil
	}

	identity, err := t.resolver.Resolve(ctx, token, tokenType)
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).Warn("Identity resolution failed for context tool")
		return mcp.NewToolResultError(fmt.Sprintf("authentication failed: %v", err)), nil
	}

	result := t.retriever.GetContext(ctx, identity.Email, prompt)
	if len(result.Documents) == 0 {
		return mcp.NewToolResultText("No relevant documents found."), nil
	}

	blocks := make([]string, 0, len(result.Documents))
	for _, doc := range result.Documents {
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", doc.Source, doc.Content))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d documents (%dms):\n\n", len(result.Documents), result.RetrievalTimeMS)
	b.WriteString(strings.Join(blocks, "\n\n"))
	return mcp.NewToolResultText(b.String()), nil
}

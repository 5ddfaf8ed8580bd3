package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Kode-Rex/weave/pkg/annotations"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

// SearchRecordsTool handles the search_records MCP tool.
type SearchRecordsTool struct {
	searcher RecordSearcher
	logger   ectologger.Logger
}

// NewSearchRecordsTool creates a SearchRecordsTool.
func NewSearchRecordsTool(searcher RecordSearcher, logger ectologger.Logger) *SearchRecordsTool {
	return &SearchRecordsTool{searcher: searcher, logger: logger}
}

// Definition returns the MCP tool definition for search_records.
func (t *SearchRecordsTool) Definition() mcp.Tool {
	return mcp.NewTool("search_records",
		mcp.WithDescription(
			"Search synced records of one type by registry key, for example slack:user "+
				"or slack:channel. Matches against the type's configured text fields.",
		),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Registry key of the record type, for example slack:user"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("size",
			mcp.Description("Max results (default: 10)"),
		),
	)
}

// Handle processes the search_records tool call.
func (t *SearchRecordsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracing.StartSpan(ctx, "mcp.SearchRecordsTool.Handle")
	defer span.End()

	key := req.GetString("key", "")
	query := req.GetString("query", "")
	if key == "" || query == "" {
		return mcp.NewToolResultError("'key' and 'query' are required"), nil
	}
	size := intArg(req, "size", 10)

	result, err := t.searcher.Search(ctx, key, query, annotations.SearchOptions{Size: size})
	if err != nil {
		if errors.Is(err, annotations.ErrNotRegistered) {
			return mcp.NewToolResultError(fmt.Sprintf("unknown record type %q", key)), nil
		}
		t.logger.WithContext(ctx).WithError(err).WithField("record_type", key).Error("Record search failed")
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(result.Hits) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No %s records matched %q.", key, query)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d %s records:\n\n", result.Total, key)
	for i, hit := range result.Hits {
		doc, err := json.Marshal(hit.Source)
		if err != nil {
			doc = []byte("{}")
		}
		fmt.Fprintf(&b, "[%d] %s (score %.2f)\n    %s\n", i+1, hit.ID, hit.Score, doc)
	}
	return mcp.NewToolResultText(b.String()), nil
}

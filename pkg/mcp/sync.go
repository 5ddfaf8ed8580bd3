package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Kode-Rex/weave/pkg/annotations"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

// SyncRecordTool handles the sync_record MCP tool.
type SyncRecordTool struct {
	syncer RecordSyncer
	logger ectologger.Logger
}

// NewSyncRecordTool creates a SyncRecordTool.
func NewSyncRecordTool(syncer RecordSyncer, logger ectologger.Logger) *SyncRecordTool {
	return &SyncRecordTool{syncer: syncer, logger: logger}
}

// Definition returns the MCP tool definition for sync_record.
func (t *SyncRecordTool) Definition() mcp.Tool {
	return mcp.NewTool("sync_record",
		mcp.WithDescription(
			"Push one record into the graph and search stores by registry key and id. "+
				"Use after fixing data by hand or when a record looks stale.",
		),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Registry key of the record type, for example slack:user"),
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Record id"),
		),
	)
}

// Handle processes the sync_record tool call.
func (t *SyncRecordTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracing.StartSpan(ctx, "mcp.SyncRecordTool.Handle")
	defer span.End()

	key := req.GetString("key", "")
	id := req.GetString("id", "")
	if key == "" || id == "" {
		return mcp.NewToolResultError("'key' and 'id' are required"), nil
	}

	if err := t.syncer.SyncByID(ctx, key, id); err != nil {
		if errors.Is(err, annotations.ErrNotRegistered) {
			return mcp.NewToolResultError(fmt.Sprintf("unknown record type %q", key)), nil
		}
		if errors.Is(err, annotations.ErrRecordNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("%s %s not found", key, id)), nil
		}
		t.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"record_type": key,
			"record_id":   id,
		}).Error("Record sync failed")
		return mcp.NewToolResultError(fmt.Sprintf("sync failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Synced %s %s to all stores.", key, id)), nil
}

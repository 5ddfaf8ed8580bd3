// Package mcp exposes context retrieval and record sync as Model Context
// Protocol tools over stdio. Each tool wraps the same services the HTTP API
// uses, so agents and completion pipelines share one behavior.
package mcp

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Kode-Rex/weave/pkg/annotations"
	"github.com/Kode-Rex/weave/pkg/retrieval"
	"github.com/Kode-Rex/weave/pkg/search"
)

// IdentityResolver maps auth tokens onto caller identities. Satisfied by
// retrieval.Resolver.
type IdentityResolver interface {
	Resolve(ctx context.Context, token, tokenType string) (*retrieval.Identity, error)
}

// ContextRetriever serves permission-scoped documents for a prompt.
// Satisfied by retrieval.Service.
type ContextRetriever interface {
	GetContext(ctx context.Context, email, prompt string) *retrieval.Result
}

// RecordSearcher runs annotation-driven queries by registry key. Satisfied
// by annotations.SearchSyncer.
type RecordSearcher interface {
	Search(ctx context.Context, key, query string, opts annotations.SearchOptions) (*search.Result, error)
}

// RecordSyncer pushes one record to every configured store. Satisfied by
// annotations.Dispatcher.
type RecordSyncer interface {
	SyncByID(ctx context.Context, key, id string) error
}

// Config names the served MCP instance.
type Config struct {
	Name    string
	Version string
}

// New assembles the MCP server with the retrieval and sync tools
// registered. Run it with server.ServeStdio.
func New(cfg Config, resolver IdentityResolver, retriever ContextRetriever, searcher RecordSearcher, syncer RecordSyncer, logger ectologger.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	contextTool := NewGetContextTool(resolver, retriever, logger)
	s.AddTool(contextTool.Definition(), contextTool.Handle)

	searchTool := NewSearchRecordsTool(searcher, logger)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	syncTool := NewSyncRecordTool(syncer, logger)
	s.AddTool(syncTool.Definition(), syncTool.Handle)

	return s
}

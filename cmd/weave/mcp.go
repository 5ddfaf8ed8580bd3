package main

import (
	"context"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/Kode-Rex/weave/pkg/mcp"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP()
		},
	}
}

// runMCP wires the stores and serves the retrieval and sync tools over
// stdio. Logs go to stderr so they never corrupt the protocol stream.
func runMCP() error {
	a, closeLogs, err := newApp()
	if err != nil {
		return err
	}
	defer closeLogs()

	ctx := context.Background()
	if err := a.connectDatabase(ctx); err != nil {
		return err
	}
	defer a.closeStores(ctx)
	if err := a.connectCache(ctx); err != nil {
		return err
	}
	if err := a.connectSearch(ctx); err != nil {
		return err
	}
	if err := a.connectGraph(ctx); err != nil {
		return err
	}
	if err := a.buildCore(); err != nil {
		return err
	}

	s := mcp.New(mcp.Config{Name: "weave", Version: Version}, a.resolver, a.retriever, a.searchSyncer, a.dispatcher, a.logger)

	a.logger.Info("MCP server listening on stdio")
	return mcpserver.ServeStdio(s)
}

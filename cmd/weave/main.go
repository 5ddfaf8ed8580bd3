// Weave keeps annotated records synchronized across PostgreSQL, Neo4j and
// Elasticsearch, and serves retrieved context to completion pipelines over
// HTTP and MCP.
//
// Usage:
//
//	weave serve            # HTTP API, outbox worker and Kafka consumers
//	weave mcp              # MCP server on stdio
//	weave migrate up       # apply relational migrations
//	weave migrate down     # roll back the latest relational migration
//	weave migrate detect   # generate graph/search migration scripts
//	weave sync <key>       # bulk resync one record type
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "weave",
		Short:   "Weave - annotation-driven record sync and context retrieval",
		Version: Version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the weave version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("weave v%s\n", Version)
		},
	}
}

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentflow/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// mcpCmd serves MCP tools over stdio
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout exposing workflow
status, history, summaries and activity log queries as tools.

Register it with an MCP client, for example:
  {"command": "agentflow", "args": ["mcp"]}`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	wf, acts := a.readers(ctx)
	cfg := mcp.DefaultConfig()
	cfg.Version = version
	cfg.Logger = a.logger
	server, err := mcp.NewServer(cfg, wf, acts, a.scrubber)
	if err != nil {
		return err
	}
	defer server.Close()

	return server.Run(ctx)
}

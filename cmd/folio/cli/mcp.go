package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	fmcp "github.com/foliodesk/folio/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for operator tools",
		Long: `Start a Model Context Protocol (MCP) server that exposes the project catalog
and the contact inbox as tools. Supports stdio (default) and HTTP transports.

Inserts made through the public site are not pushed to MCP clients; the tools
read the store on every call.`,
		Example: `  folio mcp                              # stdio mode
  folio mcp --transport http --port 3001  # streamable HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(transport string, port int) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	logger := newLogger(s)
	ctx := context.Background()

	st, err := openStore(ctx, s, nil, false, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	objects, _, err := openObjects(ctx, s, logger)
	if err != nil {
		return err
	}

	mcpSrv := fmcp.NewMCPServer(fmcp.Deps{
		Projects: st.Projects(),
		Messages: st.Messages(),
		Sweeper:  newSweeper(s, objects, st, logger),
	}, versionString(), logger)

	switch transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		return mcpSrv.ServeHTTP(fmt.Sprintf(":%d", port))
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}

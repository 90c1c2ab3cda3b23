package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/standardbeagle/devmenu/internal/tools"
)

var mcpTimeout time.Duration

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server over stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout.

The server forwards tool calls to a running "devmenu serve" over the control
socket. It connects lazily, so it may start before the coordinator.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().DurationVar(&mcpTimeout, "timeout", 15*time.Second, "Control socket round-trip timeout")
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cmd, false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		logger.Warn("using default config", zap.Error(err))
		cfg = nil
	}

	dt := tools.NewDaemonTools(socketPath(cmd, cfg), mcpTimeout)
	defer dt.Close()

	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    appName,
			Version: appVersion,
		},
		&mcp.ServerOptions{
			HasTools: true,
			Instructions: `Developer menu coordinator for apps running in a devmenu host.

Talks to "devmenu serve" over its control socket:
- The menu overlay belongs to one screen at a time
- Items reflect the screen's live development settings
- Selecting an item runs its action and closes the menu

Available tools:
- devmenu_status: Overlay state, owning screen and registered screens
- devmenu_menu: Show, hide or toggle the menu
- devmenu_items: List the current screen's menu items
- devmenu_select: Run a menu item by key
- devmenu_screen: Create, focus, destroy, list screens or change their settings
- devmenu_shake: Toggle the menu as a shake gesture does`,
		},
	)
	tools.RegisterDaemonTools(server, dt)

	logger.Info("starting MCP server", zap.String("version", appVersion))

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JackyZhang8/locknote/internal/logging"
	"github.com/JackyZhang8/locknote/internal/mcp"
	"github.com/JackyZhang8/locknote/pkg/notes"
	"github.com/JackyZhang8/locknote/pkg/session"
	"github.com/JackyZhang8/locknote/pkg/vault"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI assistant integration",
	Long: `Start an MCP server over stdio that gives AI assistants access to notes.

Available tools:
  - note_list:     List notes with metadata
  - note_get:      Read one note (requires policy)
  - note_create:   Create a note (requires policy)
  - notebook_list: List notebooks
  - tag_list:      List tags

Authentication:
  Set LOCKNOTE_PASSWORD before starting the server. The password is read
  once and immediately cleared from the environment. The vault locks after
  the configured idle time and the server must then be restarted.

Policy:
  Create <data-dir>/mcp-policy.yaml (mode 0600) to allow note_get and
  note_create, to expose note content, and to hide notebooks or tags.
  Without a policy file only the listing tools are available.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer()
	},
}

func runMCPServer() error {
	// stdout carries the protocol; logs go to stderr only.
	serverLog, err := logging.NewWithSink(cfg.Log.Level, "json", os.Stderr)
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(&mcp.ServerOptions{
		VaultPath: cfg.DataDir,
		Logger:    serverLog,
		VaultOpts: []vault.Option{vault.WithKDFParams(cfg.KDFParams())},
		NotesOpts: []notes.Option{
			notes.WithMaxVersions(cfg.History.MaxVersions),
			notes.WithMinVersionInterval(cfg.History.MinInterval),
		},
		SessionOpts: []session.Option{
			session.WithTick(cfg.Session.Tick),
			session.WithSleepGap(cfg.Session.SleepGap),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

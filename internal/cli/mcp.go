package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	sessionmcp "github.com/ppiankov/sessionwatch/internal/mcp"
	"github.com/ppiankov/sessionwatch/internal/report"
)

var mcpLog string

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpLog, "log", "", "Path to decision log CSV (overrides log.path)")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs sessionwatch as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes tools: sessionwatch_classify, sessionwatch_summary.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	logPath := a.cfg.Log.Path
	if cmd.Flags().Changed("log") {
		logPath = mcpLog
	}

	svc, err := a.service(logPath)
	if err != nil {
		return err
	}
	agg := report.NewAggregator(logPath, a.cfg.Report.RecentLimit, a.logger)
	srv := sessionmcp.New(svc, agg, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(os.Stderr, "sessionwatch MCP server running on stdio")
	fmt.Fprintf(os.Stderr, "Decision log: %s\n", logPath)
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}

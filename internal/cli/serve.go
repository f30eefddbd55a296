package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/sessionwatch/internal/server"
)

var (
	serveAddr      string
	serveGRPCAddr  string
	serveLog       string
	serveScaler    string
	serveScorer    string
	serveStaticDir string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveGRPCAddr, "grpc-addr", "", "gRPC health listen address, empty to disable (overrides server.grpc_addr)")
	serveCmd.Flags().StringVar(&serveLog, "log", "", "Path to decision log CSV (overrides log.path)")
	serveCmd.Flags().StringVar(&serveScaler, "scaler", "", "Path to scaler artifact (overrides model.scaler_path)")
	serveCmd.Flags().StringVar(&serveScorer, "scorer", "", "Path to isolation forest artifact (overrides model.scorer_path)")
	serveCmd.Flags().StringVar(&serveStaticDir, "static", "", "Directory served under /static/ (overrides server.static_dir)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the classification and report server",
	Long: "Serves /predict, /report, /dashboard and the log downloads over HTTP,\n" +
		"plus gRPC health checks. Alerts and schema drift policy hot-reload\n" +
		"when the config file changes.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	flags := cmd.Flags()
	if flags.Changed("addr") {
		a.cfg.Server.Addr = serveAddr
	}
	if flags.Changed("grpc-addr") {
		a.cfg.Server.GRPCAddr = serveGRPCAddr
	}
	if flags.Changed("log") {
		a.cfg.Log.Path = serveLog
	}
	if flags.Changed("scaler") {
		a.cfg.Model.ScalerPath = serveScaler
	}
	if flags.Changed("scorer") {
		a.cfg.Model.ScorerPath = serveScorer
	}
	if flags.Changed("static") {
		a.cfg.Server.StaticDir = serveStaticDir
	}

	svc, err := a.service(a.cfg.Log.Path)
	if err != nil {
		return err
	}

	cfgPath := resolvedConfigPath()
	srv := server.New(server.Config{
		Addr:        a.cfg.Server.Addr,
		GRPCAddr:    a.cfg.Server.GRPCAddr,
		StaticDir:   a.cfg.Server.StaticDir,
		SummaryPath: a.cfg.Server.SummaryPath,
		RecentLimit: a.cfg.Report.RecentLimit,
		ConfigPath:  cfgPath,
	}, svc, a.logger)
	srv.SetConfigHash(a.hash)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfgPath != "" {
		if _, err := os.Stat(cfgPath); err == nil {
			reloader, err := server.NewReloader(cfgPath, srv.ReloadConfig, a.logger)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
			} else {
				go func() { _ = reloader.Run(ctx) }()
			}
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nShutting down sessionwatch server...")
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(os.Stderr, "sessionwatch listening on http://%s\n", a.cfg.Server.Addr)
	if a.cfg.Server.GRPCAddr != "" {
		fmt.Fprintf(os.Stderr, "Health: %s (grpc)\n", a.cfg.Server.GRPCAddr)
	}
	fmt.Fprintf(os.Stderr, "Decision log: %s\n", a.cfg.Log.Path)
	fmt.Fprintln(os.Stderr)

	if err := srv.Start(ctx); err != nil {
		a.logger.Error("server stopped", zap.Error(err))
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

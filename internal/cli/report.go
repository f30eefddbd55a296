package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/sessionwatch/internal/config"
	"github.com/ppiankov/sessionwatch/internal/report"
)

var (
	reportJSON   bool
	reportLog    string
	reportOutput string
)

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportSummaryCmd)
	reportCmd.AddCommand(reportExportCmd)
	reportCmd.PersistentFlags().StringVar(&reportLog, "log", "", "Path to decision log CSV (overrides log.path)")
	reportSummaryCmd.Flags().BoolVar(&reportJSON, "json", false, "Output as JSON")
	reportExportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Output path (default server.summary_path)")
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summaries of the decision log",
}

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print totals, anomaly rate and recent decisions",
	RunE:  runReportSummary,
}

var reportExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the metric,value summary CSV",
	Long:  "Writes the same summary CSV that /download/summary serves.",
	RunE:  runReportExport,
}

// loadSummary aggregates the configured log. Unlike the dashboard, a
// malformed log is reported as an error here.
func loadSummary(cmd *cobra.Command) (report.Summary, *config.Config, error) {
	cfg, _, err := config.LoadConfigWithHash(configPath)
	if err != nil {
		return report.Empty(), nil, err
	}
	path := cfg.Log.Path
	if cmd.Flags().Changed("log") {
		path = reportLog
	}

	s, err := report.Load(path, cfg.Report.RecentLimit)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return report.Empty(), cfg, nil
		}
		return report.Empty(), cfg, err
	}
	return s, cfg, nil
}

func runReportSummary(cmd *cobra.Command, args []string) error {
	s, _, err := loadSummary(cmd)
	if err != nil {
		return err
	}

	if reportJSON {
		out, err := report.FormatJSON(s)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), report.FormatText(s))
	return nil
}

func runReportExport(cmd *cobra.Command, args []string) error {
	s, cfg, err := loadSummary(cmd)
	if err != nil {
		return err
	}

	out := cfg.Server.SummaryPath
	if reportOutput != "" {
		out = reportOutput
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := report.WriteSummaryCSV(f, s); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", out, err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%d decisions, %.2f%% anomalous)\n", out, s.Total, s.AnomalyRate)
	return nil
}

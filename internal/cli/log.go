package cli

import (
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/sessionwatch/internal/config"
	"github.com/ppiankov/sessionwatch/internal/decisionlog"
)

var tailLines int

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.AddCommand(logVerifyCmd)
	logCmd.AddCommand(logTailCmd)
	logTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent decisions to show")
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Decision log operations",
	Long:  "Commands for verifying and inspecting the CSV decision log.",
}

var logVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Check that the decision log is well formed",
	Long: "Parses the decision log and checks the header, the width of every row and the\n" +
		"anomaly flag. Defaults to log.path from the config. Exits non-zero when malformed.",
	Args: cobra.MaximumNArgs(1),
	RunE: runLogVerify,
}

var logTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent decisions",
	Long:  "Prints the header and the last N rows of the decision log as CSV.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogTail,
}

// logPathArg returns the path argument, or log.path from the config.
func logPathArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, _, err := config.LoadConfigWithHash(configPath)
	if err != nil {
		return "", err
	}
	return cfg.Log.Path, nil
}

func runLogVerify(cmd *cobra.Command, args []string) error {
	path, err := logPathArg(args)
	if err != nil {
		return err
	}

	result := decisionlog.Verify(path)
	for _, w := range result.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	if !result.Valid {
		if result.ErrorLine > 0 {
			return fmt.Errorf("%s: FAILED at line %d: %s", path, result.ErrorLine, result.Error)
		}
		return fmt.Errorf("%s: FAILED: %s", path, result.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %d decisions verified (%d anomalies, %d columns)\n",
		result.Rows, result.Anomalies, len(result.Columns))
	return nil
}

func runLogTail(cmd *cobra.Command, args []string) error {
	if tailLines < 0 {
		return errors.New("--lines must not be negative")
	}
	path, err := logPathArg(args)
	if err != nil {
		return err
	}

	t, err := decisionlog.Tail(path, tailLines)
	if err != nil {
		return fmt.Errorf("read decision log: %w", err)
	}
	if len(t.Header) == 0 {
		return nil
	}

	w := csv.NewWriter(cmd.OutOrStdout())
	if err := w.Write(t.Header); err != nil {
		return err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/sessionwatch/internal/feature"
)

var (
	classifyNoLog bool
	classifyLog   string
)

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().BoolVar(&classifyNoLog, "no-log", false, "Score without appending to the decision log")
	classifyCmd.Flags().StringVar(&classifyLog, "log", "", "Path to decision log CSV (overrides log.path)")
}

var classifyCmd = &cobra.Command{
	Use:   "classify [file]",
	Short: "Classify one session record",
	Long: "Reads a JSON session object from file, or stdin when no file is given,\n" +
		"scores it and prints the prediction. The decision is logged unless --no-log is set.",
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		defer f.Close()
		in = f
	}

	rec, err := feature.DecodeRecord(in)
	if err != nil {
		return err
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	logPath := a.cfg.Log.Path
	if cmd.Flags().Changed("log") {
		logPath = classifyLog
	}
	if classifyNoLog {
		logPath = ""
	}

	svc, err := a.service(logPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := svc.Classify(ctx, rec)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

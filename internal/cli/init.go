package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/sessionwatch/internal/config"
)

var (
	initMode  string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initMode, "mode", "user", "Config location: user (~/.sessionwatch) or system (/etc/sessionwatch)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default sessionwatch configuration",
	Long: `Creates the config directory and a commented config.yaml with default values.

User mode (default):  writes to ~/.sessionwatch/
System mode:          writes to /etc/sessionwatch/ (requires root)`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := initConfigDir()
	if err != nil {
		return err
	}

	path := filepath.Join(dir, "config.yaml")
	written, err := writeIfMissing(path, config.DefaultConfigYAML())
	if err != nil {
		return err
	}

	fmt.Println("sessionwatch init complete.")
	fmt.Println()
	if written {
		fmt.Println("Created:")
		fmt.Printf("  %s\n", path)
	} else {
		fmt.Println("Config already exists (use --force to overwrite).")
	}
	fmt.Println()

	fmt.Println("Start the server:")
	if initMode == "system" {
		fmt.Printf("  sessionwatch serve --config %s\n", path)
	} else {
		fmt.Println("  sessionwatch serve")
	}
	return nil
}

// initConfigDir returns the configuration directory based on mode.
func initConfigDir() (string, error) {
	switch initMode {
	case "system":
		return "/etc/sessionwatch", nil
	case "user", "":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".sessionwatch"), nil
	default:
		return "", fmt.Errorf("unknown mode %q: use 'user' or 'system'", initMode)
	}
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// Package cli provides the command-line interface for the memory agent.
package cli

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/raphaelgruber/memory-agent/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	jsonOutput bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "memory-agent",
	Short: "Act on newly created memories",
	Long: `memory-agent watches the memory store for new records, classifies them,
and runs follow-up actions exactly once per record: a calendar invite for
meetings and a coaching plan for goals.

Progress is checkpointed to a local state file so restarts resume where
the previous run stopped.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of styled text")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the configuration and applies the global verbosity flag.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	return cfg, nil
}

// wantJSON reports whether output should be machine readable:
// either requested explicitly or written somewhere other than a terminal.
func wantJSON(w io.Writer) bool {
	if jsonOutput {
		return true
	}
	f, ok := w.(*os.File)
	return !ok || !term.IsTerminal(int(f.Fd()))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Command flowr is the dataflow engine's runner binary: it loads a
// manifest, drives it to quiescence, and optionally emits metrics or
// drops into the debugger, mirroring the teacher's cmd/nova command
// tree shape (a cobra root plus one subcommand per verb).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oriys/flow/internal/logging"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "flowr",
		Short: "flowr runs a compiled dataflow manifest to quiescence",
		Long:  "flowr is the runner for the flow dataflow execution engine: manifest in, values out.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file (optional)")

	rootCmd.AddCommand(
		runCmd(),
		validateCmd(),
		debugCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		logging.Op().Error("flowr: command failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

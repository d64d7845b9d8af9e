// Package cli wires the engine's commands: the interactive REPL (default),
// one-shot task execution, the status dashboard, the MCP server, and chain
// runs.
package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"opsagent/config"
)

// errFailedRun signals a nonzero exit status for an otherwise handled
// failure (task failed, chain failed). Returning it instead of calling
// os.Exit inside RunE lets the deferred cleanup run first. It must stay
// comparable (errors.New, not a struct error) because it is matched by
// identity in Execute.
var errFailedRun = errors.New("run finished with failures")

var rootCmd = &cobra.Command{
	Use:   "opsagent",
	Short: "Task orchestration and command execution engine",
	Long: `OpsAgent turns natural-language goals into executed shell commands:
a planning oracle decomposes each goal into subtasks and commands, the
local engine executes them with live output, and every result is
verified before the next step runs.

Without a subcommand, opsagent starts an interactive session.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err == errFailedRun {
		// Already reported; cleanup has run by now.
		os.Exit(1)
	}
	return err
}

func init() {
	// Assigned here rather than in the composite literal to avoid an
	// initialization cycle (rootCmd -> runREPL -> newApp -> rootCmd).
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runREPL()
	}

	cobra.OnInitialize(config.Initialize)

	rootCmd.PersistentFlags().Bool("auto", false, "run plans and commands without approval prompts")
	rootCmd.PersistentFlags().String("model", "", "override the planning model")
}

package cli

import (
	"github.com/spf13/cobra"

	"opsagent/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the engine over the Model Context Protocol on stdio",
	Long: `Exposes run_command, run_task, run_chain, and list_history as MCP
tools so other agents can drive the engine.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.close()
		return mcp.NewServer(a.sess, a.exec, a.oracle).Run()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

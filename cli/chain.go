package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"opsagent/chain"
)

var chainCmd = &cobra.Command{
	Use:   "chain <file.json>",
	Short: "Run a command chain from a JSON definition",
	Long: `Executes the steps of a chain file strictly in order. Steps may carry
conditions over the previous step's outcome ("success", "error",
"exit_code == N") and capture output with the NAME=$(COMMAND) form.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.close()
		a.streamOutput()

		c, err := chain.Load(args[0])
		if err != nil {
			return err
		}
		if c.WorkingDir == "" {
			c.WorkingDir = a.sess.WorkingDir()
		}

		failFast, _ := cmd.Flags().GetBool("fail-fast")
		report := c.Run(cmd.Context(), a.exec, failFast)

		// Executed step results join the session log so the flush below
		// carries them into history and the database.
		for _, step := range report.Steps {
			if step.Result != nil && (step.Status == chain.StepSuccess || step.Status == chain.StepError) {
				a.sess.AddCommand(*step.Result)
			}
		}
		a.flush()
		fmt.Println(report.Summary())

		if save, _ := cmd.Flags().GetString("save"); save != "" {
			if err := c.Save(save); err != nil {
				return err
			}
		}
		if !report.Success {
			return errFailedRun
		}
		return nil
	},
}

func init() {
	chainCmd.Flags().Bool("fail-fast", false, "stop at the first failing step")
	chainCmd.Flags().String("save", "", "write the chain with run results to this file")
	rootCmd.AddCommand(chainCmd)
}

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"opsagent/agent"
	"opsagent/planner"
)

var runCmd = &cobra.Command{
	Use:   "run <task...>",
	Short: "Execute one task unattended and exit",
	Long: `Runs a single task without approval prompts and exits with status 0
when the task completes, 1 otherwise. Suitable for scripts and CI.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()
		defer a.close()
		a.streamOutput()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		defer signal.Stop(sig)
		go func() {
			select {
			case <-sig:
				cancel()
			case <-ctx.Done():
			}
		}()

		task := strings.Join(args, " ")
		orch := planner.New(a.sess, a.exec, a.oracle, nil, os.Stdout)
		state := orch.RunTask(ctx, task)

		a.flush()
		a.saveTask(state)

		fmt.Printf("\nTask %s: %s\n", state.Status, state.Description)
		if state.Status != agent.TaskCompleted {
			return errFailedRun
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

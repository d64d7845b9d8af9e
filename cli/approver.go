package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"opsagent/oracle"
	"opsagent/planner"
)

// consoleApprover implements the plan and command approval gates on the
// interactive terminal.
type consoleApprover struct {
	rl *readline.Instance
}

func (c *consoleApprover) ApprovePlan(task string, plan *oracle.Plan) (planner.PlanDecision, string) {
	fmt.Printf("\nPlan for: %s\n", task)
	fmt.Printf("Summary: %s\n", plan.TaskSummary)
	for i, sub := range plan.Subtasks {
		fmt.Printf("  %d. %s\n", i+1, sub.Description)
		if sub.Approach != "" {
			fmt.Printf("     Approach: %s\n", sub.Approach)
		}
		for _, cmd := range sub.Commands {
			fmt.Printf("     $ %s\n", cmd)
		}
	}

	answer := c.ask("Proceed with this plan? (y/n/modify): ")
	lower := strings.ToLower(answer)
	switch {
	case lower == "y" || lower == "yes" || lower == "":
		return planner.PlanProceed, ""
	case lower == "n" || lower == "no":
		return planner.PlanReject, ""
	default:
		amendment := strings.TrimPrefix(answer, "modify")
		amendment = strings.TrimSpace(amendment)
		if amendment == "" {
			amendment = c.ask("Describe the change: ")
		}
		return planner.PlanModify, amendment
	}
}

func (c *consoleApprover) ApproveCommand(command string) (planner.CommandDecision, string) {
	fmt.Printf("\n  $ %s\n", command)
	answer := c.ask("Execute? (y/n/edit): ")
	lower := strings.ToLower(answer)
	switch {
	case lower == "y" || lower == "yes" || lower == "":
		return planner.CommandRun, ""
	case lower == "n" || lower == "no":
		return planner.CommandSkip, ""
	default:
		edited := strings.TrimPrefix(answer, "edit")
		edited = strings.TrimSpace(edited)
		if edited == "" {
			edited = c.ask("New command: ")
		}
		if edited == "" {
			return planner.CommandSkip, ""
		}
		return planner.CommandEdit, edited
	}
}

func (c *consoleApprover) ask(prompt string) string {
	c.rl.SetPrompt(prompt)
	defer c.rl.SetPrompt("opsagent> ")
	line, err := c.rl.Readline()
	if err != nil {
		// Interrupt or EOF at a gate declines it.
		return "n"
	}
	return strings.TrimSpace(line)
}

// historyFilePath is where readline keeps the input history.
func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".opsagent", "repl_history")
}

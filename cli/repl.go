package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rohanthewiz/serr"

	"opsagent/agent"
	"opsagent/planner"
)

const replHelp = `Commands:
  <any text>     Execute as a task: plan, approve, run
  ask <question> Ask a question without executing anything
  auto on|off    Toggle unattended execution
  history        Show recent commands
  tasks          Show the task tree
  context        Show session context
  cd <dir>       Change working directory
  pwd            Print working directory
  clear          Clear the screen
  help           Show this help
  exit           Quit`

// runREPL starts the interactive session loop.
func runREPL() error {
	a := newApp()
	defer a.close()
	a.streamOutput()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "opsagent> ",
		HistoryFile:     historyFilePath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return serr.Wrap(err, "failed to initialize terminal")
	}
	defer rl.Close()

	fmt.Println("OpsAgent - type a goal in plain language, or 'help' for commands")
	if a.autoRun {
		fmt.Println("Auto-run is ON: plans and commands execute without approval")
	}

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return serr.Wrap(err, "terminal read failed")
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if a.handleReserved(rl, input) {
			if input == "exit" || input == "quit" {
				break
			}
			continue
		}

		a.runTask(rl, input)
	}

	fmt.Println("Goodbye")
	return nil
}

// handleReserved dispatches reserved and plugin commands. It returns false
// when the input should be treated as a task.
func (a *app) handleReserved(rl *readline.Instance, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "exit", "quit":
		return true
	case "help":
		fmt.Println(replHelp)
		if names := a.plugins.CommandNames(); len(names) > 0 {
			fmt.Println("Plugin commands: " + strings.Join(names, ", "))
		}
		return true
	case "history":
		log := a.sess.CommandLog()
		if len(log) == 0 {
			fmt.Println("No commands executed yet")
			return true
		}
		start := len(log) - 20
		if start < 0 {
			start = 0
		}
		for _, r := range log[start:] {
			fmt.Printf("[exit %d, %.2fs] %s\n", r.ExitCode, r.ExecutionTime, r.Command)
		}
		return true
	case "tasks":
		tasks := a.sess.TaskHistory()
		if len(tasks) == 0 {
			fmt.Println("No tasks yet")
			return true
		}
		for _, t := range tasks {
			printTaskTree(t, 0)
		}
		return true
	case "context":
		fmt.Println(a.sess.Summary())
		return true
	case "clear":
		fmt.Print("\033[2J\033[H")
		return true
	case "pwd":
		fmt.Println(a.sess.WorkingDir())
		return true
	case "cd":
		dir := ""
		if len(fields) > 1 {
			dir = strings.TrimSpace(strings.TrimPrefix(input, "cd"))
		}
		if err := a.sess.ChangeDir(dir); err != nil {
			fmt.Printf("cd: %s\n", err.Error())
		} else {
			fmt.Println(a.sess.WorkingDir())
		}
		return true
	case "ask":
		question := strings.TrimSpace(strings.TrimPrefix(input, "ask"))
		if question == "" {
			fmt.Println("Usage: ask <question>")
			return true
		}
		answer, err := a.oracle.Converse(context.Background(), question)
		if err != nil {
			fmt.Printf("ask: %s\n", err.Error())
			return true
		}
		a.sess.AddUserMessage(question)
		a.sess.AddAgentMessage(answer)
		fmt.Println(answer)
		return true
	case "auto":
		if len(fields) > 1 && fields[1] == "on" {
			a.autoRun = true
			fmt.Println("Auto-run ON")
		} else if len(fields) > 1 && fields[1] == "off" {
			a.autoRun = false
			fmt.Println("Auto-run OFF")
		} else {
			fmt.Printf("Auto-run is %v (use: auto on|off)\n", a.autoRun)
		}
		return true
	}

	if cmd, ok := a.plugins.Commands()[fields[0]]; ok {
		out, err := cmd.Run(fields[1:])
		if err != nil {
			fmt.Printf("%s: %s\n", fields[0], err.Error())
		} else if out != "" {
			fmt.Println(out)
		}
		return true
	}
	return false
}

// runTask drives one task through the orchestrator, with SIGINT cancelling
// the in-flight command rather than the process.
func (a *app) runTask(rl *readline.Instance, task string) {
	ctx, cancel := context.WithCancel(context.Background())
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

	var approver planner.Approver
	if !a.autoRun {
		approver = &consoleApprover{rl: rl}
	}

	orch := planner.New(a.sess, a.exec, a.oracle, approver, os.Stdout)
	state := orch.RunTask(ctx, task)

	a.flush()
	a.saveTask(state)

	fmt.Printf("\nTask %s: %s\n", state.Status, state.Description)
}

func printTaskTree(t *agent.TaskState, depth int) {
	fmt.Printf("%s[%s] %s %s\n", strings.Repeat("  ", depth), t.Status, t.ID, t.Description)
	for _, sub := range t.Subtasks {
		printTaskTree(sub, depth+1)
	}
}

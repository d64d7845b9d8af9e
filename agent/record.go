package agent

import (
	"fmt"
	"strings"
	"time"
)

// Sentinel exit codes recorded when a command did not run to a natural exit.
const (
	// ExitTimeout marks a command that was killed after exceeding its deadline.
	ExitTimeout = -1
	// ExitInterrupted marks a command terminated by user cancellation (SIGINT convention).
	ExitInterrupted = 130
)

// CommandResult is the normalized outcome of one executed command. It is the
// unit exchanged between the executor, task logs, persisted history, and the
// planning oracle.
type CommandResult struct {
	Command       string  `json:"command"`
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	ExitCode      int     `json:"exit_code"`
	ExecutionTime float64 `json:"execution_time"`
	Timestamp     string  `json:"timestamp"`
}

// NewCommandResult returns a result record stamped with the current time.
func NewCommandResult(command string) CommandResult {
	return CommandResult{
		Command:   command,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// Success reports whether the command is structurally successful. Exit code 0
// is the only value treated as success; the oracle may override this verdict
// downstream, but never here.
func (r CommandResult) Success() bool {
	return r.ExitCode == 0
}

// TimedOut reports whether the record carries the timeout sentinel.
func (r CommandResult) TimedOut() bool {
	return r.ExitCode == ExitTimeout
}

// Interrupted reports whether the record carries the interrupt sentinel.
func (r CommandResult) Interrupted() bool {
	return r.ExitCode == ExitInterrupted
}

// Summary renders a one-line description for history listings.
func (r CommandResult) Summary() string {
	status := "Success"
	if !r.Success() {
		status = fmt.Sprintf("Failed (%d)", r.ExitCode)
	}
	return fmt.Sprintf("%s - %s - %.2fs", strings.TrimSpace(r.Command), status, r.ExecutionTime)
}

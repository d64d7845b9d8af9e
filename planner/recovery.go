// Package planner drives the plan -> execute -> verify -> decide loop across
// the subtasks of a task, consulting the planning oracle and the recovery
// policy, and updating session state as it goes.
package planner

import (
	"runtime"
	"strings"

	"github.com/kballard/go-shellquote"

	"opsagent/agent"
	"opsagent/oracle"
)

// Action is the recovery policy's decision after one command execution.
type Action string

const (
	ActionContinue Action = "continue"
	ActionRetry    Action = "retry"
	ActionSkip     Action = "skip"
	ActionAbort    Action = "abort"
)

// Decision is the outcome of the recovery policy: what to do next and, for a
// retry, which fallback command to attempt (at most once).
type Decision struct {
	Action   Action
	Reason   string
	Fallback string
}

// Decide maps a command result and an oracle verdict to the next action.
// An explicit, well-formed oracle directive always wins; absent one, exit
// code 0 means continue and anything else means skip. The policy never
// escalates to abort on its own.
func Decide(result agent.CommandResult, verdict *oracle.Verification) Decision {
	if verdict == nil || !wellFormedAction(verdict.NextAction.Action) {
		return structuralDecision(result)
	}

	na := verdict.NextAction
	switch na.Action {
	case oracle.ActionContinue:
		return Decision{Action: ActionContinue, Reason: na.Reason}
	case oracle.ActionSkip:
		return Decision{Action: ActionSkip, Reason: na.Reason}
	case oracle.ActionAbort:
		return Decision{Action: ActionAbort, Reason: na.Reason}
	case oracle.ActionRetry:
		fallback := strings.TrimSpace(na.FallbackCommand)
		if fallback == "" {
			// A retry directive without a fallback cannot make progress.
			return Decision{Action: ActionSkip, Reason: "retry directive carried no fallback command"}
		}
		// An oracle echoing the failing command back would loop forever;
		// substitute a diagnostic probe instead.
		if fallback == strings.TrimSpace(result.Command) {
			return Decision{
				Action:   ActionRetry,
				Reason:   "oracle repeated the failed command, substituting diagnostic",
				Fallback: diagnosticFallback(result.Command),
			}
		}
		return Decision{Action: ActionRetry, Reason: na.Reason, Fallback: fallback}
	}
	return structuralDecision(result)
}

func structuralDecision(result agent.CommandResult) Decision {
	if result.Success() {
		return Decision{Action: ActionContinue, Reason: "exit code 0"}
	}
	return Decision{Action: ActionSkip, Reason: "nonzero exit code without oracle directive"}
}

func wellFormedAction(action string) bool {
	switch action {
	case oracle.ActionContinue, oracle.ActionRetry, oracle.ActionSkip, oracle.ActionAbort:
		return true
	}
	return false
}

// diagnosticFallback builds a probe that reports whether the failed
// command's program exists, instead of re-running the identical command.
func diagnosticFallback(command string) string {
	name := strings.TrimSpace(command)
	if words, err := shellquote.Split(name); err == nil && len(words) > 0 {
		name = words[0]
	} else if i := strings.IndexAny(name, " \t"); i >= 0 {
		name = name[:i]
	}
	if runtime.GOOS == "windows" {
		return "where " + name
	}
	return "command -v " + name
}

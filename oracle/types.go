// Package oracle defines the planning oracle contract: the external service
// that turns a natural-language task into a structured plan, proposes
// commands, and classifies command outcomes. Every operation has a structural
// fallback so the engine keeps making progress when the oracle is absent or
// returns garbage.
package oracle

import (
	"context"

	"opsagent/agent"
)

// Plan is the oracle's decomposition of a task.
type Plan struct {
	TaskSummary    string    `json:"task_summary"`
	Subtasks       []Subtask `json:"subtasks"`
	EstimatedSteps int       `json:"estimated_steps,omitempty"`
}

// Subtask is one step of a plan with its candidate commands.
type Subtask struct {
	Description       string   `json:"description"`
	Approach          string   `json:"approach,omitempty"`
	Commands          []string `json:"commands,omitempty"`
	Rationale         string   `json:"rationale,omitempty"`
	PotentialIssues   string   `json:"potential_issues,omitempty"`
	RequiredResources []string `json:"required_resources,omitempty"`
	FallbackCommands  []string `json:"fallback_commands,omitempty"`
}

// Next-action directives the oracle may return from verification.
const (
	ActionContinue = "continue"
	ActionRetry    = "retry"
	ActionSkip     = "skip"
	ActionAbort    = "abort"
)

// Verification is the oracle's judgment of one command execution.
type Verification struct {
	Success     bool         `json:"success"`
	SystemState string       `json:"system_state"`
	NextAction  NextAction   `json:"next_action"`
	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}

// NextAction directs the orchestrator after a verification.
type NextAction struct {
	Action          string `json:"action"`
	Reason          string `json:"reason"`
	FallbackCommand string `json:"fallback_command,omitempty"`
}

// Diagnostics carries optional classification of a command outcome.
type Diagnostics struct {
	IsInstalled  *bool  `json:"is_installed,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`
	SuggestedFix string `json:"suggested_fix,omitempty"`
}

// ContinueDecision answers whether to proceed past a failed subtask.
type ContinueDecision struct {
	ShouldContinue bool   `json:"should_continue"`
	Reason         string `json:"reason"`
}

// Objective answers whether the overall task goal is already satisfied.
type Objective struct {
	IsComplete bool   `json:"is_complete"`
	Result     string `json:"result"`
	Reason     string `json:"reason"`
}

// SessionContext is the slice of session state sent along with oracle calls.
type SessionContext struct {
	WorkingDir     string
	Platform       string
	RecentCommands []string
	RecentErrors   []agent.CommandError
}

// Client is the planning oracle. Implementations own their transport and
// timeout policy; callers own the fallback on error.
type Client interface {
	Plan(ctx context.Context, task string, sc SessionContext) (*Plan, error)
	GenerateCommands(ctx context.Context, task, subtask string, sc SessionContext) ([]string, error)
	Verify(ctx context.Context, command string, result agent.CommandResult) (*Verification, error)
	ShouldContinueAfterFailure(ctx context.Context, failedSubtask, nextSubtask, systemState string) (*ContinueDecision, error)
	IsObjectiveAchieved(ctx context.Context, task, subtask string, result agent.CommandResult) (*Objective, error)
	Converse(ctx context.Context, message string) (string, error)
}

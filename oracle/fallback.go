package oracle

import (
	"runtime"

	"opsagent/agent"
)

// FallbackPlan is the one-subtask plan substituted when planning fails or the
// oracle's response cannot be parsed. The engine must never block on a
// malformed planning response.
func FallbackPlan(task string) *Plan {
	return &Plan{
		TaskSummary: task,
		Subtasks: []Subtask{
			{
				Description: "Execute task directly",
				Approach:    "Direct command execution",
				Rationale:   "Planning unavailable, executing directly",
			},
		},
		EstimatedSteps: 1,
	}
}

// DefaultCommands is the platform-appropriate substitute when command
// generation fails: a safe directory listing.
func DefaultCommands() []string {
	if runtime.GOOS == "windows" {
		return []string{"dir"}
	}
	return []string{"ls -la"}
}

// StructuralVerdict is the verification substituted when the oracle call
// itself fails: success iff exit code 0, continue on success, skip on
// failure. Never abort without an explicit directive.
func StructuralVerdict(result agent.CommandResult) *Verification {
	success := result.Success()
	action := ActionContinue
	if !success {
		action = ActionSkip
	}
	return &Verification{
		Success:     success,
		SystemState: "Command executed, but verification unavailable.",
		NextAction: NextAction{
			Action: action,
			Reason: "verification unavailable, decision based on exit code",
		},
	}
}

package planner

import "opsagent/oracle"

// PlanDecision is the user's response at the plan approval gate.
type PlanDecision int

const (
	PlanProceed PlanDecision = iota
	PlanReject
	PlanModify
)

// CommandDecision is the user's response before each command in manual mode.
type CommandDecision int

const (
	CommandRun CommandDecision = iota
	CommandSkip
	CommandEdit
)

// Approver gates execution when auto-run is disabled. A nil Approver means
// every plan and command proceeds unprompted.
type Approver interface {
	// ApprovePlan presents a plan. For PlanModify, the returned string is the
	// user's amendment to the task description.
	ApprovePlan(task string, plan *oracle.Plan) (PlanDecision, string)
	// ApproveCommand presents one command. For CommandEdit, the returned
	// string replaces the command text.
	ApproveCommand(command string) (CommandDecision, string)
}

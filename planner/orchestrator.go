package planner

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/rohanthewiz/logger"

	"opsagent/agent"
	"opsagent/executor"
	"opsagent/oracle"
)

// Reason recorded when the user cancels a task, at the approval gate or
// mid-execution.
const reasonUserCancelled = "cancelled by user"

// Orchestrator runs one task at a time: plan, execute each subtask's
// commands in order, verify each result, and let the recovery policy pick
// the next move. All oracle calls degrade to structural fallbacks; nothing
// here terminates the loop with a fault.
type Orchestrator struct {
	sess     *agent.Session
	exec     *executor.Executor
	oracle   oracle.Client
	approver Approver
	out      io.Writer

	// maxPlanRevisions bounds the modify -> re-plan cycle at the approval gate.
	maxPlanRevisions int
}

// New creates an orchestrator. approver may be nil for auto-run mode; out may
// be nil to suppress progress output.
func New(sess *agent.Session, exec *executor.Executor, client oracle.Client, approver Approver, out io.Writer) *Orchestrator {
	if out == nil {
		out = io.Discard
	}
	return &Orchestrator{
		sess:             sess,
		exec:             exec,
		oracle:           client,
		approver:         approver,
		out:              out,
		maxPlanRevisions: 3,
	}
}

func (o *Orchestrator) printf(format string, a ...any) {
	fmt.Fprintf(o.out, format+"\n", a...)
}

func (o *Orchestrator) sessionContext() oracle.SessionContext {
	return oracle.SessionContext{
		WorkingDir:     o.sess.WorkingDir(),
		Platform:       runtime.GOOS,
		RecentCommands: o.sess.RecentCommands(5),
		RecentErrors:   o.sess.RecentErrors(3),
	}
}

// RunTask drives one task to a terminal state and returns its root node.
func (o *Orchestrator) RunTask(ctx context.Context, task string) *agent.TaskState {
	o.sess.AddUserMessage(task)
	main := o.sess.StartTask(task)

	plan, cancelled := o.planWithApproval(ctx, task)
	if cancelled {
		o.sess.FailCurrent(reasonUserCancelled)
		return main
	}

	o.printf("TASK PLAN: %s", plan.TaskSummary)
	o.printf("Breaking this down into %d subtask(s)", len(plan.Subtasks))

	var (
		objectiveAchieved bool
		objectiveResult   string
		lastSucceeded     bool
	)

	for i, sub := range plan.Subtasks {
		o.printf("SUBTASK %d/%d: %s", i+1, len(plan.Subtasks), sub.Description)

		subState, err := o.sess.StartSubtask(sub.Description)
		if err != nil {
			// The current pointer was lost, which means the task already
			// terminated (e.g. cancellation raced us).
			logger.LogErr(err, "could not start subtask")
			return main
		}

		outcome := o.runSubtask(ctx, task, sub, subState)
		switch outcome.kind {
		case subtaskCancelled:
			o.sess.FailCurrent(reasonUserCancelled)
			o.sess.FailCurrent(reasonUserCancelled)
			return main
		case subtaskAborted:
			o.sess.FailCurrent(outcome.reason)
			o.sess.FailCurrent(fmt.Sprintf("Failed at subtask %d: %s", i+1, sub.Description))
			return main
		case subtaskFailed:
			o.sess.FailCurrent("Command execution failed")
			lastSucceeded = false
			if i+1 < len(plan.Subtasks) {
				if !o.continuePastFailure(ctx, sub.Description, plan.Subtasks[i+1].Description, outcome.systemState) {
					o.sess.FailCurrent(fmt.Sprintf("Aborted after subtask %d failed: %s", i+1, sub.Description))
					return main
				}
				o.printf("Continuing to next subtask despite failure")
			}
		case subtaskSucceeded:
			o.sess.CompleteCurrent(outcome.output)
			lastSucceeded = true
			if i+1 < len(plan.Subtasks) {
				if obj := o.objectiveAchieved(ctx, task, sub.Description, outcome.lastResult); obj != nil && obj.IsComplete {
					objectiveAchieved = true
					objectiveResult = obj.Result
					o.printf("Main task objective achieved: %s", obj.Result)
					o.printf("Remaining subtasks are no longer necessary")
				}
			}
		}

		if objectiveAchieved {
			break
		}
	}

	switch {
	case objectiveAchieved:
		o.sess.CompleteCurrent(objectiveResult)
	case lastSucceeded:
		o.sess.CompleteCurrent("All necessary subtasks completed")
	default:
		o.sess.FailCurrent("Final subtask failed")
	}
	return main
}

// planWithApproval obtains a plan (with fallback) and runs the approval gate,
// re-planning on "modify". Every plan that will execute is presented first;
// once the revision limit is reached a further "modify" cancels the task
// rather than running a plan the user never accepted. The second return is
// true when the task was cancelled.
func (o *Orchestrator) planWithApproval(ctx context.Context, task string) (*oracle.Plan, bool) {
	description := task
	for revision := 0; ; revision++ {
		plan := o.plan(ctx, description)
		if o.approver == nil {
			return plan, false
		}
		decision, amendment := o.approver.ApprovePlan(description, plan)
		switch decision {
		case PlanReject:
			o.printf("Task cancelled")
			return plan, true
		case PlanModify:
			if revision >= o.maxPlanRevisions {
				o.printf("Plan revision limit reached, task cancelled")
				return plan, true
			}
			description = fmt.Sprintf("%s (Modification: %s)", description, amendment)
			o.printf("Re-planning with modifications")
		default:
			return plan, false
		}
	}
}

func (o *Orchestrator) plan(ctx context.Context, task string) *oracle.Plan {
	plan, err := o.oracle.Plan(ctx, task, o.sessionContext())
	if err != nil {
		logger.Warn("Planning unavailable, using direct-execution plan", "error", err.Error())
		return oracle.FallbackPlan(task)
	}
	return plan
}

// subtaskOutcome describes how one subtask's command loop ended.
type subtaskKind int

const (
	subtaskSucceeded subtaskKind = iota
	subtaskFailed
	subtaskAborted
	subtaskCancelled
)

type subtaskOutcome struct {
	kind        subtaskKind
	reason      string
	output      string
	systemState string
	lastResult  agent.CommandResult
}

// runSubtask executes the subtask's commands in order, verifying each and
// applying the recovery policy. Commands within a subtask are sequential by
// design: they are assumed to have ordering dependencies.
func (o *Orchestrator) runSubtask(ctx context.Context, task string, sub oracle.Subtask, state *agent.TaskState) subtaskOutcome {
	commands := sub.Commands
	if len(commands) == 0 {
		generated, err := o.oracle.GenerateCommands(ctx, task, sub.Description, o.sessionContext())
		if err != nil {
			logger.Warn("Command generation unavailable, using default commands", "error", err.Error())
			generated = oracle.DefaultCommands()
		}
		commands = generated
	}

	outcome := subtaskOutcome{kind: subtaskSucceeded, output: "Completed successfully"}

	for j, command := range commands {
		if o.approver != nil {
			decision, edited := o.approver.ApproveCommand(command)
			switch decision {
			case CommandSkip:
				o.printf("Command skipped")
				continue
			case CommandEdit:
				if edited != "" {
					command = edited
				}
			}
		}

		o.printf("Command %d/%d: %s", j+1, len(commands), command)
		result := o.exec.Run(ctx, command)
		o.sess.AddCommand(result)
		outcome.lastResult = result

		if result.Interrupted() {
			return subtaskOutcome{kind: subtaskCancelled, lastResult: result}
		}

		verdict := o.verify(ctx, command, result)
		outcome.systemState = verdict.SystemState
		o.reportDiagnostics(verdict)

		decision := Decide(result, verdict)
		switch decision.Action {
		case ActionContinue:
			continue
		case ActionSkip:
			o.printf("Skipping remaining commands: %s", decision.Reason)
			outcome.output = "Remaining commands skipped"
			return outcome
		case ActionAbort:
			o.printf("Aborting task: %s", decision.Reason)
			return subtaskOutcome{kind: subtaskAborted, reason: decision.Reason, systemState: verdict.SystemState, lastResult: result}
		case ActionRetry:
			// At most one fallback attempt per failed command; a second
			// failure fails the subtask rather than looping.
			o.printf("Trying fallback command: %s", decision.Fallback)
			fbResult := o.exec.Run(ctx, decision.Fallback)
			o.sess.AddCommand(fbResult)
			outcome.lastResult = fbResult
			if fbResult.Interrupted() {
				return subtaskOutcome{kind: subtaskCancelled, lastResult: fbResult}
			}
			fbVerdict := o.verify(ctx, decision.Fallback, fbResult)
			outcome.systemState = fbVerdict.SystemState
			if !fbVerdict.Success {
				outcome.kind = subtaskFailed
				return outcome
			}
		}
	}
	return outcome
}

// verify submits a result to the oracle, falling back to the structural
// verdict so the loop always makes progress.
func (o *Orchestrator) verify(ctx context.Context, command string, result agent.CommandResult) *oracle.Verification {
	verdict, err := o.oracle.Verify(ctx, command, result)
	if err != nil {
		logger.Warn("Verification unavailable, using structural verdict", "error", err.Error())
		return oracle.StructuralVerdict(result)
	}
	return verdict
}

func (o *Orchestrator) reportDiagnostics(v *oracle.Verification) {
	if v.SystemState != "" {
		o.printf("System State: %s", v.SystemState)
	}
	if v.Diagnostics == nil {
		return
	}
	if v.Diagnostics.IsInstalled != nil {
		status := "not installed"
		if *v.Diagnostics.IsInstalled {
			status = "installed"
		}
		o.printf("Package Status: %s", status)
	}
	if v.Diagnostics.ErrorType != "" {
		o.printf("Error Type: %s", v.Diagnostics.ErrorType)
	}
	if v.Diagnostics.SuggestedFix != "" {
		o.printf("Suggested Fix: %s", v.Diagnostics.SuggestedFix)
	}
}

// continuePastFailure asks the oracle whether to proceed after a failed
// subtask. When the oracle is unreachable the task aborts, matching the
// conservative path.
func (o *Orchestrator) continuePastFailure(ctx context.Context, failed, next, systemState string) bool {
	decision, err := o.oracle.ShouldContinueAfterFailure(ctx, failed, next, systemState)
	if err != nil {
		logger.Warn("Continuation decision unavailable, aborting task", "error", err.Error())
		return false
	}
	if !decision.ShouldContinue {
		o.printf("Task aborted: %s", decision.Reason)
	}
	return decision.ShouldContinue
}

// objectiveAchieved asks the oracle whether the overall goal is already met.
// Unavailability means "not complete"; this is purely an early-exit
// optimization.
func (o *Orchestrator) objectiveAchieved(ctx context.Context, task, subtask string, last agent.CommandResult) *oracle.Objective {
	obj, err := o.oracle.IsObjectiveAchieved(ctx, task, subtask, last)
	if err != nil {
		logger.Debug("Objective evaluation unavailable", "error", err.Error())
		return nil
	}
	return obj
}

package planner

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"opsagent/agent"
	"opsagent/executor"
	"opsagent/oracle"
)

// stubOracle scripts each oracle operation for one test scenario. Nil
// function fields return an error, exercising the structural fallbacks.
type stubOracle struct {
	plan       func(task string) (*oracle.Plan, error)
	commands   func(task, subtask string) ([]string, error)
	verify     func(command string, result agent.CommandResult) (*oracle.Verification, error)
	continueFn func(failed, next string) (*oracle.ContinueDecision, error)
	objective  func(task, subtask string) (*oracle.Objective, error)
}

var errUnavailable = errors.New("oracle unavailable")

func (s *stubOracle) Plan(ctx context.Context, task string, sc oracle.SessionContext) (*oracle.Plan, error) {
	if s.plan == nil {
		return nil, errUnavailable
	}
	return s.plan(task)
}

func (s *stubOracle) GenerateCommands(ctx context.Context, task, subtask string, sc oracle.SessionContext) ([]string, error) {
	if s.commands == nil {
		return nil, errUnavailable
	}
	return s.commands(task, subtask)
}

func (s *stubOracle) Verify(ctx context.Context, command string, result agent.CommandResult) (*oracle.Verification, error) {
	if s.verify == nil {
		return nil, errUnavailable
	}
	return s.verify(command, result)
}

func (s *stubOracle) ShouldContinueAfterFailure(ctx context.Context, failed, next, state string) (*oracle.ContinueDecision, error) {
	if s.continueFn == nil {
		return nil, errUnavailable
	}
	return s.continueFn(failed, next)
}

func (s *stubOracle) IsObjectiveAchieved(ctx context.Context, task, subtask string, result agent.CommandResult) (*oracle.Objective, error) {
	if s.objective == nil {
		return nil, errUnavailable
	}
	return s.objective(task, subtask)
}

func (s *stubOracle) Converse(ctx context.Context, message string) (string, error) {
	return "", errUnavailable
}

func newTestHarness(t *testing.T, client oracle.Client) (*agent.Session, *Orchestrator) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests use POSIX shell semantics")
	}
	sess := agent.NewSession()
	if err := sess.ChangeDir(t.TempDir()); err != nil {
		t.Fatalf("cd: %v", err)
	}
	exec := executor.New(sess, 10*time.Second)
	return sess, New(sess, exec, client, nil, nil)
}

func planOf(subtasks ...oracle.Subtask) func(string) (*oracle.Plan, error) {
	return func(task string) (*oracle.Plan, error) {
		return &oracle.Plan{TaskSummary: task, Subtasks: subtasks}, nil
	}
}

func TestTaskCompletesWhenAllSubtasksSucceed(t *testing.T) {
	stub := &stubOracle{
		plan: planOf(
			oracle.Subtask{Description: "make a file", Commands: []string{"touch a.txt"}},
			oracle.Subtask{Description: "list it", Commands: []string{"ls a.txt"}},
		),
	}
	sess, orch := newTestHarness(t, stub)

	state := orch.RunTask(context.Background(), "create a file")

	if state.Status != agent.TaskCompleted {
		t.Fatalf("expected completed, got %s (%s)", state.Status, state.Error)
	}
	if len(state.Subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(state.Subtasks))
	}
	for _, sub := range state.Subtasks {
		if sub.Status != agent.TaskCompleted {
			t.Errorf("subtask %s should be completed, got %s", sub.ID, sub.Status)
		}
	}
	if sess.Current() != nil {
		t.Error("current pointer should be clear after a task finishes")
	}
}

func TestOracleOutageStillExecutes(t *testing.T) {
	// Every oracle call fails: fallback plan, default commands, structural
	// verification. The task must still run to completion.
	sess, orch := newTestHarness(t, &stubOracle{})

	state := orch.RunTask(context.Background(), "just look around")

	if state.Status != agent.TaskCompleted {
		t.Fatalf("expected completed via fallbacks, got %s (%s)", state.Status, state.Error)
	}
	if len(sess.CommandLog()) == 0 {
		t.Error("default commands should have executed")
	}
}

func TestAbortDirectiveStopsTheTask(t *testing.T) {
	stub := &stubOracle{
		plan: planOf(
			oracle.Subtask{Description: "dangerous step", Commands: []string{"sh -c 'exit 1'"}},
			oracle.Subtask{Description: "never reached", Commands: []string{"touch never.txt"}},
		),
		verify: func(command string, result agent.CommandResult) (*oracle.Verification, error) {
			return &oracle.Verification{
				Success:     false,
				SystemState: "disk on fire",
				NextAction:  oracle.NextAction{Action: oracle.ActionAbort, Reason: "unsafe to continue"},
			}, nil
		},
	}
	sess, orch := newTestHarness(t, stub)

	state := orch.RunTask(context.Background(), "risky work")

	if state.Status != agent.TaskFailed {
		t.Fatalf("expected failed, got %s", state.Status)
	}
	if len(state.Subtasks) != 1 {
		t.Fatalf("the second subtask must not start, got %d subtasks", len(state.Subtasks))
	}
	for _, cmd := range sess.RecentCommands(10) {
		if cmd == "touch never.txt" {
			t.Error("command after abort should not run")
		}
	}
}

func TestSkipAbandonsRemainingCommandsButCompletesSubtask(t *testing.T) {
	stub := &stubOracle{
		plan: planOf(
			oracle.Subtask{Description: "partial step", Commands: []string{"sh -c 'exit 1'", "touch after.txt"}},
		),
	}
	sess, orch := newTestHarness(t, stub)

	state := orch.RunTask(context.Background(), "partial work")

	// Structural fallback skips after the failure; the subtask itself is not
	// a failure, so the task completes.
	if state.Status != agent.TaskCompleted {
		t.Fatalf("expected completed, got %s (%s)", state.Status, state.Error)
	}
	for _, cmd := range sess.RecentCommands(10) {
		if cmd == "touch after.txt" {
			t.Error("skipped command should not run")
		}
	}
}

func TestRetryRunsFallbackExactlyOnce(t *testing.T) {
	verifyCalls := 0
	stub := &stubOracle{
		plan: planOf(
			oracle.Subtask{Description: "needs fallback", Commands: []string{"sh -c 'exit 7'"}},
		),
		verify: func(command string, result agent.CommandResult) (*oracle.Verification, error) {
			verifyCalls++
			if result.ExitCode == 0 {
				return &oracle.Verification{
					Success:    true,
					NextAction: oracle.NextAction{Action: oracle.ActionContinue, Reason: "fixed"},
				}, nil
			}
			return &oracle.Verification{
				Success: false,
				NextAction: oracle.NextAction{
					Action:          oracle.ActionRetry,
					Reason:          "try echo instead",
					FallbackCommand: "echo recovered",
				},
			}, nil
		},
	}
	sess, orch := newTestHarness(t, stub)

	state := orch.RunTask(context.Background(), "recover")

	if state.Status != agent.TaskCompleted {
		t.Fatalf("expected completed, got %s (%s)", state.Status, state.Error)
	}
	if verifyCalls != 2 {
		t.Errorf("expected 2 verifications (original + fallback), got %d", verifyCalls)
	}
	cmds := sess.RecentCommands(10)
	if len(cmds) != 2 || cmds[1] != "echo recovered" {
		t.Errorf("fallback should run exactly once: %v", cmds)
	}
}

func TestContinuePastFailureConsultsOracle(t *testing.T) {
	stub := &stubOracle{
		plan: planOf(
			oracle.Subtask{Description: "fails", Commands: []string{"sh -c 'exit 1'"}},
			oracle.Subtask{Description: "still runs", Commands: []string{"touch second.txt"}},
		),
		verify: func(command string, result agent.CommandResult) (*oracle.Verification, error) {
			if result.ExitCode == 0 {
				return &oracle.Verification{Success: true,
					NextAction: oracle.NextAction{Action: oracle.ActionContinue}}, nil
			}
			// Retry with a fallback that also fails, failing the subtask.
			return &oracle.Verification{Success: false,
				NextAction: oracle.NextAction{Action: oracle.ActionRetry, FallbackCommand: "sh -c 'exit 2'"}}, nil
		},
		continueFn: func(failed, next string) (*oracle.ContinueDecision, error) {
			return &oracle.ContinueDecision{ShouldContinue: true, Reason: "independent steps"}, nil
		},
	}
	sess, orch := newTestHarness(t, stub)

	state := orch.RunTask(context.Background(), "push on")

	if len(state.Subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(state.Subtasks))
	}
	if state.Subtasks[0].Status != agent.TaskFailed {
		t.Errorf("first subtask should fail, got %s", state.Subtasks[0].Status)
	}
	if state.Subtasks[1].Status != agent.TaskCompleted {
		t.Errorf("second subtask should complete, got %s", state.Subtasks[1].Status)
	}
	if state.Status != agent.TaskCompleted {
		t.Errorf("task should complete when its final subtask succeeds, got %s", state.Status)
	}
	found := false
	for _, cmd := range sess.RecentCommands(10) {
		if cmd == "touch second.txt" {
			found = true
		}
	}
	if !found {
		t.Error("second subtask's command should have run")
	}
}

func TestObjectiveAchievedSkipsRemainingSubtasks(t *testing.T) {
	stub := &stubOracle{
		plan: planOf(
			oracle.Subtask{Description: "the real work", Commands: []string{"echo done"}},
			oracle.Subtask{Description: "superfluous", Commands: []string{"touch extra.txt"}},
		),
		objective: func(task, subtask string) (*oracle.Objective, error) {
			return &oracle.Objective{IsComplete: true, Result: "goal met early"}, nil
		},
	}
	sess, orch := newTestHarness(t, stub)

	state := orch.RunTask(context.Background(), "quick win")

	if state.Status != agent.TaskCompleted {
		t.Fatalf("expected completed, got %s", state.Status)
	}
	if state.Output != "goal met early" {
		t.Errorf("task output should carry the objective result: %q", state.Output)
	}
	if len(state.Subtasks) != 1 {
		t.Errorf("remaining subtasks should not start, got %d", len(state.Subtasks))
	}
	for _, cmd := range sess.RecentCommands(10) {
		if cmd == "touch extra.txt" {
			t.Error("superfluous command should not run")
		}
	}
}

// scriptedApprover replays canned decisions.
type scriptedApprover struct {
	planDecisions []PlanDecision
	cmdDecisions  []CommandDecision
	planIdx       int
	cmdIdx        int
	seenTasks     []string
}

func (s *scriptedApprover) ApprovePlan(task string, plan *oracle.Plan) (PlanDecision, string) {
	s.seenTasks = append(s.seenTasks, task)
	if s.planIdx >= len(s.planDecisions) {
		return PlanProceed, ""
	}
	d := s.planDecisions[s.planIdx]
	s.planIdx++
	if d == PlanModify {
		return d, "use a different folder"
	}
	return d, ""
}

func (s *scriptedApprover) ApproveCommand(command string) (CommandDecision, string) {
	if s.cmdIdx >= len(s.cmdDecisions) {
		return CommandRun, ""
	}
	d := s.cmdDecisions[s.cmdIdx]
	s.cmdIdx++
	return d, ""
}

func TestRejectedPlanFailsTheTask(t *testing.T) {
	stub := &stubOracle{
		plan: planOf(oracle.Subtask{Description: "anything", Commands: []string{"touch no.txt"}}),
	}
	sess, _ := newTestHarness(t, stub)
	exec := executor.New(sess, 10*time.Second)
	approver := &scriptedApprover{planDecisions: []PlanDecision{PlanReject}}
	orch := New(sess, exec, stub, approver, nil)

	state := orch.RunTask(context.Background(), "denied work")

	if state.Status != agent.TaskFailed {
		t.Fatalf("expected failed, got %s", state.Status)
	}
	if len(sess.CommandLog()) != 0 {
		t.Error("no command should run after rejection")
	}
}

func TestModifiedPlanReplansWithAmendment(t *testing.T) {
	stub := &stubOracle{
		plan: planOf(oracle.Subtask{Description: "step", Commands: []string{"echo hi"}}),
	}
	sess, _ := newTestHarness(t, stub)
	exec := executor.New(sess, 10*time.Second)
	approver := &scriptedApprover{planDecisions: []PlanDecision{PlanModify, PlanProceed}}
	orch := New(sess, exec, stub, approver, nil)

	state := orch.RunTask(context.Background(), "tweak me")

	if state.Status != agent.TaskCompleted {
		t.Fatalf("expected completed, got %s", state.Status)
	}
	if len(approver.seenTasks) != 2 {
		t.Fatalf("expected a re-plan, approver saw %d plans", len(approver.seenTasks))
	}
	if approver.seenTasks[1] == approver.seenTasks[0] {
		t.Error("second plan should include the modification")
	}
}

func TestRevisionLimitNeverRunsAnUnapprovedPlan(t *testing.T) {
	// A user who keeps answering "modify" must never have a plan execute
	// behind their back: once the revision limit is hit the task cancels.
	stub := &stubOracle{
		plan: planOf(oracle.Subtask{Description: "anything", Commands: []string{"touch unapproved.txt"}}),
	}
	sess, _ := newTestHarness(t, stub)
	exec := executor.New(sess, 10*time.Second)
	approver := &scriptedApprover{planDecisions: []PlanDecision{
		PlanModify, PlanModify, PlanModify, PlanModify, PlanModify,
	}}
	orch := New(sess, exec, stub, approver, nil)

	state := orch.RunTask(context.Background(), "never settles")

	if state.Status != agent.TaskFailed {
		t.Fatalf("expected failed, got %s", state.Status)
	}
	if len(sess.CommandLog()) != 0 {
		t.Error("no command may run without an approved plan")
	}
	// Initial plan plus one presentation per allowed revision.
	if len(approver.seenTasks) != 4 {
		t.Errorf("expected 4 plan presentations, got %d", len(approver.seenTasks))
	}
}

func TestCancellationUnwindsTheTask(t *testing.T) {
	stub := &stubOracle{
		plan: planOf(
			oracle.Subtask{Description: "long wait", Commands: []string{"sleep 5"}},
			oracle.Subtask{Description: "never reached", Commands: []string{"touch late.txt"}},
		),
	}
	sess, orch := newTestHarness(t, stub)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	state := orch.RunTask(ctx, "interrupted work")

	if state.Status != agent.TaskFailed {
		t.Fatalf("expected failed, got %s", state.Status)
	}
	if state.Error != "cancelled by user" {
		t.Errorf("root task should carry the cancellation reason, got %q", state.Error)
	}
	if len(state.Subtasks) != 1 {
		t.Fatalf("the second subtask must not start, got %d subtasks", len(state.Subtasks))
	}
	if state.Subtasks[0].Status != agent.TaskFailed {
		t.Errorf("interrupted subtask should fail, got %s", state.Subtasks[0].Status)
	}
	log := sess.CommandLog()
	if len(log) != 1 {
		t.Fatalf("expected exactly 1 command record, got %d", len(log))
	}
	if log[0].ExitCode != agent.ExitInterrupted {
		t.Errorf("interrupted command should record exit %d, got %d",
			agent.ExitInterrupted, log[0].ExitCode)
	}
	if sess.Current() != nil {
		t.Error("current pointer should be clear after the unwind")
	}
}

func TestSkippedCommandDoesNotRun(t *testing.T) {
	stub := &stubOracle{
		plan: planOf(oracle.Subtask{Description: "two commands", Commands: []string{"touch skipme.txt", "touch keep.txt"}}),
	}
	sess, _ := newTestHarness(t, stub)
	exec := executor.New(sess, 10*time.Second)
	approver := &scriptedApprover{cmdDecisions: []CommandDecision{CommandSkip, CommandRun}}
	orch := New(sess, exec, stub, approver, nil)

	state := orch.RunTask(context.Background(), "selective")

	if state.Status != agent.TaskCompleted {
		t.Fatalf("expected completed, got %s", state.Status)
	}
	cmds := sess.RecentCommands(10)
	if len(cmds) != 1 || cmds[0] != "touch keep.txt" {
		t.Errorf("only the approved command should run: %v", cmds)
	}
}

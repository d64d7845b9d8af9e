package chain

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"opsagent/agent"
	"opsagent/executor"
)

func newTestChain(t *testing.T, name string) (*Chain, *executor.Executor) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests use POSIX shell semantics")
	}
	sess := agent.NewSession()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolve tempdir: %v", err)
	}
	if err := sess.ChangeDir(dir); err != nil {
		t.Fatalf("cd: %v", err)
	}
	return New(name, dir), executor.New(sess, 10*time.Second)
}

func TestStepsRunInOrder(t *testing.T) {
	c, exec := newTestChain(t, "ordered")
	c.Add("echo one >> log.txt")
	c.Add("echo two >> log.txt")
	c.Add("cat log.txt")

	report := c.Run(context.Background(), exec, false)

	if !report.Success {
		t.Fatalf("chain should succeed: %+v", report)
	}
	if report.Succeeded != 3 || report.Executed != 3 {
		t.Errorf("counts wrong: %+v", report)
	}
	last := c.Steps[2].Result
	if last == nil || last.Stdout != "one\ntwo" {
		t.Errorf("steps did not run in order: %+v", last)
	}
}

func TestErrorConditionGatesRecoveryStep(t *testing.T) {
	c, exec := newTestChain(t, "recovery")
	c.Add("sh -c 'exit 3'")
	c.AddConditional("echo recovering", "error")
	c.AddConditional("echo all-good", "success")

	report := c.Run(context.Background(), exec, false)

	if c.Steps[0].Status != StepError {
		t.Fatalf("first step should error, got %s", c.Steps[0].Status)
	}
	if c.Steps[1].Status != StepSuccess {
		t.Errorf("error-gated step should run after a failure, got %s", c.Steps[1].Status)
	}
	// The recovery step succeeded, so the success-gated step runs too.
	if c.Steps[2].Status != StepSuccess {
		t.Errorf("success-gated step should run after recovery, got %s", c.Steps[2].Status)
	}
	if report.Success {
		t.Error("a chain with a failed step should not report success")
	}
}

func TestSuccessConditionSkipsAfterUnrecoveredFailure(t *testing.T) {
	c, exec := newTestChain(t, "skip")
	c.Add("sh -c 'exit 1'")
	c.AddConditional("sh -c 'exit 2'", "error")
	c.AddConditional("echo never", "success")

	c.Run(context.Background(), exec, false)

	if c.Steps[1].Status != StepError {
		t.Fatalf("second step should run and fail, got %s", c.Steps[1].Status)
	}
	if c.Steps[2].Status != StepSkipped {
		t.Errorf("success-gated step should be skipped after a failure, got %s", c.Steps[2].Status)
	}
	if c.Steps[2].Result == nil || c.Steps[2].Result.Stderr == "" {
		t.Error("skipped steps should carry a skip marker record")
	}
}

func TestExitCodeConditions(t *testing.T) {
	c, exec := newTestChain(t, "codes")
	c.Add("sh -c 'exit 4'")
	c.AddConditional("echo matched", "exit_code == 4")
	c.AddConditional("echo unmatched", "exit_code > 10")

	c.Run(context.Background(), exec, false)

	if c.Steps[1].Status != StepSuccess {
		t.Errorf("exit_code == 4 should hold, got %s", c.Steps[1].Status)
	}
	if c.Steps[2].Status != StepSkipped {
		t.Errorf("exit_code > 10 should not hold, got %s", c.Steps[2].Status)
	}
}

func TestVariableCaptureAndExpansion(t *testing.T) {
	c, exec := newTestChain(t, "vars")
	// The capture pattern stores this step's trimmed stdout under GREETING.
	c.Add("GREETING=$(echo hello) && echo $GREETING")
	c.Add("echo ${GREETING} world")
	c.Add("echo $GREETING again")

	report := c.Run(context.Background(), exec, false)

	if !report.Success {
		t.Fatalf("chain failed: %+v", report)
	}
	if got := c.Variables["GREETING"]; got != "hello" {
		t.Fatalf("capture failed: %q", got)
	}
	if c.Steps[1].Result.Stdout != "hello world" {
		t.Errorf("braced expansion failed: %q", c.Steps[1].Result.Stdout)
	}
	if c.Steps[2].Result.Stdout != "hello again" {
		t.Errorf("bare expansion failed: %q", c.Steps[2].Result.Stdout)
	}
}

func TestFailFastStopsAtFirstError(t *testing.T) {
	c, exec := newTestChain(t, "failfast")
	c.Add("echo first")
	c.Add("sh -c 'exit 1'")
	c.Add("echo unreachable")

	report := c.Run(context.Background(), exec, true)

	if report.Success {
		t.Error("failed chain should not report success")
	}
	if c.Steps[2].Status != StepPending {
		t.Errorf("fail-fast should leave later steps pending, got %s", c.Steps[2].Status)
	}
	if report.Pending != 1 || report.Failed != 1 || report.Succeeded != 1 {
		t.Errorf("counts wrong: %+v", report)
	}
}

func TestContinueThroughRecordsEveryOutcome(t *testing.T) {
	c, exec := newTestChain(t, "continue")
	c.Add("sh -c 'exit 1'")
	c.Add("echo still-runs")

	report := c.Run(context.Background(), exec, false)

	if c.Steps[1].Status != StepSuccess {
		t.Errorf("later steps should run in continue-through mode, got %s", c.Steps[1].Status)
	}
	if report.Failed != 1 || report.Succeeded != 1 {
		t.Errorf("counts wrong: %+v", report)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	c, exec := newTestChain(t, "persist")
	c.Add("echo hi").Name = "greet"
	c.AddConditional("echo again", "success")

	report := c.Run(context.Background(), exec, false)
	if !report.Success {
		t.Fatalf("chain failed: %+v", report)
	}

	path := filepath.Join(t.TempDir(), "chain.json")
	if err := c.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Name != "persist" || len(loaded.Steps) != 2 {
		t.Fatalf("roundtrip lost data: %+v", loaded)
	}
	if loaded.Steps[0].Name != "greet" || loaded.Steps[0].Status != StepSuccess {
		t.Errorf("step state lost: %+v", loaded.Steps[0])
	}
	if loaded.Steps[1].Condition != "success" {
		t.Errorf("condition lost: %+v", loaded.Steps[1])
	}
}

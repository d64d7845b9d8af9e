package agent

import (
	"testing"
	"time"
)

func TestSubtaskIDsAreHierarchical(t *testing.T) {
	root := NewTask("3", "root")
	a := root.AddSubtask("first")
	b := root.AddSubtask("second")
	nested := a.AddSubtask("deep")

	if a.ID != "3.1" {
		t.Errorf("expected 3.1, got %s", a.ID)
	}
	if b.ID != "3.2" {
		t.Errorf("expected 3.2, got %s", b.ID)
	}
	if nested.ID != "3.1.1" {
		t.Errorf("expected 3.1.1, got %s", nested.ID)
	}
	if nested.Parent != a || a.Parent != root {
		t.Error("parent pointers not wired")
	}
}

func TestLifecycleTransitions(t *testing.T) {
	task := NewTask("1", "demo")
	if task.Status != TaskPending {
		t.Fatalf("new task should be pending, got %s", task.Status)
	}

	task.Start()
	if task.Status != TaskInProgress || task.StartTime == nil {
		t.Fatal("start should set in_progress and a start time")
	}
	if !task.Active() {
		t.Error("started task should be active")
	}

	task.Complete("done")
	if task.Status != TaskCompleted || task.EndTime == nil {
		t.Fatal("complete should set completed and an end time")
	}
	if task.Output != "done" {
		t.Errorf("output not recorded: %q", task.Output)
	}
	if !task.Status.Terminal() {
		t.Error("completed should be terminal")
	}
}

func TestFailRecordsReason(t *testing.T) {
	task := NewTask("1", "demo")
	task.Start()
	task.Fail("network unreachable")
	if task.Status != TaskFailed {
		t.Fatalf("expected failed, got %s", task.Status)
	}
	if task.Error != "network unreachable" {
		t.Errorf("reason not recorded: %q", task.Error)
	}
}

func TestAddCommandRejectedAfterTerminal(t *testing.T) {
	task := NewTask("1", "demo")
	task.Start()
	if err := task.AddCommand(CommandResult{Command: "ls"}); err != nil {
		t.Fatalf("append to active task should succeed: %v", err)
	}
	task.Complete("ok")
	if err := task.AddCommand(CommandResult{Command: "ls"}); err == nil {
		t.Error("append to completed task should be rejected")
	}
	if len(task.Commands) != 1 {
		t.Errorf("expected 1 command, got %d", len(task.Commands))
	}
}

func TestDurationDefinedOnlyWithBothTimestamps(t *testing.T) {
	task := NewTask("1", "demo")
	if _, ok := task.Duration(); ok {
		t.Error("duration should be undefined before start")
	}
	task.Start()
	if _, ok := task.Duration(); ok {
		t.Error("duration should be undefined before a terminal state")
	}
	time.Sleep(10 * time.Millisecond)
	task.Complete("ok")
	d, ok := task.Duration()
	if !ok {
		t.Fatal("duration should be defined after completion")
	}
	if d <= 0 {
		t.Errorf("expected positive duration, got %v", d)
	}
}

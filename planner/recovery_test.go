package planner

import (
	"strings"
	"testing"

	"opsagent/agent"
	"opsagent/oracle"
)

func verdict(action, fallback string) *oracle.Verification {
	return &oracle.Verification{
		NextAction: oracle.NextAction{
			Action:          action,
			Reason:          "test",
			FallbackCommand: fallback,
		},
	}
}

func TestOracleDirectiveWins(t *testing.T) {
	// An explicit abort applies even when the command succeeded.
	d := Decide(agent.CommandResult{Command: "ls", ExitCode: 0}, verdict(oracle.ActionAbort, ""))
	if d.Action != ActionAbort {
		t.Errorf("expected abort, got %s", d.Action)
	}

	// An explicit continue applies even on failure.
	d = Decide(agent.CommandResult{Command: "ls", ExitCode: 2}, verdict(oracle.ActionContinue, ""))
	if d.Action != ActionContinue {
		t.Errorf("expected continue, got %s", d.Action)
	}
}

func TestStructuralFallbackWithoutVerdict(t *testing.T) {
	d := Decide(agent.CommandResult{Command: "ls", ExitCode: 0}, nil)
	if d.Action != ActionContinue {
		t.Errorf("exit 0 without verdict should continue, got %s", d.Action)
	}

	d = Decide(agent.CommandResult{Command: "ls", ExitCode: 1}, nil)
	if d.Action != ActionSkip {
		t.Errorf("nonzero exit without verdict should skip, got %s", d.Action)
	}
	if d.Action == ActionAbort {
		t.Error("structural fallback must never abort")
	}
}

func TestMalformedActionFallsBackToStructural(t *testing.T) {
	d := Decide(agent.CommandResult{Command: "ls", ExitCode: 1}, verdict("explode", ""))
	if d.Action != ActionSkip {
		t.Errorf("unknown action should use structural fallback, got %s", d.Action)
	}
}

func TestRetryWithoutFallbackBecomesSkip(t *testing.T) {
	d := Decide(agent.CommandResult{Command: "make", ExitCode: 2}, verdict(oracle.ActionRetry, ""))
	if d.Action != ActionSkip {
		t.Errorf("retry without fallback should skip, got %s", d.Action)
	}
}

func TestIdenticalFallbackGetsDiagnosticProbe(t *testing.T) {
	d := Decide(agent.CommandResult{Command: "gitx status", ExitCode: 127}, verdict(oracle.ActionRetry, "gitx status"))
	if d.Action != ActionRetry {
		t.Fatalf("expected retry, got %s", d.Action)
	}
	if d.Fallback == "gitx status" {
		t.Fatal("identical fallback must be replaced")
	}
	if !strings.Contains(d.Fallback, "gitx") {
		t.Errorf("probe should target the failing program: %q", d.Fallback)
	}
	if !strings.HasPrefix(d.Fallback, "command -v") && !strings.HasPrefix(d.Fallback, "where") {
		t.Errorf("probe should be an existence check: %q", d.Fallback)
	}
}

func TestDistinctFallbackPassesThrough(t *testing.T) {
	d := Decide(agent.CommandResult{Command: "apt install git", ExitCode: 1}, verdict(oracle.ActionRetry, "apt-get install -y git"))
	if d.Action != ActionRetry || d.Fallback != "apt-get install -y git" {
		t.Errorf("fallback should pass through: %+v", d)
	}
}

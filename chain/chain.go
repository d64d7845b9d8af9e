// Package chain implements user-defined command chains: statically ordered
// command lists with boolean pre-conditions over the previous step's outcome
// and named-variable capture from output. Chains are an alternative to
// oracle-driven planning and share the engine's command executor.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rohanthewiz/serr"

	"opsagent/agent"
	"opsagent/executor"
)

// Status of a single step.
type Status string

const (
	StepPending Status = "pending"
	StepRunning Status = "running"
	StepSuccess Status = "success"
	StepError   Status = "error"
	StepSkipped Status = "skipped"
)

// Step is one command in a chain. Condition uses a fixed vocabulary over the
// previous step's outcome: "success", "error", or "exit_code <op> <int>"
// with op one of == != < > <= >=. An empty condition always runs.
type Step struct {
	Command   string               `json:"command"`
	Name      string               `json:"name,omitempty"`
	Condition string               `json:"condition,omitempty"`
	Timeout   int                  `json:"timeout,omitempty"` // seconds; 0 uses the chain default
	Status    Status               `json:"status"`
	Result    *agent.CommandResult `json:"result,omitempty"`
}

// Chain is a named, ordered list of steps with a chain-local variable table.
type Chain struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	WorkingDir string            `json:"working_dir"`
	Steps      []*Step           `json:"steps"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// Report aggregates the outcome of one chain run.
type Report struct {
	Name      string  `json:"name"`
	Success   bool    `json:"success"`
	Total     int     `json:"steps_total"`
	Executed  int     `json:"steps_executed"`
	Succeeded int     `json:"steps_successful"`
	Failed    int     `json:"steps_failed"`
	Skipped   int     `json:"steps_skipped"`
	Pending   int     `json:"steps_pending"`
	Steps     []*Step `json:"steps"`
}

// New creates an empty chain rooted at workingDir.
func New(name, workingDir string) *Chain {
	if name == "" {
		name = "chain-" + uuid.New().String()[:8]
	}
	return &Chain{
		ID:         uuid.New().String(),
		Name:       name,
		WorkingDir: workingDir,
		Variables:  make(map[string]string),
	}
}

// Add appends a step and returns it for further configuration.
func (c *Chain) Add(command string) *Step {
	step := &Step{Command: command, Status: StepPending}
	c.Steps = append(c.Steps, step)
	return step
}

// AddConditional appends a step guarded by a condition.
func (c *Chain) AddConditional(command, condition string) *Step {
	step := c.Add(command)
	step.Condition = condition
	return step
}

// SetVariable seeds a chain-local variable before execution.
func (c *Chain) SetVariable(name, value string) {
	if c.Variables == nil {
		c.Variables = make(map[string]string)
	}
	c.Variables[name] = value
}

var captureRe = regexp.MustCompile(`(\w+)=\$\((.*)\)`)

// Run executes the chain's steps strictly in order. In fail-fast mode the
// run stops at the first error; otherwise every step is attempted and every
// outcome recorded.
func (c *Chain) Run(ctx context.Context, exec *executor.Executor, failFast bool) Report {
	if c.Variables == nil {
		c.Variables = make(map[string]string)
	}
	anyErrors := false

	for i, step := range c.Steps {
		if !c.conditionHolds(step.Condition, i) {
			step.Status = StepSkipped
			step.Result = &agent.CommandResult{
				Command:   step.Command,
				Stderr:    "Step skipped due to condition",
				Timestamp: time.Now().Format(time.RFC3339),
			}
			continue
		}

		step.Status = StepRunning
		expanded := c.expand(step.Command)
		timeout := time.Duration(step.Timeout) * time.Second

		result := exec.RunInDir(ctx, expanded, c.WorkingDir, timeout)
		step.Result = &result

		if result.Success() {
			step.Status = StepSuccess
			c.capture(step)
		} else {
			step.Status = StepError
			anyErrors = true
			if failFast {
				break
			}
		}
	}

	return c.report(!anyErrors)
}

// conditionHolds evaluates a step's condition against the nearest preceding
// step that actually has an outcome. Unrecognized conditions default to
// true.
func (c *Chain) conditionHolds(condition string, index int) bool {
	condition = strings.TrimSpace(c.expand(condition))
	if condition == "" {
		return true
	}

	prev := c.previousOutcome(index)

	switch {
	case condition == "success":
		return prev == nil || prev.Status == StepSuccess
	case condition == "error":
		return prev != nil && prev.Status == StepError
	case strings.HasPrefix(condition, "exit_code "):
		if prev == nil || prev.Result == nil {
			return false
		}
		parts := strings.Fields(condition)
		if len(parts) != 3 {
			return false
		}
		want, err := strconv.Atoi(parts[2])
		if err != nil {
			return false
		}
		got := prev.Result.ExitCode
		switch parts[1] {
		case "==":
			return got == want
		case "!=":
			return got != want
		case "<":
			return got < want
		case ">":
			return got > want
		case "<=":
			return got <= want
		case ">=":
			return got >= want
		}
		return false
	}
	return true
}

// previousOutcome walks backwards from index to the nearest step that ran.
func (c *Chain) previousOutcome(index int) *Step {
	for i := index - 1; i >= 0; i-- {
		if c.Steps[i].Status == StepSuccess || c.Steps[i].Status == StepError {
			return c.Steps[i]
		}
	}
	return nil
}

// expand substitutes ${NAME} and $NAME variable references.
func (c *Chain) expand(text string) string {
	if text == "" || len(c.Variables) == 0 {
		return text
	}
	for name, value := range c.Variables {
		text = strings.ReplaceAll(text, "${"+name+"}", value)
		re := regexp.MustCompile(`\$` + regexp.QuoteMeta(name) + `\b`)
		text = re.ReplaceAllString(text, value)
	}
	return text
}

// capture stores a successful step's trimmed stdout when the step's literal
// command uses the NAME=$(COMMAND) form.
func (c *Chain) capture(step *Step) {
	m := captureRe.FindStringSubmatch(step.Command)
	if m == nil || step.Result == nil {
		return
	}
	c.Variables[m[1]] = strings.TrimSpace(step.Result.Stdout)
}

func (c *Chain) report(success bool) Report {
	r := Report{Name: c.Name, Success: success, Total: len(c.Steps), Steps: c.Steps}
	for _, s := range c.Steps {
		switch s.Status {
		case StepSuccess:
			r.Succeeded++
			r.Executed++
		case StepError:
			r.Failed++
			r.Executed++
		case StepSkipped:
			r.Skipped++
		case StepPending:
			r.Pending++
		}
	}
	return r
}

// Summary renders a human-readable execution report.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Command Chain: %s\n", r.Name)
	fmt.Fprintf(&b, "Results: %d succeeded, %d failed, %d skipped, %d pending\n",
		r.Succeeded, r.Failed, r.Skipped, r.Pending)
	for i, s := range r.Steps {
		icon := map[Status]string{
			StepSuccess: "ok", StepError: "FAIL", StepSkipped: "skip", StepPending: "pend",
		}[s.Status]
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("step %d", i+1)
		}
		fmt.Fprintf(&b, "%d. [%s] %s: %s\n", i+1, icon, name, s.Command)
		if s.Status == StepError && s.Result != nil && s.Result.Stderr != "" {
			stderr := s.Result.Stderr
			if len(stderr) > 200 {
				stderr = stderr[:200] + "..."
			}
			fmt.Fprintf(&b, "   Error: %s\n", stderr)
		}
	}
	return b.String()
}

// Load reads a chain definition from a JSON file.
func Load(path string) (*Chain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, serr.Wrap(err, "failed to read chain file", "path", path)
	}
	var c Chain
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, serr.Wrap(err, "failed to parse chain file", "path", path)
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	for _, s := range c.Steps {
		if s.Status == "" {
			s.Status = StepPending
		}
	}
	return &c, nil
}

// Save writes the chain definition (including any run state) to a JSON file.
func (c *Chain) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return serr.Wrap(err, "failed to marshal chain")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return serr.Wrap(err, "failed to write chain file", "path", path)
	}
	return nil
}

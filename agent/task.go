package agent

import (
	"fmt"
	"time"

	"github.com/rohanthewiz/serr"
)

// TaskStatus is the lifecycle state of a task node.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskState is a node in the task/subtask tree. Ids are hierarchical and
// immutable: a root task gets a 1-based ordinal ("3"), each subtask appends
// "." plus its 1-based sibling index ("3.1", "3.1.2").
type TaskState struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Status      TaskStatus      `json:"status"`
	StartTime   *time.Time      `json:"start_time,omitempty"`
	EndTime     *time.Time      `json:"end_time,omitempty"`
	Subtasks    []*TaskState    `json:"subtasks,omitempty"`
	Parent      *TaskState      `json:"-"`
	Commands    []CommandResult `json:"commands,omitempty"`
	Output      string          `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// NewTask creates a pending task node.
func NewTask(id, description string) *TaskState {
	return &TaskState{
		ID:          id,
		Description: description,
		Status:      TaskPending,
	}
}

// Start transitions the task to in_progress and stamps its start time.
func (t *TaskState) Start() {
	now := time.Now()
	t.Status = TaskInProgress
	t.StartTime = &now
	t.EndTime = nil
}

// Complete transitions the task to its terminal completed state.
func (t *TaskState) Complete(output string) {
	now := time.Now()
	t.Status = TaskCompleted
	t.EndTime = &now
	t.Output = output
}

// Fail transitions the task to its terminal failed state with a reason.
func (t *TaskState) Fail(reason string) {
	now := time.Now()
	t.Status = TaskFailed
	t.EndTime = &now
	t.Error = reason
}

// AddSubtask appends a child node whose id extends this task's id with the
// next 1-based sibling index.
func (t *TaskState) AddSubtask(description string) *TaskState {
	sub := NewTask(fmt.Sprintf("%s.%d", t.ID, len(t.Subtasks)+1), description)
	sub.Parent = t
	t.Subtasks = append(t.Subtasks, sub)
	return sub
}

// AddCommand appends a result record to the task's command log. Appending to
// a node already in a terminal state is rejected.
func (t *TaskState) AddCommand(result CommandResult) error {
	if t.Status.Terminal() {
		return serr.New("cannot append command to task in terminal state", "task", t.ID, "status", string(t.Status))
	}
	t.Commands = append(t.Commands, result)
	return nil
}

// Duration returns the elapsed time between start and end, and whether it is
// defined. It is defined only when both timestamps are set.
func (t *TaskState) Duration() (time.Duration, bool) {
	if t.StartTime == nil || t.EndTime == nil {
		return 0, false
	}
	return t.EndTime.Sub(*t.StartTime), true
}

// Active reports whether the task is currently in progress.
func (t *TaskState) Active() bool {
	return t.Status == TaskInProgress
}

func (t *TaskState) String() string {
	return fmt.Sprintf("[%s] %s: %s", t.Status, t.ID, t.Description)
}

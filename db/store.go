package db

import (
	"time"

	"github.com/rohanthewiz/serr"

	"opsagent/agent"
)

// Store handles session and command persistence.
type Store struct {
	db *DB
}

// NewStore creates a Store over an open database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// OpenSession records the start of a session.
func (s *Store) OpenSession(sessionID, workingDir string) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, working_dir) VALUES (?, ?)`,
		sessionID, workingDir,
	)
	return serr.Wrap(err, "failed to record session")
}

// CloseSession stamps the session's end time.
func (s *Store) CloseSession(sessionID string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET ended_at = CURRENT_TIMESTAMP WHERE id = ?`,
		sessionID,
	)
	return serr.Wrap(err, "failed to close session")
}

// SaveCommand appends one command result to the session's log.
func (s *Store) SaveCommand(sessionID string, result agent.CommandResult) error {
	_, err := s.db.Exec(
		`INSERT INTO commands (session_id, command, exit_code, stdout, stderr, execution_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, result.Command, result.ExitCode,
		result.Stdout, result.Stderr, result.ExecutionTime,
	)
	return serr.Wrap(err, "failed to save command")
}

// SaveTask records a task's terminal state.
func (s *Store) SaveTask(sessionID string, task *agent.TaskState) error {
	var started, ended interface{}
	if task.StartTime != nil {
		started = *task.StartTime
	}
	if task.EndTime != nil {
		ended = *task.EndTime
	}
	detail := task.Output
	if task.Error != "" {
		detail = task.Error
	}
	_, err := s.db.Exec(
		`INSERT INTO tasks (session_id, task_id, description, status, detail, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, task.ID, task.Description, string(task.Status), detail, started, ended,
	)
	return serr.Wrap(err, "failed to save task")
}

// CommandRow is one persisted command log entry.
type CommandRow struct {
	SessionID     string    `json:"session_id"`
	Command       string    `json:"command"`
	ExitCode      int       `json:"exit_code"`
	ExecutionTime float64   `json:"execution_time"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// RecentCommands returns the most recent command log entries, newest first.
func (s *Store) RecentCommands(limit int) ([]CommandRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT session_id, command, exit_code, execution_time, executed_at
		 FROM commands ORDER BY executed_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, serr.Wrap(err, "failed to query commands")
	}
	defer rows.Close()

	var out []CommandRow
	for rows.Next() {
		var r CommandRow
		if err := rows.Scan(&r.SessionID, &r.Command, &r.ExitCode, &r.ExecutionTime, &r.ExecutedAt); err != nil {
			return nil, serr.Wrap(err, "failed to scan command row")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TaskRow is one persisted task outcome.
type TaskRow struct {
	SessionID   string `json:"session_id"`
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Detail      string `json:"detail"`
}

// RecentTasks returns the most recent task outcomes, newest first.
func (s *Store) RecentTasks(limit int) ([]TaskRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT session_id, task_id, description, status, detail
		 FROM tasks ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, serr.Wrap(err, "failed to query tasks")
	}
	defer rows.Close()

	var out []TaskRow
	for rows.Next() {
		var r TaskRow
		if err := rows.Scan(&r.SessionID, &r.TaskID, &r.Description, &r.Status, &r.Detail); err != nil {
			return nil, serr.Wrap(err, "failed to scan task row")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

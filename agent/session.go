package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rohanthewiz/serr"
)

// DefaultErrorRingSize bounds the recent-error ring.
const DefaultErrorRingSize = 5

// Message is one entry in the conversation log.
type Message struct {
	Role      string `json:"role"` // user, agent, system
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// CommandError pairs a failed command with its error text.
type CommandError struct {
	Command string
	Error   string
}

// Session is the explicit, session-scoped aggregate the whole engine works
// against. It is constructed once at startup and passed by reference; there
// is no ambient module state. The orchestrator and executor mutate it on a
// single control thread; the mutex only guards concurrent readers such as
// the status server.
type Session struct {
	mu sync.RWMutex

	ID        string
	StartedAt time.Time

	current      *TaskState   // weak pointer into the tree; nil when idle
	taskHistory  []*TaskState // root tasks, append-only
	conversation []Message
	commandLog   []CommandResult // flat, append-only, across all tasks
	recentErrors []CommandError  // most-recent-first, bounded
	errorRingCap int

	workingDir string
	fileAccess map[string]time.Time
}

// NewSession creates a session rooted at the process working directory.
func NewSession() *Session {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return &Session{
		ID:           uuid.New().String(),
		StartedAt:    time.Now(),
		errorRingCap: DefaultErrorRingSize,
		workingDir:   wd,
		fileAccess:   make(map[string]time.Time),
	}
}

// AddUserMessage appends a user turn to the conversation log.
func (s *Session) AddUserMessage(text string) { s.addMessage("user", text) }

// AddAgentMessage appends an agent turn to the conversation log.
func (s *Session) AddAgentMessage(text string) { s.addMessage("agent", text) }

// AddSystemMessage appends a system note to the conversation log.
func (s *Session) AddSystemMessage(text string) { s.addMessage("system", text) }

func (s *Session) addMessage(role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = append(s.conversation, Message{
		Role:      role,
		Content:   text,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// StartTask creates a new root task, marks it in progress, and makes it the
// current task.
func (s *Session) StartTask(description string) *TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := NewTask(fmt.Sprintf("%d", len(s.taskHistory)+1), description)
	task.Start()
	s.current = task
	s.taskHistory = append(s.taskHistory, task)
	return task
}

// StartSubtask creates and starts a child of the current task and moves the
// current pointer to it. It fails when no task is active.
func (s *Session) StartSubtask(description string) (*TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, serr.New("no active task to attach subtask to")
	}
	sub := s.current.AddSubtask(description)
	sub.Start()
	s.current = sub
	return sub, nil
}

// CompleteCurrent marks the current task completed and returns the pointer to
// its parent (nil for a root task). No-op when nothing is active.
func (s *Session) CompleteCurrent(output string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	s.current.Complete(output)
	s.current = s.current.Parent
}

// FailCurrent marks the current task failed and returns the pointer to its
// parent (nil for a root task).
func (s *Session) FailCurrent(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	s.current.Fail(reason)
	s.current = s.current.Parent
}

// Current returns the current task pointer, nil when no task is active.
func (s *Session) Current() *TaskState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// TaskHistory returns the root tasks in creation order.
func (s *Session) TaskHistory() []*TaskState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*TaskState, len(s.taskHistory))
	copy(out, s.taskHistory)
	return out
}

// AddCommand appends a result record to the global command log and, when a
// task is active and not terminal, to that task's log as well.
func (s *Session) AddCommand(result CommandResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commandLog = append(s.commandLog, result)
	if s.current != nil {
		_ = s.current.AddCommand(result)
	}
}

// CommandLog returns a copy of the flat command log.
func (s *Session) CommandLog() []CommandResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CommandResult, len(s.commandLog))
	copy(out, s.commandLog)
	return out
}

// SetErrorRingCap resizes the recent-error ring. Non-positive values keep
// the default.
func (s *Session) SetErrorRingCap(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorRingCap = n
	if len(s.recentErrors) > n {
		s.recentErrors = s.recentErrors[:n]
	}
}

// RecordError pushes a (command, error) pair onto the recent-error ring,
// most recent first, evicting the oldest beyond capacity.
func (s *Session) RecordError(command, errText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recentErrors = append([]CommandError{{Command: command, Error: errText}}, s.recentErrors...)
	if len(s.recentErrors) > s.errorRingCap {
		s.recentErrors = s.recentErrors[:s.errorRingCap]
	}
}

// RecentErrors returns up to n recent errors, most recent first.
func (s *Session) RecentErrors(n int) []CommandError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.recentErrors) {
		n = len(s.recentErrors)
	}
	out := make([]CommandError, n)
	copy(out, s.recentErrors[:n])
	return out
}

// WorkingDir returns the session's current working directory.
func (s *Session) WorkingDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workingDir
}

// ChangeDir resolves path against the current working directory and switches
// to it. "~" and an empty path mean the user home directory.
func (s *Session) ChangeDir(path string) error {
	if path == "" || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return serr.Wrap(err, "failed to resolve home directory")
		}
		path = home
	} else if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return serr.Wrap(err, "failed to resolve home directory")
		}
		path = filepath.Join(home, path[2:])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.workingDir, path)
	}
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return serr.Wrap(err, "directory not found", "path", path)
	}
	if !info.IsDir() {
		return serr.New("not a directory", "path", path)
	}
	s.workingDir = path
	return nil
}

// RecordFileAccess stamps the last-accessed time for a path.
func (s *Session) RecordFileAccess(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileAccess[path] = time.Now()
}

// RecentFiles returns up to n most recently accessed paths.
func (s *Session) RecentFiles(n int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type access struct {
		path string
		at   time.Time
	}
	all := make([]access, 0, len(s.fileAccess))
	for p, at := range s.fileAccess {
		all = append(all, access{p, at})
	}
	// newest first
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].at.After(all[i].at) {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	if n > len(all) {
		n = len(all)
	}
	out := make([]string, 0, n)
	for _, a := range all[:n] {
		out = append(out, a.path)
	}
	return out
}

// RecentCommands returns up to n most recent command texts from the global log.
func (s *Session) RecentCommands(n int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.commandLog) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(s.commandLog)-start)
	for _, r := range s.commandLog[start:] {
		out = append(out, r.Command)
	}
	return out
}

// Conversation returns a copy of the conversation log.
func (s *Session) Conversation() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.conversation))
	copy(out, s.conversation)
	return out
}

// Summary renders the context overview shown by the `context` command.
func (s *Session) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	currentDesc := "None"
	if s.current != nil {
		currentDesc = s.current.Description
	}
	recentFiles := "None"
	if len(s.fileAccess) > 0 {
		paths := make([]string, 0, len(s.fileAccess))
		for p := range s.fileAccess {
			paths = append(paths, p)
		}
		if len(paths) > 5 {
			paths = paths[len(paths)-5:]
		}
		recentFiles = strings.Join(paths, ", ")
	}
	return fmt.Sprintf(`Current Directory: %s
Current Task: %s
Total Tasks: %d
Command History: %d commands
Recent Files: %s
Recent Errors: %d
Session Duration: %s`,
		s.workingDir,
		currentDesc,
		len(s.taskHistory),
		len(s.commandLog),
		recentFiles,
		len(s.recentErrors),
		time.Since(s.StartedAt).Round(time.Second),
	)
}

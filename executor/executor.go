// Package executor runs one shell command at a time on behalf of the engine,
// streaming output, enforcing a deadline, and normalizing every outcome into
// a result record. It never returns an error to the caller: launch failures,
// timeouts, and cancellations are all represented in the record itself.
package executor

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rohanthewiz/logger"

	"opsagent/agent"
)

// DefaultTimeout bounds a command when no explicit timeout is configured.
const DefaultTimeout = 30 * time.Second

// LineFunc receives each output line as it is read. stream is "stdout" or
// "stderr". It may be invoked from two goroutines; the executor serializes
// calls.
type LineFunc func(stream, line string)

// Executor executes commands in the session's working directory.
type Executor struct {
	sess    *agent.Session
	timeout time.Duration

	lineMu    sync.Mutex
	onLine    LineFunc
	onCommand func(command string) string
}

// New creates an executor bound to a session. A non-positive timeout falls
// back to DefaultTimeout.
func New(sess *agent.Session, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{sess: sess, timeout: timeout}
}

// OnLine registers a callback for live output display.
func (e *Executor) OnLine(fn LineFunc) {
	e.lineMu.Lock()
	e.onLine = fn
	e.lineMu.Unlock()
}

// OnCommand registers a hook that may rewrite each command before it
// launches. The rewritten text is what executes and what the result record
// carries.
func (e *Executor) OnCommand(fn func(command string) string) {
	e.lineMu.Lock()
	e.onCommand = fn
	e.lineMu.Unlock()
}

func (e *Executor) rewrite(command string) string {
	e.lineMu.Lock()
	fn := e.onCommand
	e.lineMu.Unlock()
	if fn == nil {
		return command
	}
	return strings.TrimSpace(fn(command))
}

func (e *Executor) emit(stream, line string) {
	e.lineMu.Lock()
	fn := e.onLine
	if fn != nil {
		fn(stream, line)
	}
	e.lineMu.Unlock()
}

// Run executes a command with the default timeout in the session working
// directory.
func (e *Executor) Run(ctx context.Context, command string) agent.CommandResult {
	return e.RunWithTimeout(ctx, command, e.timeout)
}

// RunWithTimeout executes a command with an explicit timeout.
func (e *Executor) RunWithTimeout(ctx context.Context, command string, timeout time.Duration) agent.CommandResult {
	return e.RunInDir(ctx, command, e.sess.WorkingDir(), timeout)
}

// RunInDir executes a command in an explicit directory. Used by command
// chains that carry their own working directory.
func (e *Executor) RunInDir(ctx context.Context, command string, dir string, timeout time.Duration) agent.CommandResult {
	command = e.rewrite(strings.TrimSpace(command))
	result := agent.NewCommandResult(command)
	start := time.Now()

	if command == "" {
		result.ExitCode = 1
		result.Stderr = "empty command"
		return result
	}

	// The directory-change built-in never spawns a process; it mutates the
	// session working directory in-process.
	if command == "cd" || strings.HasPrefix(command, "cd ") {
		return e.changeDir(command, start)
	}

	if timeout <= 0 {
		timeout = e.timeout
	}

	cmd := shellCommand(command)
	cmd.Dir = dir
	setProcGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return e.launchFailure(result, start, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return e.launchFailure(result, start, err)
	}

	if err := cmd.Start(); err != nil {
		return e.launchFailure(result, start, err)
	}

	// Both streams are drained concurrently so a command flooding one stream
	// cannot block the other.
	var stdoutLines, stderrLines []string
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			stdoutLines = append(stdoutLines, line)
			e.emit("stdout", line)
		}
	}()
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			stderrLines = append(stderrLines, line)
			e.emit("stderr", line)
		}
	}()

	var timedOut, interrupted atomic.Bool
	watchdog := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		killTree(cmd)
	})
	waitDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			interrupted.Store(true)
			killTree(cmd)
		case <-waitDone:
		}
	}()

	wg.Wait()
	waitErr := cmd.Wait()
	// Snapshot the flags the moment the process is reaped: a cancellation
	// arriving while the watcher goroutine is still being torn down must not
	// relabel a command that already completed.
	wasTimedOut := timedOut.Load()
	wasInterrupted := interrupted.Load()
	watchdog.Stop()
	close(waitDone)

	result.Stdout = strings.Join(stdoutLines, "\n")
	result.Stderr = strings.Join(stderrLines, "\n")
	result.ExecutionTime = time.Since(start).Seconds()

	switch {
	case wasTimedOut:
		result.ExitCode = agent.ExitTimeout
		result.Stderr = appendLine(result.Stderr, fmt.Sprintf("Command timed out after %s", timeout))
	case wasInterrupted:
		result.ExitCode = agent.ExitInterrupted
		result.Stderr = appendLine(result.Stderr, "Command interrupted by user")
	case waitErr == nil:
		result.ExitCode = 0
	default:
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
			result.Stderr = appendLine(result.Stderr, waitErr.Error())
		}
	}

	e.finish(result)
	return result
}

// changeDir handles the in-process cd built-in.
func (e *Executor) changeDir(command string, start time.Time) agent.CommandResult {
	result := agent.NewCommandResult(command)
	path := strings.TrimSpace(strings.TrimPrefix(command, "cd"))
	if err := e.sess.ChangeDir(path); err != nil {
		result.ExitCode = 1
		result.Stderr = err.Error()
		result.ExecutionTime = time.Since(start).Seconds()
		e.finish(result)
		return result
	}
	result.ExitCode = 0
	result.Stdout = "Changed directory to " + e.sess.WorkingDir()
	result.ExecutionTime = time.Since(start).Seconds()
	return result
}

// launchFailure converts a spawn error into a result record.
func (e *Executor) launchFailure(result agent.CommandResult, start time.Time, err error) agent.CommandResult {
	logger.Warn("Command failed to launch", "command", result.Command, "error", err.Error())
	result.ExitCode = 1
	result.Stderr = err.Error()
	result.ExecutionTime = time.Since(start).Seconds()
	e.finish(result)
	return result
}

// finish records a failed result on the session's recent-error ring.
func (e *Executor) finish(result agent.CommandResult) {
	if result.ExitCode != 0 && result.Stderr != "" {
		e.sess.RecordError(result.Command, result.Stderr)
	}
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	return s + "\n" + line
}

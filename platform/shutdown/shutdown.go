// Package shutdown coordinates graceful termination for the long-running
// server modes: hooks registered here (database close, session end stamps)
// run when SIGINT or SIGTERM arrives, bounded by a grace period.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rohanthewiz/logger"
)

const gracePeriod = 10 * time.Second

// HookFunc is one cleanup action. It receives the remaining grace period.
type HookFunc func(grace time.Duration) error

var (
	mu         sync.Mutex
	hooks      []HookFunc
	inShutdown bool
)

// RegisterHook adds a cleanup action to run at shutdown.
func RegisterHook(fn HookFunc) {
	mu.Lock()
	defer mu.Unlock()
	hooks = append(hooks, fn)
}

// InProgress reports whether a shutdown has been initiated.
func InProgress() bool {
	mu.Lock()
	defer mu.Unlock()
	return inShutdown
}

// Watch installs the signal handler. The returned channel closes once all
// hooks have run (or the grace period expired) after a termination signal.
func Watch() <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer close(done)
		sig := <-sigChan
		logger.Info("Received shutdown signal", "signal", sig.String())

		mu.Lock()
		inShutdown = true
		pending := make([]HookFunc, len(hooks))
		copy(pending, hooks)
		mu.Unlock()

		var wg sync.WaitGroup
		for i, hook := range pending {
			wg.Add(1)
			go func(n int, fn HookFunc) {
				defer wg.Done()
				if err := fn(gracePeriod); err != nil {
					logger.LogErr(err, "shutdown hook failed", "hook", n)
				}
			}(i, hook)
		}

		finished := make(chan struct{})
		go func() {
			wg.Wait()
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown hooks completed")
		case <-time.After(gracePeriod):
			logger.Warn("Shutdown hooks timed out", "grace", gracePeriod.String())
		}
	}()

	return done
}

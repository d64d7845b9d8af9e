// Package plugin defines the extension interface for the engine and a
// registry that dispatches lifecycle hooks around command execution.
// Plugins are compiled in and registered at startup.
package plugin

import (
	"sort"
	"sync"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"

	"opsagent/agent"
)

// Plugin is an engine extension. OnCommandPre may rewrite the command before
// execution; OnCommandPost observes the result.
type Plugin interface {
	// Name identifies the plugin; registration fails on duplicates.
	Name() string
	// Initialize is called once at registration.
	Initialize() error
	// Commands returns extra REPL commands this plugin handles, by name.
	Commands() map[string]Command
	// OnCommandPre runs before each command; the returned string replaces
	// the command text. Return the input unchanged to pass through.
	OnCommandPre(command string) string
	// OnCommandPost runs after each command completes.
	OnCommandPost(result agent.CommandResult)
	// Cleanup is called at shutdown.
	Cleanup() error
}

// Command is a plugin-provided REPL command.
type Command struct {
	Description string
	Run         func(args []string) (string, error)
}

// Registry holds the active plugins.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register initializes and adds a plugin.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, exists := r.plugins[name]; exists {
		return serr.New("plugin already registered", "name", name)
	}
	if err := p.Initialize(); err != nil {
		return serr.Wrap(err, "plugin initialization failed", "name", name)
	}
	r.plugins[name] = p
	r.order = append(r.order, name)
	logger.Info("Plugin registered", "name", name)
	return nil
}

// Names returns the registered plugin names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Commands aggregates every plugin's extra commands, sorted by name.
func (r *Registry) Commands() map[string]Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Command)
	for _, name := range r.order {
		for cmd, def := range r.plugins[name].Commands() {
			out[cmd] = def
		}
	}
	return out
}

// CommandNames returns the aggregated command names, sorted.
func (r *Registry) CommandNames() []string {
	cmds := r.Commands()
	names := make([]string, 0, len(cmds))
	for n := range cmds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RunPre threads the command through every plugin's pre-hook in registration
// order.
func (r *Registry) RunPre(command string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		command = r.plugins[name].OnCommandPre(command)
	}
	return command
}

// RunPost notifies every plugin of a completed command.
func (r *Registry) RunPost(result agent.CommandResult) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		r.plugins[name].OnCommandPost(result)
	}
}

// Cleanup shuts down all plugins, logging failures rather than stopping.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.order {
		if err := r.plugins[name].Cleanup(); err != nil {
			logger.LogErr(err, "plugin cleanup failed", "name", name)
		}
	}
	r.plugins = make(map[string]Plugin)
	r.order = nil
}

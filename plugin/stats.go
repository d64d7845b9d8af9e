package plugin

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"opsagent/agent"
)

// StatsPlugin tracks per-session command statistics and exposes a `stats`
// REPL command.
type StatsPlugin struct {
	mu        sync.Mutex
	total     int
	failed    int
	totalTime float64
	byProgram map[string]int
}

// NewStatsPlugin creates the statistics plugin.
func NewStatsPlugin() *StatsPlugin {
	return &StatsPlugin{byProgram: make(map[string]int)}
}

func (p *StatsPlugin) Name() string { return "stats" }

func (p *StatsPlugin) Initialize() error { return nil }

func (p *StatsPlugin) Commands() map[string]Command {
	return map[string]Command{
		"stats": {
			Description: "Show command execution statistics for this session",
			Run: func(args []string) (string, error) {
				return p.report(), nil
			},
		},
	}
}

func (p *StatsPlugin) OnCommandPre(command string) string { return command }

func (p *StatsPlugin) OnCommandPost(result agent.CommandResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total++
	p.totalTime += result.ExecutionTime
	if !result.Success() {
		p.failed++
	}
	if fields := strings.Fields(result.Command); len(fields) > 0 {
		p.byProgram[fields[0]]++
	}
}

func (p *StatsPlugin) Cleanup() error { return nil }

func (p *StatsPlugin) report() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total == 0 {
		return "No commands executed yet"
	}

	type count struct {
		program string
		n       int
	}
	top := make([]count, 0, len(p.byProgram))
	for prog, n := range p.byProgram {
		top = append(top, count{prog, n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].n != top[j].n {
			return top[i].n > top[j].n
		}
		return top[i].program < top[j].program
	})
	if len(top) > 5 {
		top = top[:5]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Commands: %d total, %d failed\n", p.total, p.failed)
	fmt.Fprintf(&b, "Total execution time: %.2fs\n", p.totalTime)
	b.WriteString("Most used:\n")
	for _, c := range top {
		fmt.Fprintf(&b, "  %4d  %s\n", c.n, c.program)
	}
	return strings.TrimRight(b.String(), "\n")
}

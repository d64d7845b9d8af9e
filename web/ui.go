package web

import (
	"fmt"

	"github.com/rohanthewiz/element"
	"github.com/rohanthewiz/rweb"

	"opsagent/agent"
)

// dashboardHandler serves the status page using the element package.
func (s *Server) dashboardHandler(c rweb.Context) error {
	return c.WriteHTML(s.generateDashboard())
}

func (s *Server) generateDashboard() string {
	b := element.NewBuilder()

	tasks := s.sess.TaskHistory()
	commands := s.sess.CommandLog()
	if len(commands) > 30 {
		commands = commands[len(commands)-30:]
	}

	b.Html().R(
		b.Head().R(
			b.Title().T("OpsAgent - Session Status"),
			b.Meta("charset", "UTF-8"),
			b.Meta("name", "viewport", "content", "width=device-width, initial-scale=1.0"),
			b.Meta("http-equiv", "refresh", "content", "5"),
			b.Style().T(dashboardCSS),
		),
		b.Body().R(
			b.Header().R(
				b.H1().T("OpsAgent"),
				b.P("class", "meta").T(fmt.Sprintf("Session %s | %s", s.sess.ID[:8], s.sess.WorkingDir())),
			),
			b.Main().R(
				b.Section().R(
					b.H2().T("Tasks"),
					func() any {
						if len(tasks) == 0 {
							b.P("class", "empty").T("No tasks yet")
						}
						for _, t := range tasks {
							s.renderTask(b, t)
						}
						return nil
					}(),
				),
				b.Section().R(
					b.H2().T("Recent Commands"),
					b.Table().R(
						b.Tr().R(
							b.Th().T("Command"),
							b.Th().T("Exit"),
							b.Th().T("Time"),
						),
						func() any {
							for _, r := range commands {
								class := "ok"
								if !r.Success() {
									class = "fail"
								}
								b.Tr("class", class).R(
									b.Td().T(r.Command),
									b.Td().T(fmt.Sprintf("%d", r.ExitCode)),
									b.Td().T(fmt.Sprintf("%.2fs", r.ExecutionTime)),
								)
							}
							return nil
						}(),
					),
				),
			),
		),
	)
	return b.String()
}

func (s *Server) renderTask(b *element.Builder, t *agent.TaskState) {
	b.Div("class", "task "+string(t.Status)).R(
		b.Span("class", "task-id").T(t.ID),
		b.Span("class", "task-desc").T(t.Description),
		b.Span("class", "task-status").T(string(t.Status)),
		func() any {
			for _, sub := range t.Subtasks {
				s.renderTask(b, sub)
			}
			return nil
		}(),
	)
}

const dashboardCSS = `
body { font-family: system-ui, sans-serif; margin: 0; background: #1a1b26; color: #c0caf5; }
header { padding: 1rem 2rem; border-bottom: 1px solid #2f334d; }
h1 { margin: 0; font-size: 1.4rem; }
.meta { color: #565f89; margin: 0.25rem 0 0; font-size: 0.85rem; }
main { padding: 1rem 2rem; }
section { margin-bottom: 2rem; }
.task { padding: 0.4rem 0.8rem; margin: 0.3rem 0 0.3rem 1rem; border-left: 2px solid #2f334d; }
.task.completed { border-color: #9ece6a; }
.task.failed { border-color: #f7768e; }
.task.in_progress { border-color: #e0af68; }
.task-id { color: #565f89; margin-right: 0.6rem; font-family: monospace; }
.task-status { float: right; font-size: 0.8rem; color: #565f89; }
table { border-collapse: collapse; width: 100%; font-size: 0.9rem; }
th, td { text-align: left; padding: 0.3rem 0.6rem; border-bottom: 1px solid #2f334d; }
td:first-child { font-family: monospace; }
tr.fail td { color: #f7768e; }
.empty { color: #565f89; }
`

// Package web serves a read-only status dashboard over the running session:
// the task tree, the command log, and persisted history.
package web

import (
	"github.com/rohanthewiz/rweb"
	"github.com/rohanthewiz/serr"

	"opsagent/agent"
	"opsagent/db"
)

// Server wraps the HTTP dashboard over a live session.
type Server struct {
	sess  *agent.Session
	store *db.Store // may be nil when persistence is unavailable
	addr  string
}

// NewServer creates the dashboard server. store may be nil.
func NewServer(sess *agent.Session, store *db.Store, addr string) *Server {
	return &Server{sess: sess, store: store, addr: addr}
}

// Run starts the HTTP server and blocks.
func (s *Server) Run() error {
	srv := rweb.NewServer(rweb.ServerOptions{
		Address: s.addr,
		Verbose: true,
	})

	// Add middleware for request logging
	srv.Use(rweb.RequestInfo)

	s.setupRoutes(srv)

	return srv.Run()
}

func (s *Server) setupRoutes(srv *rweb.Server) {
	// Root endpoint - serves the dashboard UI
	srv.Get("/", s.dashboardHandler)

	// API endpoints
	srv.Get("/api/session", s.sessionHandler)
	srv.Get("/api/tasks", s.tasksHandler)
	srv.Get("/api/commands", s.commandsHandler)
	srv.Get("/api/errors", s.errorsHandler)

	// Persisted history, spanning past sessions. Empty when the database is
	// unavailable.
	srv.Get("/api/history", s.historyHandler)
	srv.Get("/api/task-history", s.taskHistoryHandler)
}

func (s *Server) sessionHandler(c rweb.Context) error {
	return c.WriteJSON(map[string]interface{}{
		"id":          s.sess.ID,
		"started_at":  s.sess.StartedAt,
		"working_dir": s.sess.WorkingDir(),
	})
}

func (s *Server) tasksHandler(c rweb.Context) error {
	return c.WriteJSON(s.sess.TaskHistory())
}

func (s *Server) commandsHandler(c rweb.Context) error {
	log := s.sess.CommandLog()
	if len(log) > 50 {
		log = log[len(log)-50:]
	}
	return c.WriteJSON(log)
}

func (s *Server) errorsHandler(c rweb.Context) error {
	return c.WriteJSON(s.sess.RecentErrors(5))
}

func (s *Server) historyHandler(c rweb.Context) error {
	rows := []db.CommandRow{}
	if s.store != nil {
		loaded, err := s.store.RecentCommands(50)
		if err != nil {
			return serr.Wrap(err, "failed to load command history")
		}
		if loaded != nil {
			rows = loaded
		}
	}
	return c.WriteJSON(rows)
}

func (s *Server) taskHistoryHandler(c rweb.Context) error {
	rows := []db.TaskRow{}
	if s.store != nil {
		loaded, err := s.store.RecentTasks(50)
		if err != nil {
			return serr.Wrap(err, "failed to load task history")
		}
		if loaded != nil {
			rows = loaded
		}
	}
	return c.WriteJSON(rows)
}

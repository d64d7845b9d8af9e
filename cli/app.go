package cli

import (
	"fmt"
	"os"

	"github.com/rohanthewiz/logger"

	"opsagent/agent"
	"opsagent/config"
	"opsagent/db"
	"opsagent/executor"
	"opsagent/history"
	"opsagent/oracle"
	"opsagent/plugin"
)

// app bundles the wired engine components shared by every subcommand.
type app struct {
	cfg     *config.Config
	sess    *agent.Session
	exec    *executor.Executor
	oracle  oracle.Client
	hist    *history.Store
	store   *db.Store // nil when the database is unavailable
	plugins *plugin.Registry
	autoRun bool

	persisted int // command-log entries already flushed
}

// newApp builds the engine from configuration. Persistence failures degrade
// to logging; a missing API key still yields a working engine on structural
// fallbacks.
func newApp() *app {
	cfg := config.Get()

	autoRun := cfg.AutoRun
	if f := rootCmd.PersistentFlags().Lookup("auto"); f != nil && f.Changed {
		autoRun = f.Value.String() == "true"
	}
	model := cfg.Model
	if f := rootCmd.PersistentFlags().Lookup("model"); f != nil && f.Changed && f.Value.String() != "" {
		model = f.Value.String()
	}

	sess := agent.NewSession()
	sess.SetErrorRingCap(cfg.ErrorRing)
	exec := executor.New(sess, cfg.CommandTimeout)

	if cfg.GeminiAPIKey == "" {
		logger.Warn("No API key configured; planning falls back to direct execution",
			"hint", "set GEMINI_API_KEY or OPSAGENT_GEMINI_API_KEY")
	}
	client := oracle.NewGeminiClient(cfg.GeminiAPIKey, model, "")

	hist, err := history.Open(cfg.HistoryFile, cfg.MaxHistory)
	if err != nil {
		logger.LogErr(err, "could not open history file, continuing without persisted history")
	}

	var store *db.Store
	if database, err := db.GetDB(cfg.DBPath); err != nil {
		logger.LogErr(err, "database unavailable, continuing without persistence")
	} else {
		store = db.NewStore(database)
		if err := store.OpenSession(sess.ID, sess.WorkingDir()); err != nil {
			logger.LogErr(err, "could not record session start")
		}
	}

	plugins := plugin.NewRegistry()
	if err := plugins.Register(plugin.NewStatsPlugin()); err != nil {
		logger.LogErr(err, "could not register stats plugin")
	}
	// Plugins see (and may rewrite) every command before it launches.
	exec.OnCommand(plugins.RunPre)

	return &app{
		cfg:     cfg,
		sess:    sess,
		exec:    exec,
		oracle:  client,
		hist:    hist,
		store:   store,
		plugins: plugins,
		autoRun: autoRun,
	}
}

// streamOutput mirrors command output lines to the terminal as they arrive.
func (a *app) streamOutput() {
	a.exec.OnLine(func(stream, line string) {
		if stream == "stderr" {
			fmt.Fprintln(os.Stderr, line)
			return
		}
		fmt.Println(line)
	})
}

// flush persists command-log entries added since the last flush, and runs
// plugin post-hooks on them.
func (a *app) flush() {
	log := a.sess.CommandLog()
	for _, result := range log[a.persisted:] {
		a.plugins.RunPost(result)
		if a.hist != nil {
			if err := a.hist.Append(result); err != nil {
				logger.LogErr(err, "could not append to history")
			}
		}
		if a.store != nil {
			if err := a.store.SaveCommand(a.sess.ID, result); err != nil {
				logger.LogErr(err, "could not persist command")
			}
		}
	}
	a.persisted = len(log)
}

// saveTask persists a finished root task.
func (a *app) saveTask(task *agent.TaskState) {
	if a.store == nil || task == nil {
		return
	}
	if err := a.store.SaveTask(a.sess.ID, task); err != nil {
		logger.LogErr(err, "could not persist task")
	}
}

// close releases persistent resources.
func (a *app) close() {
	a.plugins.Cleanup()
	if a.store != nil {
		if err := a.store.CloseSession(a.sess.ID); err != nil {
			logger.LogErr(err, "could not record session end")
		}
	}
}

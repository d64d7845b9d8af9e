package cli

import (
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/spf13/cobra"

	"opsagent/platform/shutdown"
	"opsagent/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status dashboard",
	Long:  `Serves a read-only web dashboard over the session: task tree, command log, and recent errors.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = a.cfg.WebAddr
		}

		shutdown.RegisterHook(func(grace time.Duration) error {
			a.close()
			return nil
		})
		done := shutdown.Watch()

		go func() {
			if err := web.NewServer(a.sess, a.store, addr).Run(); err != nil {
				logger.LogErr(err, "dashboard server stopped")
			}
		}()

		<-done
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

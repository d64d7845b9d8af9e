package main

import (
	"os"

	"github.com/rohanthewiz/logger"

	"opsagent/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		logger.LogErr(err, "opsagent exited with error")
		os.Exit(1)
	}
}

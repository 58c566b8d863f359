package main

import (
	"os"

	log "github.com/ChainSafe/log15"
	"github.com/urfave/cli/v2"
	"github.com/wrapgate/bridge/internal/config"
)

var app = cli.NewApp()

var (
	Version = "1.0.0"
)

// init initializes CLI
func init() {
	app.Name = "wrapgate"
	app.Usage = "Wrapgate"
	app.Version = Version
	app.EnableBashCompletion = true
	app.Commands = []*cli.Command{
		&forwardCommand,
		&backwardCommand,
		&reconcileCommand,
	}

	app.Flags = append(app.Flags, config.VerbosityFlag)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

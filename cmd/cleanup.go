package cmd

import (
	"time"

	"github.com/urfave/cli"
)

var cleanupCommand = cli.Command{
	Name:  "cleanup",
	Usage: "remove dead/exited containers",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "all"},
		cli.BoolFlag{Name: "containers"},
		cli.BoolFlag{Name: "images"},
		cli.BoolFlag{Name: "volumes"},
	},
	Action: func(c *cli.Context) error {
		return manager(c).Cleanup(0 * time.Second)
	},
}

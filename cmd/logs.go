package cmd

import (
	"os"

	"github.com/urfave/cli"
)

var logsCommand = cli.Command{
	Name:      "logs",
	Usage:     "fetch a container's logs",
	ArgsUsage: "<container>",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "follow, f"},
		cli.IntFlag{Name: "tail, n", Usage: "number of lines to show from the end"},
		cli.BoolFlag{Name: "timestamps, t", Usage: "accepted for compatibility; log lines are not timestamped"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("logs requires a container", 2)
		}
		return manager(c).Logs(c.Args().First(), c.Bool("follow"), c.Int("tail"), os.Stdout)
	},
}

package cmd

import "github.com/urfave/cli"

var stopCommand = cli.Command{
	Name:      "stop",
	Usage:     "stop a running container",
	ArgsUsage: "<container>",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "time, t", Value: 10, Usage: "seconds to wait before SIGKILL"},
		cli.BoolFlag{Name: "force, f"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("stop requires a container", 2)
		}
		return manager(c).Stop(c.Args().First(), c.Int("time"), c.Bool("force"))
	},
}

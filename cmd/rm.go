package cmd

import "github.com/urfave/cli"

var rmCommand = cli.Command{
	Name:      "rm",
	Usage:     "remove a container",
	ArgsUsage: "<container>",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "force, f"},
		cli.BoolFlag{Name: "volumes, v", Usage: "accepted for compatibility; volumes are host bind mounts and are never deleted"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("rm requires a container", 2)
		}
		return manager(c).Rm(c.Args().First(), c.Bool("force"))
	},
}

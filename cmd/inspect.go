package cmd

import (
	"os"

	"github.com/urfave/cli"
)

var inspectCommand = cli.Command{
	Name:      "inspect",
	Usage:     "show a container's state",
	ArgsUsage: "<container>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "format", Value: "json", Usage: "json (yaml accepted but renders as json)"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("inspect requires a container", 2)
		}
		st, err := manager(c).Inspect(c.Args().First())
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, st)
	},
}

package cmd

import (
	"os"

	"github.com/urfave/cli"
)

var psCommand = cli.Command{
	Name:  "ps",
	Usage: "list containers",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "all, a"},
		cli.BoolFlag{Name: "quiet, q"},
		cli.StringFlag{Name: "format", Value: "table", Usage: "table or json"},
	},
	Action: func(c *cli.Context) error {
		states, err := manager(c).Ps(c.Bool("all"))
		if err != nil {
			return err
		}
		if c.Bool("quiet") {
			for _, st := range states {
				os.Stdout.WriteString(st.ID + "\n")
			}
			return nil
		}
		if c.String("format") == "json" {
			return printJSON(os.Stdout, states)
		}
		return printContainerTable(os.Stdout, states)
	},
}

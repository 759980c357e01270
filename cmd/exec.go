package cmd

import (
	"os"

	"github.com/urfave/cli"

	"github.com/mini-docker/mini-docker/runtime"
)

var execCommand = cli.Command{
	Name:      "exec",
	Usage:     "run a command inside a running container",
	ArgsUsage: "<container> <argv...>",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "interactive, i"},
		cli.BoolFlag{Name: "tty, t"},
		cli.StringSliceFlag{Name: "env, e"},
		cli.StringFlag{Name: "workdir, w"},
		cli.StringFlag{Name: "user, u"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() < 2 {
			return cli.NewExitError("exec requires a container and a command", 2)
		}
		code, err := manager(c).Exec(c.Args().First(), runtime.ExecOptions{
			Argv: c.Args().Tail(), Env: c.StringSlice("env"),
			Workdir: c.String("workdir"), User: c.String("user"), TTY: c.Bool("tty"),
			Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr,
		})
		if err != nil {
			return err
		}
		if code != 0 {
			return cli.NewExitError("", code)
		}
		return nil
	},
}

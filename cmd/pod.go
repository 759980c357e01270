package cmd

import (
	"os"

	"github.com/urfave/cli"

	"github.com/mini-docker/mini-docker/runtime"
)

var podCommand = cli.Command{
	Name:  "pod",
	Usage: "manage pods (containers sharing net/ipc/uts namespaces)",
	Subcommands: []cli.Command{
		{
			Name:  "create",
			Usage: "create a new pod",
			Flags: []cli.Flag{cli.StringFlag{Name: "name, n"}},
			Action: func(c *cli.Context) error {
				st, err := manager(c).PodCreate(c.String("name"))
				if err != nil {
					return err
				}
				os.Stdout.WriteString(st.ID + "\n")
				return nil
			},
		},
		{
			Name:      "add",
			Usage:     "run a container attached to a pod's network namespace",
			ArgsUsage: "<pod> <image> [argv...]",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "name, n"},
				cli.BoolFlag{Name: "detach, d"},
				cli.BoolFlag{Name: "rm"},
				cli.StringSliceFlag{Name: "env, e"},
				cli.StringFlag{Name: "workdir, w"},
				cli.StringFlag{Name: "user, u"},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					return cli.NewExitError("pod add requires a pod and an image", 2)
				}
				st, err := manager(c).PodAdd(c.Args().First(), runtime.RunOptions{
					Name: c.String("name"), Image: c.Args().Get(1), Argv: c.Args()[2:],
					Env: c.StringSlice("env"), Workdir: c.String("workdir"), User: c.String("user"),
					Detach: c.Bool("detach"), Remove: c.Bool("rm"),
					Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr,
				})
				if err != nil {
					return err
				}
				os.Stdout.WriteString(st.ID + "\n")
				return nil
			},
		},
		{
			Name:  "ls",
			Usage: "list pods",
			Action: func(c *cli.Context) error {
				pods, err := manager(c).PodLs()
				if err != nil {
					return err
				}
				return printJSON(os.Stdout, pods)
			},
		},
		{
			Name:      "inspect",
			Usage:     "show a pod's state",
			ArgsUsage: "<pod>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return cli.NewExitError("pod inspect requires a pod", 2)
				}
				st, err := manager(c).PodInspect(c.Args().First())
				if err != nil {
					return err
				}
				return printJSON(os.Stdout, st)
			},
		},
		{
			Name:      "rm",
			Usage:     "remove a pod",
			ArgsUsage: "<pod>",
			Flags:     []cli.Flag{cli.BoolFlag{Name: "force, f"}},
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return cli.NewExitError("pod rm requires a pod", 2)
				}
				return manager(c).PodRm(c.Args().First(), c.Bool("force"))
			},
		},
	},
}

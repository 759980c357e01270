package cmd

import (
	"os"

	"github.com/urfave/cli"

	"github.com/mini-docker/mini-docker/runtime"
)

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "run a command in a new container",
	ArgsUsage: "<image> [argv...]",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "name, n"},
		cli.StringFlag{Name: "hostname, H"},
		cli.Int64Flag{Name: "memory, m", Usage: "memory limit in bytes"},
		cli.Int64Flag{Name: "cpu, c", Usage: "cpu limit as a percentage"},
		cli.Int64Flag{Name: "pids", Usage: "pids.max"},
		cli.StringFlag{Name: "net", Value: "none", Usage: "none, bridge, or pod"},
		cli.StringFlag{Name: "pod", Usage: "pod id/name when --net=pod"},
		cli.BoolFlag{Name: "rootless"},
		cli.BoolFlag{Name: "detach, d"},
		cli.BoolFlag{Name: "tty, t"},
		cli.BoolFlag{Name: "interactive, i"},
		cli.BoolFlag{Name: "rm"},
		cli.StringSliceFlag{Name: "env, e"},
		cli.StringSliceFlag{Name: "volume, v"},
		cli.StringFlag{Name: "workdir, w"},
		cli.StringFlag{Name: "user, u"},
		cli.BoolFlag{Name: "no-overlay"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.NewExitError("run requires an image", 2)
		}
		mgr := manager(c)
		st, err := mgr.Run(runtime.RunOptions{
			Name: c.String("name"), Hostname: c.String("hostname"),
			Image: c.Args().First(), Argv: c.Args().Tail(),
			Env: c.StringSlice("env"), Workdir: c.String("workdir"), User: c.String("user"),
			MemoryBytes: c.Int64("memory"), CPUPercent: c.Int64("cpu"), PidsLimit: c.Int64("pids"),
			NetMode: c.String("net"), PodRef: c.String("pod"), Rootless: c.Bool("rootless"),
			Detach: c.Bool("detach"), TTY: c.Bool("tty"), Interactive: c.Bool("interactive"),
			Remove: c.Bool("rm"), Volumes: c.StringSlice("volume"), NoOverlay: c.Bool("no-overlay"),
			Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr,
		})
		if err != nil {
			return err
		}
		if c.Bool("detach") {
			os.Stdout.WriteString(st.ID + "\n")
			return nil
		}
		if st.ExitCode != nil && *st.ExitCode != 0 {
			return cli.NewExitError("", *st.ExitCode)
		}
		return nil
	},
}

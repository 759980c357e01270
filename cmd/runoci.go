package cmd

import (
	"os"

	"github.com/urfave/cli"

	"github.com/mini-docker/mini-docker/runtime"
)

var runOCICommand = cli.Command{
	Name:      "run-oci",
	Usage:     "run an OCI runtime bundle",
	ArgsUsage: "<bundle path>",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "detach, d"},
		cli.BoolFlag{Name: "rootless"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("run-oci requires a bundle path", 2)
		}
		st, err := manager(c).RunOCI(runtime.RunOCIOptions{
			BundlePath: c.Args().First(), Detach: c.Bool("detach"), Rootless: c.Bool("rootless"),
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

package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var versionCommand = cli.Command{
	Name:  "version",
	Usage: "print version information",
	Action: func(c *cli.Context) error {
		fmt.Fprintln(os.Stdout, versionString())
		return nil
	},
}

var infoCommand = cli.Command{
	Name:  "info",
	Usage: "show host capabilities and the state-store location",
	Action: func(c *cli.Context) error {
		mgr := manager(c)
		fmt.Fprintf(os.Stdout, "state root:           %s\n", mgr.RT.StateRoot)
		fmt.Fprintf(os.Stdout, "cgroup driver:        %s\n", mgr.RT.Caps.CgroupDriver)
		fmt.Fprintf(os.Stdout, "can mount privileged: %v\n", mgr.RT.Caps.CanMountPrivileged)
		fmt.Fprintf(os.Stdout, "can create veth:      %v\n", mgr.RT.Caps.CanCreateVeth)
		fmt.Fprintf(os.Stdout, "can write cgroup root: %v\n", mgr.RT.Caps.CanWriteCgroupRoot)
		return nil
	},
}

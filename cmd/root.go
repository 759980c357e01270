// Package cmd wires github.com/urfave/cli (the teacher's CLI library,
// kept at the v1 API the teacher's go.mod pins) to the verb table of
// §6, translating flags directly into runtime.Manager calls.
package cmd

import (
	"fmt"
	"os"
	goruntime "runtime"
	"strings"

	"github.com/opencontainers/image-spec/specs-go"
	"github.com/opencontainers/runc/libcontainer/seccomp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/mini-docker/mini-docker/errkind"
	"github.com/mini-docker/mini-docker/runtime"
)

var (
	version   = "unknown"
	gitCommit = ""
)

// Main builds the cli.App and runs it against os.Args; callers must
// have already dispatched launcher.IsInitArg/IsNsexecArg/IsPodInitArg before
// reaching this, per launcher/doc.go's protocol note.
func Main() {
	app := cli.NewApp()
	app.Name = "mini-docker"
	app.Usage = "run isolated processes with namespaces, cgroups, and seccomp"
	app.Version = versionString()

	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		cli.StringFlag{Name: "host", Usage: "override the state-store root (MINI_DOCKER_HOST)"},
		cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, or error (MINI_DOCKER_LOG_LEVEL)"},
		cli.BoolFlag{Name: "systemd-cgroup", Usage: "manage cgroups through systemd instead of cgroupfs (MINI_DOCKER_SYSTEMD_CGROUP)"},
	}
	app.Commands = []cli.Command{
		runCommand,
		runOCICommand,
		execCommand,
		psCommand,
		stopCommand,
		rmCommand,
		logsCommand,
		inspectCommand,
		cleanupCommand,
		buildCommand,
		imagesCommand,
		rmiCommand,
		podCommand,
		infoCommand,
		versionCommand,
	}
	app.Before = func(c *cli.Context) error {
		stateRoot, debug, logLevel, systemdCgroup := runtime.EnvOverrides(
			c.GlobalString("host"), c.GlobalBool("debug"), c.GlobalString("log-level"), c.GlobalBool("systemd-cgroup"))
		rt := runtime.NewRuntime(stateRoot, debug, logLevel, systemdCgroup, os.Stderr)
		mgr, err := runtime.NewManager(rt)
		if err != nil {
			return err
		}
		c.App.Metadata["manager"] = mgr
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		logger := logrus.StandardLogger()
		if mgr, ok := app.Metadata["manager"].(*runtime.Manager); ok {
			logger = mgr.RT.Logger
		}
		fatal(logger, err)
	}
}

func manager(c *cli.Context) *runtime.Manager {
	return c.App.Metadata["manager"].(*runtime.Manager)
}

// fatal logs the error through the same errkind taxonomy every
// component raises and exits with §6's exit code table, matching the
// teacher's FatalWriter/configLogrus intent through the Runtime's own
// logger; logrus's standard logger is used only when app.Before failed
// before a Runtime existed.
func fatal(logger *logrus.Logger, err error) {
	if e, ok := err.(*errkind.Error); ok {
		fields := logrus.Fields{"kind": e.Kind}
		if e.Errno != 0 {
			fields["errno"] = e.Errno
		}
		logger.WithFields(fields).Error(e.Err)
	} else {
		logger.Error(err)
	}
	os.Exit(errkind.ExitCode(err))
}

func versionString() string {
	v := []string{version}
	if gitCommit != "" {
		v = append(v, "commit: "+gitCommit)
	}
	v = append(v, "spec: "+specs.Version)
	v = append(v, "go: "+goruntime.Version())
	major, minor, micro := seccomp.Version()
	if major+minor+micro > 0 {
		v = append(v, fmt.Sprintf("libseccomp: %d.%d.%d", major, minor, micro))
	}
	return strings.Join(v, "\n")
}

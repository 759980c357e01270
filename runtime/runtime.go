// Package runtime wires together the launcher, rootfs, network,
// cgroups/manager, security, state, image, and oci packages into the
// container-manager verbs of §4.8, and carries the Runtime/
// CapabilitiesProfile ambient-stack types of §9: a single struct built
// once from CLI flags and MINI_DOCKER_* env vars and threaded down
// explicitly, instead of the package-level mutable state the teacher's
// own main.go/utils_linux.go use via bare logrus.Set* calls.
package runtime

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Runtime holds the process-wide settings every manager verb needs:
// where state lives, how verbose to log, and what this host/user is
// actually capable of (§9).
type Runtime struct {
	StateRoot string
	Debug     bool
	LogLevel  string
	Logger    *logrus.Logger
	Caps      CapabilitiesProfile

	// PreferSystemdCgroups is set by --systemd-cgroup (or
	// MINI_DOCKER_SYSTEMD_CGROUP): Manager.Run/RunOCI set the resulting
	// container's configs.Cgroup.Systemd from this instead of ever
	// leaving the systemd driver unreachable.
	PreferSystemdCgroups bool
}

// NewRuntime builds a Runtime from already-resolved settings (cmd/
// resolves flags and MINI_DOCKER_* env vars before calling this) and
// probes the host's actual capabilities.
func NewRuntime(stateRoot string, debug bool, logLevel string, systemdCgroup bool, out io.Writer) *Runtime {
	logger := logrus.New()
	logger.SetOutput(out)
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if debug {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	return &Runtime{
		StateRoot:            stateRoot,
		Debug:                debug,
		LogLevel:             logLevel,
		Logger:               logger,
		Caps:                 Probe(),
		PreferSystemdCgroups: systemdCgroup,
	}
}

// CapabilitiesProfile records what this process can actually do on this
// host, computed once by Probe. Manager's launch path reads CgroupDriver
// and `info` prints every field; rootfs.Builder, network.Builder and
// cgroups/manager do not take it.
type CapabilitiesProfile struct {
	CanMountPrivileged bool
	CanCreateVeth      bool
	CanWriteCgroupRoot bool
	CgroupDriver       string
}

// Probe inspects the current process's privilege level: euid, whether
// /sys/fs/cgroup looks writable, and whether a throwaway mount
// namespace can actually be created (the trial unshare §9 specifies).
func Probe() CapabilitiesProfile {
	root := os.Geteuid() == 0

	p := CapabilitiesProfile{
		CanMountPrivileged: root && canUnshareMountNS(),
		CanCreateVeth:      root,
		CanWriteCgroupRoot: canWriteCgroupRoot(),
	}
	if p.CanWriteCgroupRoot {
		p.CgroupDriver = "cgroupfs"
	} else {
		p.CgroupDriver = "none"
	}
	return p
}

// canUnshareMountNS tries CLONE_NEWNS on a throwaway, locked OS thread
// and reports whether it succeeded, undoing nothing since the thread
// (and its namespace) is discarded along with the goroutine once it
// returns — runtime.LockOSThread without a matching UnlockOSThread
// means the goroutine's underlying thread is destroyed when it exits.
func canUnshareMountNS() bool {
	result := make(chan bool, 1)
	go func() {
		runtime.LockOSThread()
		result <- unix.Unshare(unix.CLONE_NEWNS) == nil
	}()
	return <-result
}

func canWriteCgroupRoot() bool {
	var st unix.Statfs_t
	if err := unix.Statfs("/sys/fs/cgroup", &st); err != nil {
		return false
	}
	return unix.Access("/sys/fs/cgroup", unix.W_OK) == nil
}

// EnvOverrides applies MINI_DOCKER_DEBUG, MINI_DOCKER_HOST,
// MINI_DOCKER_LOG_LEVEL, and MINI_DOCKER_SYSTEMD_CGROUP (§6) on top of
// already-parsed CLI flag values, flags winning when explicitly set
// (callers pass "" / false when a flag was not set explicitly).
func EnvOverrides(stateRoot string, debug bool, logLevel string, systemdCgroup bool) (string, bool, string, bool) {
	if stateRoot == "" {
		if h := os.Getenv("MINI_DOCKER_HOST"); h != "" {
			stateRoot = h
		}
	}
	if !debug {
		if v := os.Getenv("MINI_DOCKER_DEBUG"); truthy(v) {
			debug = true
		}
	}
	if logLevel == "" {
		if lvl := os.Getenv("MINI_DOCKER_LOG_LEVEL"); lvl != "" {
			logLevel = lvl
		} else {
			logLevel = "info"
		}
	}
	if !systemdCgroup {
		if v := os.Getenv("MINI_DOCKER_SYSTEMD_CGROUP"); truthy(v) {
			systemdCgroup = true
		}
	}
	return stateRoot, debug, logLevel, systemdCgroup
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// errUnsupportedCgroupDriver is returned by Manager when the host has
// no writable cgroup hierarchy at all and a resource limit was
// requested.
var errUnsupportedCgroupDriver = fmt.Errorf("no writable cgroup hierarchy available")

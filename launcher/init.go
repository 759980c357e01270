package launcher

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/mini-docker/mini-docker/configs"
	"github.com/mini-docker/mini-docker/errkind"
	"github.com/mini-docker/mini-docker/rootfs"
	"github.com/mini-docker/mini-docker/security/capabilities"
	"github.com/mini-docker/mini-docker/security/seccomp"
	"github.com/mini-docker/mini-docker/sys"
)

// Init is the child half of the protocol documented in doc.go. It never
// returns on success: step 5 ends in execve. main.go calls this when
// IsInitArg(os.Args[1:]) is true, before doing anything else (flag
// parsing, logging setup) since by the time this runs the process is
// already inside the new namespaces Cloneflags requested.
func Init() {
	if err := run(); err != nil {
		reportFailure(err)
		os.Exit(1)
	}
}

func run() error {
	bootstrap := os.NewFile(bootstrapFD, "bootstrap")
	readyR := os.NewFile(readyFD, "sync_parent_to_child")
	doneW := os.NewFile(doneFD, "sync_child_to_parent")
	defer doneW.Close()

	data, err := io.ReadAll(bootstrap)
	if err != nil {
		return errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("read bootstrap config: %w", err))
	}
	bootstrap.Close()
	var cfg configs.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return errkind.New(errkind.ConfigInvalid, fmt.Errorf("parse bootstrap config: %w", err))
	}

	if err := joinPinnedNamespaces(&cfg); err != nil {
		return err
	}

	buf := make([]byte, 1)
	if _, err := readyR.Read(buf); err != nil {
		return errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("wait on sync_parent_to_child: %w", err))
	}
	readyR.Close()

	resolvedRootfsMode := cfg.RootfsMode
	if !cfg.JoinOnly {
		if cfg.Hostname != "" {
			if err := sys.Sethostname(cfg.Hostname); err != nil {
				return err
			}
		}

		builder := &rootfs.Builder{Config: &cfg, StateDir: stateDirFromEnv(), Rootless: cfg.Rootless}
		merged, _, err := builder.Build()
		if err != nil {
			return err
		}
		// Build may have fallen back from overlay to bind mode (§4.3);
		// report the mode actually used back to the parent below.
		resolvedRootfsMode = cfg.RootfsMode
		if err := rootfs.PivotInto(merged, cfg.NoPivotRoot); err != nil {
			return err
		}
	}

	// setns(CLONE_NEWPID) above only placed this process's *future
	// children* into the joined PID namespace (man 2 setns) — this
	// process itself keeps its original pid. A JoinOnly config (exec,
	// §4.8) needs the process that actually execve's the target to have
	// a real pid inside that namespace, so it forks a helper: the
	// nsexec grandchild below does the execve, and this process becomes
	// the "forks a helper" process that waits and relays its exit
	// status, exactly the role runc's nsexec plays for `exec`.
	if cfg.JoinOnly {
		return execJoinedHelper(&cfg, doneW)
	}
	return finishSetupAndExec(&cfg, doneW, resolvedRootfsMode)
}

// finishSetupAndExec is the tail of the container-init sequence shared
// by the direct path (a freshly created container, still this process)
// and the nsexec grandchild (run by NsexecChild after this process forked
// it into the joined PID namespace): workdir, capabilities, uid/gid,
// NO_NEW_PRIVS, seccomp, then the sync_child_to_parent signal, then
// execve.
func finishSetupAndExec(cfg *configs.Config, doneW *os.File, resolvedRootfsMode string) error {
	if cfg.Workdir != "" {
		if err := unix.Chdir(cfg.Workdir); err != nil {
			return errkind.New(errkind.FSBindMissing, fmt.Errorf("chdir %s: %w", cfg.Workdir, err))
		}
	}

	caps, err := capabilities.Resolve(cfg.Capabilities)
	if err != nil {
		return err
	}
	if err := capabilities.ApplyToSelf(caps); err != nil {
		return err
	}

	if cfg.User.GID != 0 || cfg.User.UID != 0 {
		if err := unix.Setresgid(cfg.User.GID, cfg.User.GID, cfg.User.GID); err != nil {
			return errkind.New(errkind.ResourceKernel, fmt.Errorf("setresgid(%d): %w", cfg.User.GID, err))
		}
		if err := unix.Setresuid(cfg.User.UID, cfg.User.UID, cfg.User.UID); err != nil {
			return errkind.New(errkind.ResourceKernel, fmt.Errorf("setresuid(%d): %w", cfg.User.UID, err))
		}
	}

	if err := sys.SetNoNewPrivs(); err != nil {
		return err
	}
	if err := seccomp.Load(); err != nil {
		return err
	}

	if _, err := doneW.Write([]byte{0}); err != nil {
		return errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("signal sync_child_to_parent: %w", err))
	}
	if _, err := doneW.Write([]byte(resolvedRootfsMode)); err != nil {
		return errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("report resolved rootfs mode: %w", err))
	}
	doneW.Close()

	if len(cfg.Argv) == 0 {
		return errkind.New(errkind.ConfigInvalid, fmt.Errorf("empty argv"))
	}
	path, err := lookPath(cfg.Argv[0])
	if err != nil {
		return errkind.New(errkind.ConfigInvalid, err)
	}
	return unix.Exec(path, cfg.Argv, cfg.Env)
}

// joinPinnedNamespaces setns's into every namespace in cfg that carries a
// Path instead of being freshly cloned, the pod-mode half of §4.6 step 2.
func joinPinnedNamespaces(cfg *configs.Config) error {
	for _, ns := range cfg.Namespaces {
		if ns.Path == "" {
			continue
		}
		fd, err := unix.Open(ns.Path, unix.O_RDONLY, 0)
		if err != nil {
			return errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("open pinned namespace %s: %w", ns.Path, err))
		}
		nsFlag, ok := cloneFlagForJoin(ns.Type)
		if !ok {
			unix.Close(fd)
			continue
		}
		err = sys.Setns(fd, nsFlag)
		unix.Close(fd)
		if err != nil {
			return errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("setns %s: %w", ns.Path, err))
		}
	}
	return nil
}

func cloneFlagForJoin(t configs.NamespaceType) (int, bool) {
	switch t {
	case configs.NEWNET:
		return unix.CLONE_NEWNET, true
	case configs.NEWPID:
		return unix.CLONE_NEWPID, true
	case configs.NEWNS:
		return unix.CLONE_NEWNS, true
	case configs.NEWUTS:
		return unix.CLONE_NEWUTS, true
	case configs.NEWIPC:
		return unix.CLONE_NEWIPC, true
	case configs.NEWUSER:
		return unix.CLONE_NEWUSER, true
	case configs.NEWCGROUP:
		return unix.CLONE_NEWCGROUP, true
	default:
		return 0, false
	}
}

func stateDirFromEnv() string {
	if d := os.Getenv("MINI_DOCKER_STATE_DIR"); d != "" {
		return d
	}
	return "/run/mini-docker/current"
}

func lookPath(cmd string) (string, error) {
	if cmd == "" {
		return "", fmt.Errorf("empty command")
	}
	if cmd[0] == '/' {
		return cmd, nil
	}
	for _, dir := range []string{"/usr/local/sbin", "/usr/local/bin", "/usr/sbin", "/usr/bin", "/sbin", "/bin"} {
		candidate := dir + "/" + cmd
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return cmd, nil
}

func reportFailure(err error) {
	fmt.Fprintln(os.Stderr, "mini-docker init:", err)
}

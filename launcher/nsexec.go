package launcher

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/mini-docker/mini-docker/configs"
	"github.com/mini-docker/mini-docker/errkind"
)

// nsexecArg marks the grandchild a JoinOnly init forks after setns'ing
// into a running container's namespaces (§4.8's exec). setns(CLONE_NEWPID)
// only places the caller's *future children* into the target PID
// namespace, not the caller itself (man 2 setns), so the process that
// actually execve's the exec target must be a genuinely new process
// created by plain fork+exec from inside the joined namespaces — the
// same trick runc's nsexec performs in C, done here as a second,
// namespace-less re-exec of the mini-docker binary instead of a raw
// fork(2) from within the Go runtime.
const nsexecArg = "__mini_docker_nsexec__"

const (
	nsexecConfigFD = 3
	nsexecDoneFD   = 4
)

func IsNsexecArg(args []string) bool {
	return len(args) > 0 && args[0] == nsexecArg
}

// spawnNsexecChild re-execs the binary with no new namespaces (it
// inherits whatever this process is currently setns'd into) and hands it
// cfg plus the original sync_child_to_parent pipe, so the grandchild -
// not this helper - performs the final handshake write before execve.
func spawnNsexecChild(cfg *configs.Config, doneW *os.File, stdin io.Reader, stdout, stderr io.Writer) (*exec.Cmd, error) {
	configR, configW, err := os.Pipe()
	if err != nil {
		return nil, errkind.New(errkind.LaunchHandshakeBroken, err)
	}
	cmd := exec.Command(ReexecSelf(), nsexecArg)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = stdin, stdout, stderr
	cmd.ExtraFiles = []*os.File{configR, doneW}

	if err := cmd.Start(); err != nil {
		configR.Close()
		configW.Close()
		return nil, errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("start nsexec child: %w", err))
	}
	// The grandchild holds its own duplicated ends already; close ours
	// so it's the sole remaining writer on doneW, the same
	// close-our-copy-after-Start step Spawn takes for the top-level
	// handshake pipes. Otherwise the manager's Handle.Release would
	// block past the grandchild's own signal, waiting on this process
	// to exit too.
	configR.Close()
	doneW.Close()

	data, err := json.Marshal(cfg)
	if err != nil {
		return cmd, errkind.New(errkind.ConfigInvalid, err)
	}
	if _, err := configW.Write(data); err != nil {
		return cmd, errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("write nsexec config: %w", err))
	}
	configW.Close()
	return cmd, nil
}

// execJoinedHelper forks the nsexec grandchild and becomes the process
// §4.8 describes exec as forking: it waits for the grandchild and exits
// with its status so this process's own exit status (as seen by the
// manager's launcher.Handle.Wait) is the exec target's real exit code.
func execJoinedHelper(cfg *configs.Config, doneW *os.File) error {
	cmd, err := spawnNsexecChild(cfg, doneW, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	waitErr := cmd.Wait()
	if waitErr == nil {
		os.Exit(0)
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				os.Exit(128 + int(ws.Signal()))
			}
			os.Exit(ws.ExitStatus())
		}
	}
	return errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("wait for nsexec child: %w", waitErr))
}

// NsexecChild is the grandchild's entrypoint; main.go dispatches to this
// when IsNsexecArg(os.Args[1:]) is true. It inherited its namespace
// membership from being forked by a process already setns'd into them,
// so unlike Init it does no namespace setup of its own - only the tail
// of the container-init sequence before execve.
func NsexecChild() {
	configFile := os.NewFile(nsexecConfigFD, "nsexec-config")
	doneW := os.NewFile(nsexecDoneFD, "sync_child_to_parent")

	data, err := io.ReadAll(configFile)
	if err != nil {
		reportFailure(errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("read nsexec config: %w", err)))
		os.Exit(1)
	}
	configFile.Close()

	var cfg configs.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		reportFailure(errkind.New(errkind.ConfigInvalid, fmt.Errorf("parse nsexec config: %w", err)))
		os.Exit(1)
	}

	if err := finishSetupAndExec(&cfg, doneW, ""); err != nil {
		reportFailure(err)
		os.Exit(1)
	}
}

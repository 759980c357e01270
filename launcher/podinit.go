package launcher

import (
	"io"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// podInitArg marks a re-exec'd process as the namespace-pinning
// placeholder `pod create` uses: it unshares net/ipc/uts, then blocks
// on stdin so the parent has a live pid to bind-mount
// /proc/<pid>/ns/{net,ipc,uts} from before the placeholder exits.
const podInitArg = "__mini_docker_podinit__"

// IsPodInitArg reports whether args marks this process as the pod
// namespace placeholder; main.go checks this alongside IsInitArg and
// IsNsexecArg before any flag parsing.
func IsPodInitArg(args []string) bool {
	return len(args) > 0 && args[0] == podInitArg
}

// PodInit blocks until the parent closes its end of stdin (signalling
// the bind mounts are done), then exits; the pinned namespaces outlive
// it because a bind mount holds its own reference.
func PodInit() {
	_, _ = io.Copy(io.Discard, os.Stdin)
	os.Exit(0)
}

// Placeholder is the parent's view of a spawned namespace-pinning
// placeholder process.
type Placeholder struct {
	Cmd  *exec.Cmd
	Pid  int
	done *os.File
}

// SpawnPlaceholder re-execs the binary as the pod-init placeholder in
// a fresh net/ipc/uts namespace set and returns once it has a pid to
// bind-mount from.
func SpawnPlaceholder() (*Placeholder, error) {
	doneR, doneW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(ReexecSelf(), podInitArg)
	cmd.Stdin = doneR
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: unix.CLONE_NEWNET | unix.CLONE_NEWIPC | unix.CLONE_NEWUTS,
	}
	if err := cmd.Start(); err != nil {
		doneR.Close()
		doneW.Close()
		return nil, err
	}
	doneR.Close()
	return &Placeholder{Cmd: cmd, Pid: cmd.Process.Pid, done: doneW}, nil
}

// Release closes the pipe the placeholder is blocked reading, letting
// it exit, then reaps it.
func (p *Placeholder) Release() error {
	_ = p.done.Close()
	return p.Cmd.Wait()
}

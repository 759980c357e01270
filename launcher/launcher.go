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

// initArg is the hidden first argument (os.Args[1]) the re-exec'd binary
// recognizes; main.go checks for it at the very top of main before any
// flag parsing, exactly as
// helayoty-cloud-native-in-arabic's docker-like-container.go dispatches on
// os.Args[1] == "child".
const initArg = "__mini_docker_init__"

// bootstrapFD and readyFD/doneFD tell the child process which of its
// inherited file descriptors carry the bootstrap config and the two
// handshake pipes, since ExtraFiles are appended after stdin/stdout/stderr
// in a fixed, predictable order (fd 3, 4, 5).
const (
	bootstrapFD = 3
	readyFD     = 4
	doneFD      = 5
)

// Handle is the parent's view of a launched container process.
type Handle struct {
	Cmd  *exec.Cmd
	Pid  int
	Argv []string

	// RootfsMode is filled in by Release: the rootfs mode the child
	// actually built with, which may differ from the requested mode if
	// it fell back from overlay to bind (§4.3). Empty for JoinOnly
	// (exec) processes, which never build a rootfs.
	RootfsMode string

	readyW *os.File // parent's end of sync_parent_to_child
	doneR  *os.File // parent's end of sync_child_to_parent
}

// ReexecSelf returns the path to re-exec for the init dance: /proc/self/exe
// on Linux always resolves to the currently running binary regardless of
// argv[0] or $PATH tricks.
func ReexecSelf() string { return "/proc/self/exe" }

// IsInitArg reports whether args (os.Args[1:]) marks this process as the
// re-exec'd container init; main.go calls this before any other argument
// processing.
func IsInitArg(args []string) bool {
	return len(args) > 0 && args[0] == initArg
}

// Spawn re-execs the calling binary as the container's init process (step
// 1-2 of doc.go's protocol) and returns once the child is blocked on
// sync_parent_to_child, without yet releasing it — callers must call
// Handle.Release after finishing the parent-side setup in step 4.
func Spawn(cfg *configs.Config, stdin io.Reader, stdout, stderr io.Writer) (*Handle, error) {
	bootstrapR, bootstrapW, err := os.Pipe()
	if err != nil {
		return nil, errkind.New(errkind.LaunchHandshakeBroken, err)
	}
	readyR, readyW, err := os.Pipe()
	if err != nil {
		return nil, errkind.New(errkind.LaunchHandshakeBroken, err)
	}
	doneR, doneW, err := os.Pipe()
	if err != nil {
		return nil, errkind.New(errkind.LaunchHandshakeBroken, err)
	}

	cmd := exec.Command(ReexecSelf(), initArg)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.ExtraFiles = []*os.File{bootstrapR, readyR, doneW}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: uintptr(cfg.Namespaces.CloneFlags()),
	}
	if uidMap, gidMap, ok := rootlessIDMaps(cfg); ok {
		cmd.SysProcAttr.UidMappings = uidMap
		cmd.SysProcAttr.GidMappings = gidMap
	}

	if err := cmd.Start(); err != nil {
		closeAll(bootstrapR, bootstrapW, readyR, readyW, doneR, doneW)
		return nil, errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("start init process: %w", err))
	}
	// The child holds its own copies of the read/write ends it needs;
	// the parent must close the ends it passed across so EOF reaches the
	// child if the parent dies before signalling.
	bootstrapR.Close()
	readyR.Close()
	doneW.Close()

	data, err := json.Marshal(cfg)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, errkind.New(errkind.ConfigInvalid, err)
	}
	if _, err := bootstrapW.Write(data); err != nil {
		_ = cmd.Process.Kill()
		return nil, errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("write bootstrap config: %w", err))
	}
	bootstrapW.Close()

	return &Handle{
		Cmd:    cmd,
		Pid:    cmd.Process.Pid,
		Argv:   cfg.Argv,
		readyW: readyW,
		doneR:  doneR,
	}, nil
}

// Release performs step 4's final act: signal the child that parent-side
// setup (uid_map, cgroup enrollment, veth attach) is complete, then block
// until the child signals step 5 is done (or reports an error).
func (h *Handle) Release() error {
	defer h.readyW.Close()
	if _, err := h.readyW.Write([]byte{0}); err != nil {
		return errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("signal sync_parent_to_child: %w", err))
	}

	defer h.doneR.Close()
	buf := make([]byte, 1)
	n, err := h.doneR.Read(buf)
	if err != nil || n == 0 {
		return errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("child did not signal readiness: %w", err))
	}
	if buf[0] != 0 {
		return errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("child reported setup failure (code %d)", buf[0]))
	}
	mode, err := io.ReadAll(h.doneR)
	if err != nil {
		return errkind.New(errkind.LaunchHandshakeBroken, fmt.Errorf("read resolved rootfs mode: %w", err))
	}
	h.RootfsMode = string(mode)
	return nil
}

// Wait reaps the init process and returns its exit status.
func (h *Handle) Wait() (int, error) {
	err := h.Cmd.Wait()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return 0, errkind.Killed(int(ws.Signal()))
			}
			return ws.ExitStatus(), nil
		}
	}
	return -1, err
}

// rootlessIDMaps builds the single-entry uid_map/gid_map a rootless
// container's user namespace needs (outside uid maps to the current euid,
// everything else is denied), per §4.6 step 3's race the handshake exists
// to close.
func rootlessIDMaps(cfg *configs.Config) ([]syscall.SysProcIDMap, []syscall.SysProcIDMap, bool) {
	if !cfg.Rootless || cfg.Namespaces.PathOf(configs.NEWUSER) != "" || !cfg.Namespaces.Contains(configs.NEWUSER) {
		return nil, nil, false
	}
	uid := os.Getuid()
	gid := os.Getgid()
	return []syscall.SysProcIDMap{{ContainerID: 0, HostID: uid, Size: 1}},
		[]syscall.SysProcIDMap{{ContainerID: 0, HostID: gid, Size: 1}},
		true
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

package runtime

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mini-docker/mini-docker/cgroups"
	cgroupmanager "github.com/mini-docker/mini-docker/cgroups/manager"
	"github.com/mini-docker/mini-docker/configs"
	"github.com/mini-docker/mini-docker/errkind"
	"github.com/mini-docker/mini-docker/image"
	"github.com/mini-docker/mini-docker/launcher"
	"github.com/mini-docker/mini-docker/network"
	"github.com/mini-docker/mini-docker/oci"
	"github.com/mini-docker/mini-docker/security/capabilities"
	"github.com/mini-docker/mini-docker/state"
	"github.com/mini-docker/mini-docker/sys"
)

// Manager implements the container/pod verbs of §4.8, thin over the
// launcher and state store as the spec requires.
type Manager struct {
	RT     *Runtime
	Store  *state.Store
	Images *image.Store
	net    *network.Builder
}

// NewManager opens the state store under rt.StateRoot and builds the
// image registry and network builder that sit on top of it.
func NewManager(rt *Runtime) (*Manager, error) {
	store, err := state.NewStoreAt(rt.StateRoot)
	if err != nil {
		return nil, err
	}
	return &Manager{
		RT:     rt,
		Store:  store,
		Images: image.NewStore(store.ImagesDir()),
		net:    &network.Builder{Leases: &network.LeasePool{Path: store.NetworkLeasesPath()}},
	}, nil
}

// RunOptions gathers `run`'s flags (§6) into one value.
type RunOptions struct {
	Name       string
	Hostname   string
	Image      string // a rootfs directory path, or a registered name:tag
	Argv       []string
	Env        []string
	Workdir    string
	User       string // "uid[:gid]"
	MemoryBytes int64
	CPUPercent  int64
	PidsLimit   int64
	NetMode    string // "none", "bridge", or "pod"
	PodRef     string
	Rootless   bool
	Detach     bool
	TTY        bool
	Interactive bool
	Remove     bool
	Volumes    []string // "host:container[:ro]"
	NoOverlay  bool
	Capabilities []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements `run` (§4.8): resolve the image, build a
// configs.Config, launch it, enroll it in its cgroup and network, and
// either wait for it (foreground) or return immediately (--detach).
func (m *Manager) Run(opts RunOptions) (*state.ContainerState, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	if err := m.Store.ReserveName(opts.Name); err != nil {
		return nil, err
	}

	rootfsPath, defaultCmd, defaultEnv, err := m.resolveImage(opts.Image)
	if err != nil {
		return nil, err
	}
	argv := opts.Argv
	if len(argv) == 0 {
		argv = defaultCmd
	}
	if len(argv) == 0 {
		return nil, errkind.New(errkind.ConfigInvalid, fmt.Errorf("no command specified and image has no default command"))
	}

	hostname := opts.Hostname
	if hostname == "" {
		hostname = id[:12]
	}

	user, err := parseUser(opts.User)
	if err != nil {
		return nil, err
	}
	mounts, err := parseVolumes(opts.Volumes)
	if err != nil {
		return nil, err
	}

	netMode := opts.NetMode
	if netMode == "" {
		netMode = "none"
	}
	var podNetnsPath string
	if netMode == "pod" {
		podID, err := m.Store.ResolvePod(opts.PodRef)
		if err != nil {
			return nil, err
		}
		podNetnsPath = m.Store.PodNamespacePath(podID, "net")
	}

	rootfsMode := "overlay"
	if opts.NoOverlay {
		rootfsMode = "bind"
	}

	caps := opts.Capabilities
	if _, err := capabilities.Resolve(caps); err != nil {
		return nil, err
	}

	cfg := &configs.Config{
		Rootfs:       rootfsPath,
		RootfsMode:   rootfsMode,
		Hostname:     hostname,
		Argv:         argv,
		Env:          append(defaultEnv, opts.Env...),
		Workdir:      firstNonEmpty(opts.Workdir, "/"),
		User:         configs.User{UID: user.uid, GID: user.gid},
		Mounts:       mounts,
		Rootless:     opts.Rootless,
		NetMode:      netMode,
		Capabilities: caps,
		Namespaces:   namespacesFor(netMode, opts.Rootless, podNetnsPath),
	}
	cfg.Cgroups = &configs.Cgroup{
		Name:     id,
		Rootless: opts.Rootless,
		Systemd:  m.RT.PreferSystemdCgroups,
		Resources: &configs.Resources{
			MemoryBytes: nonZeroPtr(opts.MemoryBytes),
			CPUPercent:  nonZeroPtr(opts.CPUPercent),
			PidsLimit:   nonZeroPtr(opts.PidsLimit),
		},
	}

	return m.launch(cfg, launchParams{
		id: id, name: opts.Name, rootfsMode: rootfsMode,
		netMode: netMode, podRef: opts.PodRef, podNetnsPath: podNetnsPath,
		detach: opts.Detach, remove: opts.Remove, tty: opts.TTY,
		stdin: opts.Stdin, stdout: opts.Stdout, stderr: opts.Stderr,
	})
}

// launchParams gathers what launch needs beyond the frozen
// configs.Config, shared by Run and RunOCI so neither re-implements
// the spawn/cgroup/network/state sequence.
type launchParams struct {
	id, name, rootfsMode     string
	netMode, podRef, podNetnsPath string
	detach, remove, tty      bool
	stdin                    io.Reader
	stdout, stderr           io.Writer
}

// launch runs the second half of `run`/`run-oci` (§4.8/§4.11): create
// the state entry, spawn the init process, enroll it in its cgroup and
// network, release it, and either wait (foreground) or hand off to
// reap (--detach).
func (m *Manager) launch(cfg *configs.Config, p launchParams) (*state.ContainerState, error) {
	if cfg.Cgroups != nil && cfg.Cgroups.Resources != nil {
		r := cfg.Cgroups.Resources
		if (r.MemoryBytes != nil || r.CPUPercent != nil || r.PidsLimit != nil) && m.RT.Caps.CgroupDriver == "none" {
			return nil, errkind.New(errkind.ResourceCgroup, errUnsupportedCgroupDriver)
		}
	}
	cgroupMgr, err := cgroupmanager.New(cfg.Cgroups)
	if err != nil {
		return nil, errkind.New(errkind.ResourceCgroup, err)
	}

	now := time.Now().Unix()
	st := &state.ContainerState{
		ID: p.id, Name: p.name, Status: state.StatusCreated,
		RootfsMode: p.rootfsMode, CreatedAt: now,
	}
	if err := m.Store.CreateContainer(p.id, cfg, st); err != nil {
		return nil, err
	}

	logFile, err := os.OpenFile(m.Store.ContainerLogPath(p.id), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	stdin, stdout, stderr := p.stdin, io.Writer(logFile), io.Writer(logFile)
	if !p.detach && p.stdout != nil {
		stdout = io.MultiWriter(logFile, p.stdout)
	}
	if !p.detach && p.stderr != nil {
		stderr = io.MultiWriter(logFile, p.stderr)
	}

	var tty *ttyPair
	var spawnStdin io.Reader = stdin
	var spawnStdout, spawnStderr io.Writer = stdout, stderr
	if p.tty {
		tty, err = allocateTTY()
		if err != nil {
			logFile.Close()
			return nil, errkind.New(errkind.ResourceKernel, err)
		}
		spawnStdin, spawnStdout, spawnStderr = tty.slave, tty.slave, tty.slave
	}

	handle, err := launcher.Spawn(cfg, spawnStdin, spawnStdout, spawnStderr)
	if err != nil {
		logFile.Close()
		if tty != nil {
			tty.Close()
		}
		return nil, err
	}
	if tty != nil {
		_ = tty.slave.Close()
		tty.copyIO(stdin, stdout)
	}

	if err := cgroupMgr.Apply(handle.Pid); err != nil {
		_ = handle.Cmd.Process.Kill()
		return nil, errkind.New(errkind.ResourceCgroup, err)
	}

	var attachment network.Attachment
	if p.netMode == "bridge" || p.netMode == "pod" {
		attachment, err = m.net.Attach(handle.Pid, p.id, network.Mode(p.netMode), p.podNetnsPath)
		if err != nil {
			_ = handle.Cmd.Process.Kill()
			return nil, err
		}
	}

	if err := handle.Release(); err != nil {
		_ = handle.Cmd.Process.Kill()
		return nil, err
	}

	startTicks, _ := state.ProcessStartTicks(handle.Pid)
	started := time.Now().Unix()
	st.Status = state.StatusRunning
	st.PID = handle.Pid
	st.StartTimeTicks = startTicks
	st.StartedAt = &started
	if handle.RootfsMode != "" {
		st.RootfsMode = handle.RootfsMode
	}
	if p.netMode == "pod" {
		st.PodID = p.podRef
	}
	if err := m.Store.SaveContainerState(st); err != nil {
		return nil, err
	}

	if p.detach {
		go m.reap(p.id, handle, cgroupMgr, attachment, tty, logFile)
		return st, nil
	}

	code, waitErr := handle.Wait()
	if tty != nil {
		_ = tty.master.Close()
	}
	_ = logFile.Close()
	m.teardown(p.id, cgroupMgr, attachment)
	finished := time.Now().Unix()
	st.Status = state.StatusExited
	st.FinishedAt = &finished
	ec := code
	st.ExitCode = &ec
	_ = m.Store.SaveContainerState(st)
	if p.remove {
		_ = m.Store.RemoveContainer(p.id)
	}
	if waitErr != nil {
		return st, waitErr
	}
	return st, nil
}

// RunOCIOptions gathers `run-oci`'s flags (§4.11/§6) into one value.
type RunOCIOptions struct {
	BundlePath string
	Name       string
	Detach     bool
	Rootless   bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// RunOCI implements `run-oci <bundle> [--detach] [--rootless]`
// (§4.11): loads an OCI runtime bundle's config.json via oci.LoadBundle
// and launches it through the same spawn/cgroup/network pipeline Run
// uses, rather than a separate bundle-only code path.
func (m *Manager) RunOCI(opts RunOCIOptions) (*state.ContainerState, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	if err := m.Store.ReserveName(opts.Name); err != nil {
		return nil, err
	}

	cfg, err := oci.LoadBundle(opts.BundlePath, oci.CreateOpts{
		CgroupName:       id,
		Rootless:         opts.Rootless,
		UseSystemdCgroup: m.RT.PreferSystemdCgroups,
	})
	if err != nil {
		return nil, errkind.New(errkind.ConfigInvalid, err)
	}
	if len(cfg.Namespaces) == 0 {
		cfg.Namespaces = namespacesFor(cfg.NetMode, opts.Rootless, "")
	}
	if cfg.Cgroups == nil {
		cfg.Cgroups = &configs.Cgroup{Name: id, Rootless: opts.Rootless, Systemd: m.RT.PreferSystemdCgroups}
	}

	return m.launch(cfg, launchParams{
		id: id, name: opts.Name, rootfsMode: cfg.RootfsMode,
		netMode: cfg.NetMode, detach: opts.Detach, tty: false,
		stdin: opts.Stdin, stdout: opts.Stdout, stderr: opts.Stderr,
	})
}

// reap waits for a detached container's init process in the
// background and records its exit, mirroring what Run's foreground
// path does inline.
func (m *Manager) reap(id string, handle *launcher.Handle, cgroupMgr cgroups.Manager, attachment network.Attachment, tty *ttyPair, logFile *os.File) {
	code, _ := handle.Wait()
	if tty != nil {
		_ = tty.master.Close()
	}
	_ = logFile.Close()
	m.teardown(id, cgroupMgr, attachment)
	st, err := m.Store.LoadContainerState(id)
	if err != nil {
		return
	}
	finished := time.Now().Unix()
	st.Status = state.StatusExited
	st.FinishedAt = &finished
	ec := code
	st.ExitCode = &ec
	_ = m.Store.SaveContainerState(st)
}

// teardown reverses what launch set up: the cgroup leaf and, if a was ever
// attached, the veth/bridge-refcount/lease state network.Builder.Attach
// created. Detach no-ops for an unattached (zero-value) a.
func (m *Manager) teardown(id string, cgroupMgr cgroups.Manager, a network.Attachment) {
	_ = cgroupMgr.Destroy()
	_ = m.net.Detach(a, id)
}

// Stop implements `stop <c> [--time T] [--force]` (§4.8).
func (m *Manager) Stop(ref string, seconds int, force bool) error {
	id, err := m.Store.Resolve(ref)
	if err != nil {
		return err
	}
	return m.Store.WithContainerLock(id, func() error {
		st, err := m.Store.LoadContainerState(id)
		if err != nil {
			return err
		}
		if st.Status != state.StatusRunning {
			return nil
		}
		if err := sys.Kill(st.PID, unixSIGTERM); err != nil {
			return errkind.New(errkind.ResourceKernel, err)
		}
		if force {
			return sys.Kill(st.PID, unixSIGKILL)
		}
		deadline := time.Now().Add(time.Duration(seconds) * time.Second)
		for time.Now().Before(deadline) {
			time.Sleep(200 * time.Millisecond)
			st, err = m.Store.LoadContainerState(id)
			if err != nil {
				return err
			}
			if st.Status != state.StatusRunning {
				return nil
			}
		}
		return sys.Kill(st.PID, unixSIGKILL)
	})
}

// Rm implements `rm <c> [--force]` (§4.8).
func (m *Manager) Rm(ref string, force bool) error {
	id, err := m.Store.Resolve(ref)
	if err != nil {
		return err
	}
	return m.Store.WithContainerLock(id, func() error {
		st, err := m.Store.LoadContainerState(id)
		if err != nil {
			return err
		}
		if st.Status == state.StatusRunning {
			if !force {
				return errkind.New(errkind.StateConflict, fmt.Errorf("container %s is running; use --force", id))
			}
			// Stop would take this container's lock a second time and
			// block on it, so send its --force signals directly.
			if err := sys.Kill(st.PID, unixSIGTERM); err != nil {
				return errkind.New(errkind.ResourceKernel, err)
			}
			if err := sys.Kill(st.PID, unixSIGKILL); err != nil {
				return err
			}
		}
		return m.Store.RemoveContainer(id)
	})
}

// ExecOptions gathers `exec`'s flags (§4.8) into one value.
type ExecOptions struct {
	Argv         []string
	Env          []string
	Workdir      string
	User         string
	TTY          bool
	Capabilities []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// nsKindByType maps a namespace's Go-side type to the /proc/<pid>/ns/<kind>
// file the kernel exposes for it, so exec can build setns paths from a
// running container's pid-1.
var nsKindByType = map[configs.NamespaceType]string{
	configs.NEWNET:    "net",
	configs.NEWPID:    "pid",
	configs.NEWNS:     "mnt",
	configs.NEWUTS:    "uts",
	configs.NEWIPC:    "ipc",
	configs.NEWUSER:   "user",
	configs.NEWCGROUP: "cgroup",
}

// Exec implements `exec <c> <argv...>` (§4.8): joins a running container's
// existing namespaces via setns, re-drops capabilities from the host
// allow-list (Open Question (c) — it does not trust the target's already-
// dropped set), and execve's argv. It never creates a cgroup; the joined
// process is written into the container's existing cgroup.procs.
func (m *Manager) Exec(ref string, opts ExecOptions) (int, error) {
	id, err := m.Store.Resolve(ref)
	if err != nil {
		return -1, err
	}
	st, err := m.Store.LoadContainerState(id)
	if err != nil {
		return -1, err
	}
	if st.Status != state.StatusRunning {
		return -1, errkind.New(errkind.StateConflict, fmt.Errorf("container %s is not running", id))
	}
	target, err := m.Store.LoadContainerConfig(id)
	if err != nil {
		return -1, err
	}

	if len(opts.Argv) == 0 {
		return -1, errkind.New(errkind.ConfigInvalid, fmt.Errorf("exec requires a command"))
	}
	user, err := parseUser(opts.User)
	if err != nil {
		return -1, err
	}
	caps := opts.Capabilities
	if _, err := capabilities.Resolve(caps); err != nil {
		return -1, err
	}

	var joinNS configs.Namespaces
	for _, ns := range target.Namespaces {
		kind, ok := nsKindByType[ns.Type]
		if !ok {
			continue
		}
		joinNS = append(joinNS, configs.Namespace{Type: ns.Type, Path: fmt.Sprintf("/proc/%d/ns/%s", st.PID, kind)})
	}

	cfg := &configs.Config{
		Argv:         opts.Argv,
		Env:          append([]string{}, opts.Env...),
		Workdir:      opts.Workdir,
		User:         configs.User{UID: user.uid, GID: user.gid},
		Namespaces:   joinNS,
		Capabilities: caps,
		JoinOnly:     true,
	}

	stdin, stdout, stderr := opts.Stdin, opts.Stdout, opts.Stderr
	var tty *ttyPair
	if opts.TTY {
		tty, err = allocateTTY()
		if err != nil {
			return -1, errkind.New(errkind.ResourceKernel, err)
		}
		defer tty.Close()
		stdin, stdout, stderr = tty.slave, tty.slave, tty.slave
	}

	handle, err := launcher.Spawn(cfg, stdin, stdout, stderr)
	if err != nil {
		return -1, err
	}
	if tty != nil {
		_ = tty.slave.Close()
		if opts.Stdin != nil && opts.Stdout != nil {
			tty.copyIO(opts.Stdin, opts.Stdout)
		}
	}

	if target.Cgroups != nil {
		if cgroupMgr, err := cgroupmanager.New(target.Cgroups); err == nil {
			_ = cgroupMgr.Apply(handle.Pid)
		}
	}

	if err := handle.Release(); err != nil {
		_ = handle.Cmd.Process.Kill()
		return -1, err
	}
	return handle.Wait()
}

// Ps implements `ps [-a]` (§4.8): running containers only unless all
// is set.
func (m *Manager) Ps(all bool) ([]*state.ContainerState, error) {
	ids, err := m.Store.ListContainerIDs()
	if err != nil {
		return nil, err
	}
	var out []*state.ContainerState
	for _, id := range ids {
		st, err := m.Store.LoadContainerState(id)
		if err != nil {
			continue
		}
		if all || st.Status == state.StatusRunning {
			out = append(out, st)
		}
	}
	return out, nil
}

// Inspect implements `inspect <c>` (§4.8), reconciled like Ps.
func (m *Manager) Inspect(ref string) (*state.ContainerState, error) {
	id, err := m.Store.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return m.Store.LoadContainerState(id)
}

// Logs implements `logs <c> [--follow] [--tail N]` (§4.8).
func (m *Manager) Logs(ref string, follow bool, tail int, w io.Writer) error {
	id, err := m.Store.Resolve(ref)
	if err != nil {
		return err
	}
	f, err := os.Open(m.Store.ContainerLogPath(id))
	if err != nil {
		return err
	}
	defer f.Close()
	if tail > 0 {
		if err := seekToTailLines(f, tail); err != nil {
			return err
		}
	}
	if _, err := io.Copy(w, f); err != nil {
		return err
	}
	if !follow {
		return nil
	}
	for {
		time.Sleep(500 * time.Millisecond)
		st, err := m.Store.LoadContainerState(id)
		if err != nil || st.Status != state.StatusRunning {
			return nil
		}
		if _, err := io.Copy(w, f); err != nil {
			return err
		}
	}
}

// Cleanup implements `cleanup --all` (§4.8): force-removes every
// dead/exited container that finished at least olderThan ago. It does not
// remove the bridge or the NAT rule.
func (m *Manager) Cleanup(olderThan time.Duration) error {
	ids, err := m.Store.ListContainerIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		st, err := m.Store.LoadContainerState(id)
		if err != nil {
			continue
		}
		if st.Status != state.StatusDead && st.Status != state.StatusExited {
			continue
		}
		finished := st.CreatedAt
		if st.FinishedAt != nil {
			finished = *st.FinishedAt
		}
		if time.Since(time.Unix(finished, 0)) < olderThan {
			continue
		}
		_ = m.Rm(id, true)
	}
	return nil
}

// seekToTailLines positions f so a subsequent read yields at most the
// last n lines, by scanning backward from the end in fixed-size chunks
// counting newlines.
func seekToTailLines(f *os.File, n int) error {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	const chunkSize = 4096
	var buf []byte
	pos := size
	newlines := 0
	for pos > 0 && newlines <= n {
		readSize := int64(chunkSize)
		if readSize > pos {
			readSize = pos
		}
		pos -= readSize
		chunk := make([]byte, readSize)
		if _, err := f.ReadAt(chunk, pos); err != nil {
			return err
		}
		buf = append(chunk, buf...)
		newlines = strings.Count(string(buf), "\n")
	}
	lines := strings.SplitAfter(string(buf), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	offset := size - int64(len(strings.Join(lines, "")))
	_, err = f.Seek(offset, io.SeekStart)
	return err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonZeroPtr(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

type uidGid struct{ uid, gid int }

func parseUser(spec string) (uidGid, error) {
	if spec == "" {
		return uidGid{}, nil
	}
	parts := strings.SplitN(spec, ":", 2)
	uid, err := strconv.Atoi(parts[0])
	if err != nil {
		return uidGid{}, errkind.New(errkind.ConfigInvalid, fmt.Errorf("invalid uid %q: %w", parts[0], err))
	}
	gid := uid
	if len(parts) == 2 {
		gid, err = strconv.Atoi(parts[1])
		if err != nil {
			return uidGid{}, errkind.New(errkind.ConfigInvalid, fmt.Errorf("invalid gid %q: %w", parts[1], err))
		}
	}
	return uidGid{uid: uid, gid: gid}, nil
}

func parseVolumes(specs []string) ([]configs.Mount, error) {
	var mounts []configs.Mount
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 {
			return nil, errkind.New(errkind.ConfigInvalid, fmt.Errorf("invalid volume spec %q (want host:container[:ro])", spec))
		}
		ro := len(parts) == 3 && parts[2] == "ro"
		mounts = append(mounts, configs.Mount{HostPath: parts[0], ContainerPath: parts[1], ReadOnly: ro})
	}
	return mounts, nil
}

func namespacesFor(netMode string, rootless bool, podNetnsPath string) configs.Namespaces {
	ns := configs.Namespaces{
		{Type: configs.NEWPID},
		{Type: configs.NEWNS},
		{Type: configs.NEWUTS},
		{Type: configs.NEWIPC},
	}
	switch netMode {
	case "pod":
		// Members join all three handles the pod pinned; they sit side by
		// side, so the uts/ipc paths follow from the net one.
		nsDir := strings.TrimSuffix(podNetnsPath, "net")
		ns = configs.Namespaces{
			{Type: configs.NEWPID},
			{Type: configs.NEWNS},
			{Type: configs.NEWUTS, Path: nsDir + "uts"},
			{Type: configs.NEWIPC, Path: nsDir + "ipc"},
			{Type: configs.NEWNET, Path: podNetnsPath},
		}
	default:
		ns = append(ns, configs.Namespace{Type: configs.NEWNET})
	}
	if rootless {
		ns = append(ns, configs.Namespace{Type: configs.NEWUSER})
	}
	return ns
}

// resolveImage treats image as a filesystem path if it exists on disk,
// else as a registered name:tag.
func (m *Manager) resolveImage(ref string) (rootfs string, cmd, env []string, err error) {
	if st, statErr := os.Stat(ref); statErr == nil && st.IsDir() {
		return ref, nil, nil, nil
	}
	img, err := m.Images.Resolve(ref)
	if err != nil {
		return "", nil, nil, err
	}
	return img.RootfsPath, img.DefaultCmd, img.DefaultEnv, nil
}

const (
	unixSIGTERM = 15
	unixSIGKILL = 9
)

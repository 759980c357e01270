// Package rootfs builds a container's final mount tree: either an OverlayFS
// stack (lower/upper/work/merged) or a plain bind mount of the image root,
// applies user-requested bind volumes with cyphar/filepath-securejoin, and
// switches the calling process into it via pivot_root (or MS_MOVE+chroot
// when pivot_root is unavailable, e.g. inside a user namespace).
//
// Grounded on the teacher's configs.NoPivotRoot field/specconv field (the
// teacher never implemented the mount logic itself — this is recovered from
// original_source/mini_docker/filesystem.py's setup_overlay_filesystem/
// setup_pivot_root, translated into Go using the same library choices
// nestybox-sysbox-runc and cedana-cedana use for securejoin, and
// mrunalp/fileutils for the unprivileged copy fallback instead of Python's
// shutil.copytree).
package rootfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/moby/sys/mountinfo"
	"github.com/mrunalp/fileutils"
	"golang.org/x/sys/unix"

	"github.com/mini-docker/mini-docker/configs"
	"github.com/mini-docker/mini-docker/errkind"
	"github.com/mini-docker/mini-docker/sys"
)

// Paths are the four OverlayFS-layer directories for one container, rooted
// under the container's state directory.
type Paths struct {
	Lower  string
	Upper  string
	Work   string
	Merged string
}

// OverlayPaths derives the four layer directories from a per-container
// state directory, mirroring original_source's get_overlay_paths layout.
func OverlayPaths(stateDir string) Paths {
	return Paths{
		Lower:  filepath.Join(stateDir, "lower"),
		Upper:  filepath.Join(stateDir, "upper"),
		Work:   filepath.Join(stateDir, "work"),
		Merged: filepath.Join(stateDir, "merged"),
	}
}

// Builder builds and tears down a container's mount tree.
type Builder struct {
	Config   *configs.Config
	StateDir string
	// Rootless downgrades pivot_root to the MS_MOVE+chroot fallback and
	// tolerates EPERM from mount(2) where §4.3 allows it.
	Rootless bool
}

// Build constructs merged per c.Config.RootfsMode, applies bind volumes,
// and returns the final merged path plus a Teardown func that undoes every
// mount in reverse order. It does not pivot_root; callers in launcher do
// that once the child process is ready to switch into the new root.
func (b *Builder) Build() (merged string, teardown func() error, err error) {
	mode := b.Config.RootfsMode
	if mode == "" {
		mode = "overlay"
	}
	if b.Rootless {
		b.Config.NoPivotRoot = true
	}

	var mounted []string
	defer func() {
		if err != nil {
			unmountAll(mounted)
		}
	}()

	switch mode {
	case "overlay":
		merged, mounted, err = b.buildOverlay()
		if e, ok := err.(*errkind.Error); ok && e.Kind == errkind.ResourceKernel {
			// buildOverlay reports the overlay mount itself as unsupported
			// (ENOTSUP/EINVAL/EPERM) via this Kind; §4.3 says to retry in
			// bind mode rather than fail the launch outright.
			mode = "bind"
			unmountAll(mounted)
			merged, mounted, err = b.buildBind()
		}
	case "bind":
		merged, mounted, err = b.buildBind()
	default:
		return "", nil, errkind.New(errkind.ConfigInvalid, fmt.Errorf("unknown rootfs mode %q", mode))
	}
	if err != nil {
		return "", nil, err
	}
	b.Config.RootfsMode = mode

	specialMounts, serr := mountSpecialFilesystems(merged)
	mounted = append(mounted, specialMounts...)
	if serr != nil {
		unmountAll(mounted)
		return "", nil, serr
	}

	volMounts, verr := b.applyVolumes(merged)
	if verr != nil {
		unmountAll(mounted)
		return "", nil, verr
	}
	mounted = append(mounted, volMounts...)

	final := merged
	return final, func() error { return unmountAll(mounted) }, nil
}

// buildOverlay mounts lower read-only (bind of the image rootfs, falling
// back to a recursive copy when the bind fails per §4.3's ENOTSUP/EPERM/
// EINVAL fallback), then mounts the overlay itself. When the overlay mount
// fails with ENOTSUP, EINVAL or EPERM it reports resource.kernel, which
// Build takes as the signal to fall back to bind mode; any other failure
// reports fs.bind-missing and is not retried.
func (b *Builder) buildOverlay() (string, []string, error) {
	p := OverlayPaths(b.StateDir)
	for _, dir := range []string{p.Lower, p.Upper, p.Work, p.Merged} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", nil, errkind.New(errkind.FSBindMissing, err)
		}
	}

	var mounted []string
	empty, err := dirEmpty(p.Lower)
	if err != nil {
		return "", nil, errkind.New(errkind.FSBindMissing, err)
	}
	if empty {
		if err := sys.Mount(b.Config.Rootfs, p.Lower, "", unix.MS_BIND|unix.MS_RDONLY, ""); err != nil {
			if copyErr := copyTree(b.Config.Rootfs, p.Lower); copyErr != nil {
				return "", nil, errkind.New(errkind.FSBindMissing, copyErr)
			}
		} else {
			mounted = append(mounted, p.Lower)
		}
	}

	opts := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", p.Lower, p.Upper, p.Work)
	if err := sys.Mount("overlay", p.Merged, "overlay", 0, opts); err != nil {
		if isOverlayUnsupported(err) {
			return "", mounted, errkind.Kernel(fmt.Errorf("overlay unsupported, falling back to bind mode: %w", err))
		}
		return "", mounted, errkind.New(errkind.FSBindMissing, err)
	}
	mounted = append(mounted, p.Merged)
	return p.Merged, mounted, nil
}

// buildBind mounts the image rootfs directly as the container's merged
// tree, read-only when Config.Readonlyfs is set.
func (b *Builder) buildBind() (string, []string, error) {
	merged := filepath.Join(b.StateDir, "merged")
	if err := os.MkdirAll(merged, 0o755); err != nil {
		return "", nil, errkind.New(errkind.FSBindMissing, err)
	}
	flags := uintptr(unix.MS_BIND | unix.MS_REC)
	if err := sys.Mount(b.Config.Rootfs, merged, "", flags, ""); err != nil {
		return "", nil, errkind.New(errkind.FSBindMissing, err)
	}
	mounted := []string{merged}
	if b.Config.Readonlyfs {
		if err := sys.Mount("", merged, "", flags|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
			return "", mounted, errkind.New(errkind.FSBindMissing, err)
		}
	}
	return merged, mounted, nil
}

// mountSpecialFilesystems mounts /proc, /sys, and /dev under merged before
// pivot, per §4.3 and original_source's setup_pivot_root. proc and sysfs
// are mandatory (a container without /proc fails testable property 1);
// /dev tries devtmpfs first and falls back to a recursive bind of the
// host's /dev, matching setup_pivot_root's own fallback, and is tolerated
// if both fail since it isn't required for pid-1 to be observable.
func mountSpecialFilesystems(merged string) ([]string, error) {
	var mounted []string

	procPath := filepath.Join(merged, "proc")
	if err := os.MkdirAll(procPath, 0o755); err != nil {
		return mounted, errkind.New(errkind.FSBindMissing, err)
	}
	if err := sys.Mount("proc", procPath, "proc", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_NODEV, ""); err != nil {
		return mounted, errkind.New(errkind.FSBindMissing, fmt.Errorf("mount proc: %w", err))
	}
	mounted = append(mounted, procPath)

	sysPath := filepath.Join(merged, "sys")
	if err := os.MkdirAll(sysPath, 0o755); err != nil {
		return mounted, errkind.New(errkind.FSBindMissing, err)
	}
	if err := sys.Mount("sysfs", sysPath, "sysfs", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_NODEV, ""); err != nil {
		return mounted, errkind.New(errkind.FSBindMissing, fmt.Errorf("mount sysfs: %w", err))
	}
	mounted = append(mounted, sysPath)

	devPath := filepath.Join(merged, "dev")
	if err := os.MkdirAll(devPath, 0o755); err != nil {
		return mounted, errkind.New(errkind.FSBindMissing, err)
	}
	if err := sys.Mount("devtmpfs", devPath, "devtmpfs", unix.MS_NOSUID, ""); err != nil {
		if err := sys.Mount("/dev", devPath, "", unix.MS_BIND|unix.MS_REC, ""); err == nil {
			mounted = append(mounted, devPath)
			mounted = append(mounted, recursiveMountChildren(devPath)...)
		}
	} else {
		mounted = append(mounted, devPath)
	}

	return mounted, nil
}

// applyVolumes bind-mounts every configured volume onto merged, resolving
// each destination with securejoin.SecureJoin so a malicious or buggy
// ContainerPath can't escape merged via symlinks (§4.3).
func (b *Builder) applyVolumes(merged string) ([]string, error) {
	var mounted []string
	for _, m := range b.Config.Mounts {
		dest, err := securejoin.SecureJoin(merged, m.ContainerPath)
		if err != nil {
			return mounted, errkind.New(errkind.FSBindMissing, fmt.Errorf("resolve volume dest %s: %w", m.ContainerPath, err))
		}
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return mounted, errkind.New(errkind.FSBindMissing, err)
		}
		flags := uintptr(unix.MS_BIND | unix.MS_REC)
		if err := sys.Mount(m.HostPath, dest, "", flags, ""); err != nil {
			return mounted, errkind.New(errkind.FSBindMissing, fmt.Errorf("bind volume %s -> %s: %w", m.HostPath, m.ContainerPath, err))
		}
		mounted = append(mounted, dest)
		mounted = append(mounted, recursiveMountChildren(dest)...)
		if m.ReadOnly {
			if err := sys.Mount("", dest, "", flags|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
				return mounted, errkind.New(errkind.FSBindMissing, err)
			}
		}
	}
	return mounted, nil
}

// recursiveMountChildren enumerates every mount moby/sys/mountinfo finds
// strictly under root, shallowest first, so unmountAll's plain
// reverse-order walk (which pops from the end of mounted) detaches each
// submount before the recursive bind that carried it in. A plain
// MS_BIND|MS_REC bind (used for volumes and the /dev fallback) pulls in
// every submount under the source, and lazily unmounting only the root of
// that tree leaves its children orphaned in the mount table.
func recursiveMountChildren(root string) []string {
	infos, err := mountinfo.GetMounts(mountinfo.PrefixFilter(root + "/"))
	if err != nil {
		return nil
	}
	sort.Slice(infos, func(i, j int) bool { return len(infos[i].Mountpoint) < len(infos[j].Mountpoint) })
	children := make([]string, 0, len(infos))
	for _, info := range infos {
		children = append(children, info.Mountpoint)
	}
	return children
}

// PivotInto switches the calling process's root to merged: pivot_root when
// allowed, MS_MOVE+chroot when Config.NoPivotRoot is set (Build sets it for
// rootless builds) or when pivot_root itself fails, matching original_source's
// setup_pivot_root fallback-to-chroot behavior and §4.6's step ordering.
func PivotInto(merged string, noPivotRoot bool) error {
	if err := sys.Mount(merged, merged, "", unix.MS_BIND, ""); err != nil {
		return errkind.New(errkind.FSBindMissing, fmt.Errorf("bind merged onto itself: %w", err))
	}

	if noPivotRoot {
		return moveRootChroot(merged)
	}

	oldRoot := filepath.Join(merged, ".oldroot")
	if err := os.MkdirAll(oldRoot, 0o700); err != nil {
		return errkind.New(errkind.FSBindMissing, err)
	}
	if err := sys.PivotRoot(merged, oldRoot); err != nil {
		return moveRootChroot(merged)
	}
	if err := unix.Chdir("/"); err != nil {
		return errkind.New(errkind.FSBindMissing, fmt.Errorf("chdir / after pivot_root: %w", err))
	}
	if err := sys.Unmount("/.oldroot", unix.MNT_DETACH); err != nil {
		return errkind.New(errkind.FSBindMissing, fmt.Errorf("detach .oldroot: %w", err))
	}
	return os.RemoveAll("/.oldroot")
}

func moveRootChroot(merged string) error {
	if err := unix.Chdir(merged); err != nil {
		return errkind.New(errkind.FSBindMissing, err)
	}
	if err := unix.Mount(".", "/", "", unix.MS_MOVE, ""); err != nil {
		return errkind.New(errkind.FSBindMissing, fmt.Errorf("MS_MOVE fallback: %w", err))
	}
	if err := unix.Chroot("."); err != nil {
		return errkind.New(errkind.FSBindMissing, fmt.Errorf("chroot fallback: %w", err))
	}
	return unix.Chdir("/")
}

func dirEmpty(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	if err == nil {
		return false, nil
	}
	return true, nil
}

// copyTree is the unprivileged fallback when bind-mounting the image rootfs
// fails (no CAP_SYS_ADMIN). Hard-links where possible and falls back to a
// full copy across devices, grounded on mrunalp/fileutils.CopyFile usage
// in the teacher corpus's rootless code paths.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		}
		if err := os.Link(path, target); err == nil {
			return nil
		}
		return fileutils.CopyFile(path, target)
	})
}

func isOverlayUnsupported(err error) bool {
	return errIsAny(err, unix.ENOTSUP, unix.EINVAL, unix.EPERM)
}

func errIsAny(err error, errnos ...unix.Errno) bool {
	for _, e := range errnos {
		if isErrno(err, e) {
			return true
		}
	}
	return false
}

func isErrno(err error, errno unix.Errno) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(unix.Errno); ok {
			return e == errno
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func unmountAll(mounted []string) error {
	var firstErr error
	for i := len(mounted) - 1; i >= 0; i-- {
		if err := sys.Unmount(mounted[i], unix.MNT_DETACH); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

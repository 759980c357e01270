// Package sys wraps the Linux syscalls the launcher needs (§4.1). Every
// function here is a thin, direct mapping onto golang.org/x/sys/unix; none
// of them do I/O beyond the syscall itself, and all surface the kernel's
// errno unmodified so callers can match on it (errors.Is(err, unix.EPERM)).
package sys

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Unshare detaches the calling thread from the namespaces named by flags.
func Unshare(flags int) error {
	if err := unix.Unshare(flags); err != nil {
		return fmt.Errorf("unshare(0x%x): %w", flags, err)
	}
	return nil
}

// Setns joins the namespace referred to by fd.
func Setns(fd int, nstype int) error {
	if err := unix.Setns(fd, nstype); err != nil {
		return fmt.Errorf("setns(%d, 0x%x): %w", fd, nstype, err)
	}
	return nil
}

// PivotRoot makes newRoot the process's new root filesystem and moves the
// old root to oldRoot (which must be a directory under newRoot).
func PivotRoot(newRoot, oldRoot string) error {
	if err := unix.PivotRoot(newRoot, oldRoot); err != nil {
		return fmt.Errorf("pivot_root(%s, %s): %w", newRoot, oldRoot, err)
	}
	return nil
}

// Mount is a direct wrapper over mount(2).
func Mount(source, target, fstype string, flags uintptr, data string) error {
	if err := unix.Mount(source, target, fstype, flags, data); err != nil {
		return fmt.Errorf("mount(%s -> %s, fstype=%s): %w", source, target, fstype, err)
	}
	return nil
}

// Unmount is a direct wrapper over umount2(2).
func Unmount(target string, flags int) error {
	if err := unix.Unmount(target, flags); err != nil {
		return fmt.Errorf("umount2(%s): %w", target, err)
	}
	return nil
}

// Sethostname sets the UTS hostname visible inside the calling namespace.
func Sethostname(name string) error {
	if err := unix.Sethostname([]byte(name)); err != nil {
		return fmt.Errorf("sethostname(%s): %w", name, err)
	}
	return nil
}

// SetNoNewPrivs sets PR_SET_NO_NEW_PRIVS so later execve calls ignore
// setuid/setgid bits. Must run before the seccomp filter is installed.
func SetNoNewPrivs() error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", err)
	}
	return nil
}

// CapBsetDrop clears cap from the bounding set via
// prctl(PR_CAPBSET_DROP, cap).
func CapBsetDrop(cap uintptr) error {
	if err := unix.Prctl(unix.PR_CAPBSET_DROP, cap, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl(PR_CAPBSET_DROP, %d): %w", cap, err)
	}
	return nil
}

// ClearAmbientCaps drops every ambient capability via
// prctl(PR_CAP_AMBIENT, PR_CAP_AMBIENT_CLEAR_ALL).
func ClearAmbientCaps() error {
	if err := unix.Prctl(unix.PR_CAP_AMBIENT, unix.PR_CAP_AMBIENT_CLEAR_ALL, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl(PR_CAP_AMBIENT_CLEAR_ALL): %w", err)
	}
	return nil
}

// OpenCgroupFile opens a file under a cgroupfs directory for writing,
// creating it is never necessary (the kernel provides the file), but the
// directory it lives in usually must already exist.
func OpenCgroupFile(dir, name string, flags int) (*os.File, error) {
	f, err := os.OpenFile(dir+"/"+name, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s/%s: %w", dir, name, err)
	}
	return f, nil
}

// Kill sends signal sig to pid, exactly as kill(2).
func Kill(pid, sig int) error {
	if err := unix.Kill(pid, unix.Signal(sig)); err != nil {
		return fmt.Errorf("kill(%d, %d): %w", pid, sig, err)
	}
	return nil
}

// Package cgroups holds the driver-independent helpers shared by the
// cgroup-v1 (fs), cgroup-v2 (fs2), and systemd cgroup managers: detecting
// which hierarchy mode the host runs, parsing /proc/<pid>/cgroup, and
// writing cgroup.procs. Adapted from the teacher's libcontainer/cgroups
// package of the same name.
package cgroups

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const (
	CgroupProcesses   = "cgroup.procs"
	unifiedMountpoint = "/sys/fs/cgroup"
	hybridMountpoint  = "/sys/fs/cgroup/unified"
)

// Manager is the interface all three cgroup drivers (fs, fs2, systemd)
// implement: enroll a pid, apply resource limits, and tear the cgroup down.
type Manager interface {
	// Apply creates (if needed) the cgroup and moves pid into it.
	Apply(pid int) error
	// Set writes resource limits without moving any process.
	Set(r *Resources) error
	// Path returns the cgroup's absolute directory, or "" if not yet created.
	Path() string
	// Destroy kills any remaining members and removes the cgroup directory.
	Destroy() error
}

// Resources mirrors configs.Resources without importing configs, so the
// cgroup drivers don't need to depend on the higher-level config package.
type Resources struct {
	MemoryBytes *int64
	CPUPercent  *int64
	PidsLimit   *int64
}

var (
	isUnifiedOnce sync.Once
	isUnified     bool
	isHybridOnce  sync.Once
	isHybrid      bool
)

// IsCgroup2UnifiedMode returns whether the host runs cgroup v2 in unified
// mode (i.e. /sys/fs/cgroup is itself a cgroup2 mount).
func IsCgroup2UnifiedMode() bool {
	isUnifiedOnce.Do(func() {
		var st unix.Statfs_t
		err := unix.Statfs(unifiedMountpoint, &st)
		if err != nil {
			if os.IsNotExist(err) {
				isUnified = false
				return
			}
			isUnified = false
			return
		}
		isUnified = st.Type == unix.CGROUP2_SUPER_MAGIC
	})
	return isUnified
}

// IsCgroup2HybridMode returns whether the host runs the v1/v2 hybrid
// hierarchy (a "unified" subdirectory mounted alongside the v1 mounts).
func IsCgroup2HybridMode() bool {
	isHybridOnce.Do(func() {
		var st unix.Statfs_t
		err := unix.Statfs(hybridMountpoint, &st)
		if err != nil {
			isHybrid = false
			return
		}
		isHybrid = st.Type == unix.CGROUP2_SUPER_MAGIC
	})
	return isHybrid
}

// ParseCgroupFile parses /proc/<pid>/cgroup into a map of subsystem to
// cgroup path. For cgroup v2 unified mode the map has a single "" key.
func ParseCgroupFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseCgroupFromReader(f)
}

func parseCgroupFromReader(r io.Reader) (map[string]string, error) {
	s := bufio.NewScanner(r)
	result := make(map[string]string)
	for s.Scan() {
		text := s.Text()
		parts := strings.SplitN(text, ":", 3)
		if len(parts) < 3 {
			return nil, fmt.Errorf("invalid cgroup entry: must contain at least two colons: %v", text)
		}
		for _, subs := range strings.Split(parts[1], ",") {
			result[subs] = parts[2]
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ReadFile reads a single cgroupfs file and trims its trailing newline.
func ReadFile(dir, file string) (string, error) {
	data, err := os.ReadFile(dir + "/" + file)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteFile writes a single cgroupfs file, retrying on EINTR like the
// teacher's WriteCgroupProc does for cgroup.procs.
func WriteFile(dir, file, data string) error {
	if dir == "" {
		return fmt.Errorf("no such directory for %s", file)
	}
	f, err := OpenFile(dir, file, os.O_WRONLY)
	if err != nil {
		return err
	}
	defer f.Close()
	for i := 0; i < 5; i++ {
		_, err = f.WriteString(data)
		if err == nil {
			return nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return fmt.Errorf("failed to write %q to %s/%s: %w", data, dir, file, err)
	}
	return err
}

// OpenFile opens a cgroupfs file for writing.
func OpenFile(dir, file string, flags int) (*os.File, error) {
	return os.OpenFile(dir+"/"+file, flags, 0)
}

// WriteCgroupProc writes pid into dir/cgroup.procs, retrying on EINVAL since
// a just-forked task in state TASK_NEW can transiently reject the write.
func WriteCgroupProc(dir string, pid int) error {
	if dir == "" {
		return fmt.Errorf("no such directory for %s", CgroupProcesses)
	}
	if pid == -1 {
		return nil
	}
	file, err := OpenFile(dir, CgroupProcesses, os.O_WRONLY)
	if err != nil {
		return fmt.Errorf("failed to write %v: %w", pid, err)
	}
	defer file.Close()

	for i := 0; i < 5; i++ {
		_, err = file.WriteString(strconv.Itoa(pid))
		if err == nil {
			return nil
		}
		if errors.Is(err, unix.EINVAL) {
			time.Sleep(30 * time.Millisecond)
			continue
		}
		return fmt.Errorf("failed to write %v: %w", pid, err)
	}
	return err
}

// Procs reads dir/cgroup.procs and returns the pids currently enrolled.
func Procs(dir string) ([]int, error) {
	data, err := os.ReadFile(dir + "/" + CgroupProcesses)
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// KillAll kills and waits for every process in dir's cgroup, using
// cgroup.kill if the kernel supports it (5.9+), else falling back to
// signalling each pid in cgroup.procs individually (§4.2).
func KillAll(dir string) error {
	if err := WriteFile(dir, "cgroup.kill", "1"); err == nil {
		return waitEmpty(dir)
	}
	pids, err := Procs(dir)
	if err != nil {
		return err
	}
	for _, pid := range pids {
		_ = unix.Kill(pid, unix.SIGKILL)
	}
	return waitEmpty(dir)
}

func waitEmpty(dir string) error {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		pids, err := Procs(dir)
		if err != nil {
			return err
		}
		if len(pids) == 0 {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("cgroup %s still has live members after kill", dir)
}

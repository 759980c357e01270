// Package fs2 manages a single container's leaf under the cgroup-v2
// unified hierarchy: enabling controllers on the parent, creating the leaf,
// writing memory.max/cpu.max/pids.max, and enrolling pids. Adapted from the
// teacher's libcontainer/cgroups/fs2 package, which left Apply as a no-op
// and CreateCgroupPath half-written; this fills both in per §4.2.
package fs2

import (
	"fmt"
	"os"
	"strings"

	"github.com/mini-docker/mini-docker/cgroups"
)

const UnifiedMountpoint = "/sys/fs/cgroup"

// Manager drives a single cgroup-v2 leaf directory.
type Manager struct {
	resources *cgroups.Resources
	// dirPath is "/sys/fs/cgroup/mini-docker/<id>" unless
	// configs.Cgroup.Path supplies another absolute path; rootless mode
	// uses the same layout.
	dirPath string
	// rootless downgrades controller-write failures to warnings per §4.2/§7.
	rootless bool
	// controllers is the content of dirPath's parent's cgroup.controllers.
	controllers map[string]struct{}
}

// NewManager creates a manager for the cgroup-v2 leaf at dirPath. dirPath
// must already be an absolute path under UnifiedMountpoint; callers derive
// it from the container id before calling this (see cgroups/manager.New).
func NewManager(resources *cgroups.Resources, dirPath string, rootless bool) (*Manager, error) {
	if !strings.HasPrefix(dirPath, UnifiedMountpoint) {
		return nil, fmt.Errorf("invalid cgroup path %s", dirPath)
	}
	return &Manager{resources: resources, dirPath: dirPath, rootless: rootless}, nil
}

func (m *Manager) Path() string { return m.dirPath }

// Apply ensures the controller subtree is enabled, creates the leaf
// directory, writes resource limits, and enrolls pid.
func (m *Manager) Apply(pid int) error {
	if err := enableControllers(parentOf(m.dirPath)); err != nil {
		if !m.rootless {
			return err
		}
	}
	if err := os.MkdirAll(m.dirPath, 0o755); err != nil {
		return fmt.Errorf("create cgroup leaf %s: %w", m.dirPath, err)
	}
	if err := m.Set(m.resources); err != nil {
		if !m.rootless || anyResourceExplicit(m.resources) {
			return err
		}
	}
	if err := cgroups.WriteCgroupProc(m.dirPath, pid); err != nil {
		return err
	}
	return nil
}

// Set writes memory.max, cpu.max, and pids.max from r. A nil field in r
// writes "max" (unbounded), matching §4.2's contract exactly.
func (m *Manager) Set(r *cgroups.Resources) error {
	if r == nil {
		return nil
	}
	if err := m.writeMemory(r.MemoryBytes); err != nil {
		return err
	}
	if err := m.writeCPU(r.CPUPercent); err != nil {
		return err
	}
	if err := m.writePids(r.PidsLimit); err != nil {
		return err
	}
	return nil
}

func (m *Manager) writeMemory(bytes *int64) error {
	val := "max"
	if bytes != nil {
		val = fmt.Sprintf("%d", *bytes)
	}
	return cgroups.WriteFile(m.dirPath, "memory.max", val)
}

func (m *Manager) writeCPU(percent *int64) error {
	val := "max 100000"
	if percent != nil && *percent > 0 && *percent < 100 {
		quota := *percent * 1000
		val = fmt.Sprintf("%d 100000", quota)
	}
	return cgroups.WriteFile(m.dirPath, "cpu.max", val)
}

func (m *Manager) writePids(limit *int64) error {
	val := "max"
	if limit != nil {
		val = fmt.Sprintf("%d", *limit)
	}
	return cgroups.WriteFile(m.dirPath, "pids.max", val)
}

// Destroy kills any remaining members and rmdir's the leaf (§4.2, §3
// invariant 2). Idempotent: a missing directory is not an error.
func (m *Manager) Destroy() error {
	if _, err := os.Stat(m.dirPath); os.IsNotExist(err) {
		return nil
	}
	if err := cgroups.KillAll(m.dirPath); err != nil {
		return err
	}
	if err := os.Remove(m.dirPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rmdir cgroup leaf %s: %w", m.dirPath, err)
	}
	return nil
}

func anyResourceExplicit(r *cgroups.Resources) bool {
	return r != nil && (r.MemoryBytes != nil || r.CPUPercent != nil || r.PidsLimit != nil)
}

func parentOf(dirPath string) string {
	i := strings.LastIndex(dirPath, "/")
	if i <= 0 {
		return UnifiedMountpoint
	}
	return dirPath[:i]
}

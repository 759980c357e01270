// Package manager selects a cgroup driver for a container: systemd-managed
// scopes when the config asks for them (an error if the host is not
// running systemd), the cgroup-v2 unified hierarchy otherwise, and the
// legacy v1 hierarchy as a last resort. Adapted from the teacher's libcontainer/cgroups/manager
// package of the same name.
package manager

import (
	"fmt"

	"github.com/mini-docker/mini-docker/cgroups"
	"github.com/mini-docker/mini-docker/cgroups/fs"
	"github.com/mini-docker/mini-docker/cgroups/fs2"
	"github.com/mini-docker/mini-docker/cgroups/systemd"
	"github.com/mini-docker/mini-docker/configs"
)

// New returns a cgroups.Manager for c. The selection order mirrors the
// teacher's: systemd driver when c.Systemd is set (an error if the host is
// not running systemd), else fs2 under cgroup-v2 unified mode, else the
// legacy fs (v1) driver. c.Rootless is passed to the chosen driver so
// controller-write failures are not fatal; c.OwnerUID is not consulted.
func New(c *configs.Cgroup) (cgroups.Manager, error) {
	resources := toResources(c.Resources)

	if c.Systemd {
		if !systemd.IsRunningSystemd() {
			return nil, fmt.Errorf("config requested systemd cgroup driver, but systemd is not running")
		}
		sc := &systemd.Config{Name: c.Name, ScopePrefix: c.ScopePrefix, Rootless: c.Rootless}
		if cgroups.IsCgroup2UnifiedMode() {
			um, err := systemd.NewUnifiedManager(sc, c.Path)
			if err != nil {
				return nil, err
			}
			return &resourceSettingManager{um, resources}, nil
		}
		paths, err := legacyPaths(c)
		if err != nil {
			return nil, err
		}
		lm, err := systemd.NewLegacyManager(sc, paths)
		if err != nil {
			return nil, err
		}
		return &resourceSettingManager{lm, resources}, nil
	}

	if cgroups.IsCgroup2UnifiedMode() {
		path := c.Path
		if path == "" {
			path = fs2.UnifiedMountpoint + "/mini-docker/" + c.Name
		}
		m, err := fs2.NewManager(resources, path, c.Rootless)
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	paths, err := legacyPaths(c)
	if err != nil {
		return nil, err
	}
	return fs.NewManager(resources, paths, c.Rootless)
}

// resourceSettingManager wraps a systemd-backed manager so NewManager's
// stored resources (computed up front, before Apply is ever called) get
// applied on the first Apply call too, not just on later Set calls.
type resourceSettingManager struct {
	inner     cgroups.Manager
	resources *cgroups.Resources
}

func (m *resourceSettingManager) Apply(pid int) error {
	if err := m.inner.Apply(pid); err != nil {
		return err
	}
	if m.resources != nil {
		return m.inner.Set(m.resources)
	}
	return nil
}

func (m *resourceSettingManager) Set(r *cgroups.Resources) error { return m.inner.Set(r) }
func (m *resourceSettingManager) Path() string                   { return m.inner.Path() }
func (m *resourceSettingManager) Destroy() error                 { return m.inner.Destroy() }

func toResources(r *configs.Resources) *cgroups.Resources {
	if r == nil {
		return nil
	}
	return &cgroups.Resources{
		MemoryBytes: r.MemoryBytes,
		CPUPercent:  r.CPUPercent,
		PidsLimit:   r.PidsLimit,
	}
}

// legacyPaths derives the per-subsystem v1 cgroupfs paths from c.Name under
// /sys/fs/cgroup/<subsystem>/mini-docker/<name>, the one layout this package
// supports (no cgroup-namespace nesting, no joining an inherited path).
func legacyPaths(c *configs.Cgroup) (map[string]string, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("cgroup config has no name")
	}
	subsystems := []string{"memory", "cpu", "pids", "name=systemd"}
	paths := make(map[string]string, len(subsystems))
	for _, s := range subsystems {
		paths[s] = fmt.Sprintf("/sys/fs/cgroup/%s/mini-docker/%s", s, c.Name)
	}
	return paths, nil
}

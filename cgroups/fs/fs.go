// Package fs manages cgroup-v1 subsystems. Adapted from the teacher's
// libcontainer/cgroups/fs package: the teacher listed the v1 subsystems
// (cpuset, devices, memory, cpu, ...) as commented-out stubs and only
// implemented the named-cgroup joiner. This spec only needs memory, cpu,
// and pids, so those three are filled in alongside the named joiner; the
// rest stay commented exactly as the teacher left them, since a host that
// exposes cgroup v2 (the common case this spec targets) never exercises
// this package at all — see cgroups/manager.New.
package fs

import (
	"sync"

	"github.com/mini-docker/mini-docker/cgroups"
)

type Manager struct {
	mu       sync.Mutex
	paths    map[string]string
	rootless bool
	stored   *cgroups.Resources
}

var subsystems = []subsystem{
	// &CpusetGroup{},
	// &DevicesGroup{},
	&MemoryGroup{},
	&CpuGroup{},
	&PidsGroup{},
	// &CpuacctGroup{},
	// &BlkioGroup{},
	// &HugetlbGroup{},
	// &NetClsGroup{},
	// &NetPrioGroup{},
	// &PerfEventGroup{},
	// &FreezerGroup{},
	// &RdmaGroup{},
	&NameGroup{GroupName: "name=systemd", Join: true},
}

func init() {
	if cgroups.IsCgroup2HybridMode() {
		subsystems = append(subsystems, &NameGroup{GroupName: "", Join: true})
	}
}

type subsystem interface {
	// Name returns the name of the subsystem (the cgroupfs mount name, or
	// "" for the v2-hybrid joiner).
	Name() string
	// Apply creates/joins the subsystem's cgroup, adding pid to it.
	Apply(path string, r *cgroups.Resources, pid int) error
}

func NewManager(resources *cgroups.Resources, paths map[string]string, rootless bool) (*Manager, error) {
	return &Manager{paths: paths, rootless: rootless, stored: resources}, nil
}

func isIgnorableError(rootless bool, err error) bool {
	if !rootless || err == nil {
		return false
	}
	return true
}

func (m *Manager) Apply(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sys := range subsystems {
		name := sys.Name()
		p, ok := m.paths[name]
		if !ok {
			continue
		}
		if err := sys.Apply(p, m.resources(), pid); err != nil {
			if isIgnorableError(m.rootless, err) {
				delete(m.paths, name)
				continue
			}
			return err
		}
	}
	return nil
}

func (m *Manager) Set(r *cgroups.Resources) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = r
	for _, sys := range subsystems {
		p, ok := m.paths[sys.Name()]
		if !ok {
			continue
		}
		if err := sys.Apply(p, r, -1); err != nil && !isIgnorableError(m.rootless, err) {
			return err
		}
	}
	return nil
}

func (m *Manager) Path() string { return m.paths["memory"] }

func (m *Manager) Destroy() error {
	for _, p := range m.paths {
		if p == "" {
			continue
		}
		if err := cgroups.KillAll(p); err != nil && !m.rootless {
			return err
		}
	}
	return nil
}

func (m *Manager) resources() *cgroups.Resources { return m.stored }

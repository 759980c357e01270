package systemd

import (
	"fmt"
	"os"

	systemdDbus "github.com/coreos/go-systemd/v22/dbus"

	"github.com/mini-docker/mini-docker/cgroups"
	"github.com/mini-docker/mini-docker/cgroups/fs"
)

// LegacyManager drives the hybrid/v1 hierarchy through a systemd transient
// scope for the "name=systemd" named subsystem, then reuses cgroups/fs for
// the resource-bearing subsystems (memory, cpu, pids), matching the
// teacher's LegacyManager split between systemd accounting and fs writes.
type LegacyManager struct {
	name     string
	unitName string
	rootless bool
	cm       *dbusConnManager
	paths    map[string]string
	fs       *fs.Manager
}

func NewLegacyManager(config *Config, paths map[string]string) (*LegacyManager, error) {
	return &LegacyManager{
		name:     config.Name,
		unitName: config.unitName(),
		rootless: config.Rootless,
		cm:       newDbusConnManager(config.Rootless),
		paths:    paths,
	}, nil
}

func (m *LegacyManager) Path() string {
	if p, ok := m.paths["memory"]; ok {
		return p
	}
	for _, p := range m.paths {
		return p
	}
	return ""
}

func (m *LegacyManager) Apply(pid int) error {
	properties := []systemdDbus.Property{
		systemdDbus.PropDescription("mini-docker container " + m.name),
		newProp("DefaultDependencies", false),
		newProp("MemoryAccounting", true),
		newProp("CPUAccounting", true),
	}
	if pid != -1 {
		properties = append(properties, systemdDbus.PropPids(uint32(pid)))
	}
	if err := startUnit(m.cm, m.unitName, properties); err != nil {
		return fmt.Errorf("start transient scope %s: %w", m.unitName, err)
	}
	fm, err := fs.NewManager(nil, m.paths, m.rootless)
	if err != nil {
		return err
	}
	m.fs = fm
	return fm.Apply(pid)
}

func (m *LegacyManager) Set(r *cgroups.Resources) error {
	if m.fs == nil {
		fm, err := fs.NewManager(nil, m.paths, m.rootless)
		if err != nil {
			return err
		}
		m.fs = fm
	}
	return m.fs.Set(r)
}

func (m *LegacyManager) Destroy() error {
	if err := stopUnit(m.cm, m.unitName); err != nil {
		return err
	}
	for _, p := range m.paths {
		_ = os.RemoveAll(p)
	}
	return nil
}

package systemd

import (
	"context"
	"fmt"
	"os"
	"strings"

	systemdDbus "github.com/coreos/go-systemd/v22/dbus"

	"github.com/mini-docker/mini-docker/cgroups"
	"github.com/mini-docker/mini-docker/cgroups/fs2"
)

// UnifiedManager drives a cgroup-v2 leaf through a systemd transient scope
// rather than mkdir'ing it directly, then delegates resource writes to
// fs2.Manager once the scope exists. The teacher's UnifiedManager.Apply was
// a bare "not implemented" stub; this fills it in per §4.2.
type UnifiedManager struct {
	name     string
	unitName string
	dirPath  string
	rootless bool
	cm       *dbusConnManager
	fs2      *fs2.Manager
}

func NewUnifiedManager(config *Config, dirPath string) (*UnifiedManager, error) {
	if dirPath == "" {
		dirPath = fmt.Sprintf("%s/%s.slice/%s", fs2.UnifiedMountpoint, "mini-docker", config.unitName())
	}
	return &UnifiedManager{
		name:     config.Name,
		unitName: config.unitName(),
		dirPath:  dirPath,
		rootless: config.Rootless,
		cm:       newDbusConnManager(config.Rootless),
	}, nil
}

func (m *UnifiedManager) Path() string { return m.dirPath }

func (m *UnifiedManager) Apply(pid int) error {
	properties := []systemdDbus.Property{
		systemdDbus.PropDescription("mini-docker container " + m.name),
		newProp("DefaultDependencies", false),
		newProp("Delegate", true),
		newProp("MemoryAccounting", true),
		newProp("CPUAccounting", true),
		newProp("TasksAccounting", true),
	}
	if pid != -1 {
		properties = append(properties, systemdDbus.PropPids(uint32(pid)))
	}
	if err := startUnit(m.cm, m.unitName, properties); err != nil {
		return fmt.Errorf("start transient scope %s: %w", m.unitName, err)
	}
	path, err := m.scopeCgroupPath()
	if err != nil {
		return err
	}
	m.dirPath = path
	fm, err := fs2.NewManager(nil, m.dirPath, m.rootless)
	if err != nil {
		return err
	}
	m.fs2 = fm
	if pid != -1 {
		return cgroups.WriteCgroupProc(m.dirPath, pid)
	}
	return nil
}

func (m *UnifiedManager) Set(r *cgroups.Resources) error {
	if m.fs2 == nil {
		fm, err := fs2.NewManager(nil, m.dirPath, m.rootless)
		if err != nil {
			return err
		}
		m.fs2 = fm
	}
	return m.fs2.Set(r)
}

func (m *UnifiedManager) Destroy() error {
	if err := stopUnit(m.cm, m.unitName); err != nil {
		return err
	}
	if _, err := os.Stat(m.dirPath); err == nil {
		return os.RemoveAll(m.dirPath)
	}
	return nil
}

// scopeCgroupPath asks systemd which cgroup path it placed the scope in,
// since systemd may nest it under a slice we didn't choose (e.g. rootless
// user sessions nest under user@<uid>.service).
func (m *UnifiedManager) scopeCgroupPath() (path string, err error) {
	var cgroupPath string
	err = m.cm.retryOnDisconnect(func(c *systemdDbus.Conn) error {
		props, gerr := c.GetUnitTypePropertiesContext(context.TODO(), m.unitName, "Scope")
		if gerr != nil {
			return gerr
		}
		cp, ok := props["ControlGroup"].(string)
		if !ok || cp == "" {
			return fmt.Errorf("systemd did not report a ControlGroup for %s", m.unitName)
		}
		cgroupPath = cp
		return nil
	})
	if err != nil {
		return m.dirPath, nil // fall back to our computed guess, rootless hosts may lack introspection rights
	}
	return strings.TrimRight(fs2.UnifiedMountpoint, "/") + cgroupPath, nil
}

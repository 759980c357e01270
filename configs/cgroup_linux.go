package configs

import (
	systemdDbus "github.com/coreos/go-systemd/v22/dbus"
)

// Cgroup carries the cgroup-v2 leaf path and resource limits for a single
// container (§4.2), adapted from the teacher's configs.Cgroup.
type Cgroup struct {
	// Name is the cgroup leaf name, normally the container id.
	Name string `json:"name,omitempty"`

	// Parent is kept with the config but not read by cgroups/manager.New,
	// which always creates the leaf under mini-docker/.
	Parent string `json:"parent,omitempty"`

	// Path, if set, is the absolute cgroupfs path of the leaf (under
	// /sys/fs/cgroup) that the cgroup-v2 drivers use instead of deriving
	// it from Name; the v1 drivers always derive their paths from Name.
	Path string `json:"path"`

	// ScopePrefix is a prefix for the generated systemd scope name.
	ScopePrefix string `json:"scope_prefix"`

	// Resources are the limits to apply; see Resources below.
	Resources *Resources `json:"resources"`

	// Systemd selects the systemd-managed cgroup driver.
	Systemd bool `json:"systemd"`

	// SystemdProps are extra dbus properties; cgroups/manager.New does not
	// pass them to systemd.
	SystemdProps []systemdDbus.Property `json:"-"`

	// Rootless tells the manager to treat controller-write failures as
	// warnings rather than fatal errors, per §4.2 and §7's resource.cgroup.
	Rootless bool `json:"rootless"`

	// OwnerUID records the owner of a delegated rootless subtree; no
	// driver reads it, and the cgroup directory is never chown'd to it.
	OwnerUID *int `json:"owner_uid,omitempty"`
}

// Resources is the set of cgroup-v2 controller limits §4.2 defines.
type Resources struct {
	// MemoryBytes is memory.max; nil means "max".
	MemoryBytes *int64 `json:"memory_bytes,omitempty"`

	// CPUPercent is cpu.max's quota expressed as a percentage of one CPU;
	// nil means "max". 100 means "max 100000" (unlimited, full core).
	CPUPercent *int64 `json:"cpu_percent,omitempty"`

	// PidsLimit is pids.max; nil means "max".
	PidsLimit *int64 `json:"pids_max,omitempty"`
}

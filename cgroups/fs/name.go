package fs

import "github.com/mini-docker/mini-docker/cgroups"

// NameGroup is the teacher's named-cgroup joiner, kept verbatim: it only
// joins an existing named hierarchy (e.g. "name=systemd") and never writes
// resource limits.
type NameGroup struct {
	GroupName string
	Join      bool
}

func (s *NameGroup) Name() string { return s.GroupName }

func (s *NameGroup) Apply(path string, _ *cgroups.Resources, pid int) error {
	if s.Join {
		_ = apply(path, pid)
	}
	return nil
}

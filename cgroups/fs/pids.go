package fs

import (
	"fmt"

	"github.com/mini-docker/mini-docker/cgroups"
)

// PidsGroup writes pids.max under the v1 pids subsystem.
type PidsGroup struct{}

func (s *PidsGroup) Name() string { return "pids" }

func (s *PidsGroup) Apply(path string, r *cgroups.Resources, pid int) error {
	if err := apply(path, pid); err != nil {
		return err
	}
	val := "max"
	if r != nil && r.PidsLimit != nil {
		val = fmt.Sprintf("%d", *r.PidsLimit)
	}
	return cgroups.WriteFile(path, "pids.max", val)
}

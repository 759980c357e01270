package fs

import (
	"fmt"

	"github.com/mini-docker/mini-docker/cgroups"
)

// MemoryGroup writes memory.limit_in_bytes under the v1 memory subsystem.
// The teacher left this commented out as &MemoryGroup{}; this fills it in
// with the v1 equivalent of §4.2's memory contract.
type MemoryGroup struct{}

func (s *MemoryGroup) Name() string { return "memory" }

func (s *MemoryGroup) Apply(path string, r *cgroups.Resources, pid int) error {
	if err := apply(path, pid); err != nil {
		return err
	}
	if r == nil || r.MemoryBytes == nil {
		return nil
	}
	return cgroups.WriteFile(path, "memory.limit_in_bytes", fmt.Sprintf("%d", *r.MemoryBytes))
}

package fs

import (
	"fmt"

	"github.com/mini-docker/mini-docker/cgroups"
)

// CpuGroup writes cpu.cfs_quota_us/cpu.cfs_period_us under the v1 cpu
// subsystem, the v1 equivalent of §4.2's cpu.max contract.
type CpuGroup struct{}

func (s *CpuGroup) Name() string { return "cpu" }

func (s *CpuGroup) Apply(path string, r *cgroups.Resources, pid int) error {
	if err := apply(path, pid); err != nil {
		return err
	}
	if r == nil || r.CPUPercent == nil {
		return nil
	}
	const period = 100000
	// -1 is v1's "no limit", the counterpart of cpu.max's "max".
	quota := int64(-1)
	if p := *r.CPUPercent; p > 0 && p < 100 {
		quota = p * 1000
	}
	if err := cgroups.WriteFile(path, "cpu.cfs_period_us", fmt.Sprintf("%d", period)); err != nil {
		return err
	}
	return cgroups.WriteFile(path, "cpu.cfs_quota_us", fmt.Sprintf("%d", quota))
}

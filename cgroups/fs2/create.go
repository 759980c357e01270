package fs2

import (
	"fmt"
	"os"
	"strings"

	"github.com/mini-docker/mini-docker/cgroups"
)

// enableControllers walks from UnifiedMountpoint down to dir, writing
// "+cpu +memory +pids" into each ancestor's cgroup.subtree_control so the
// leaf directory can actually use those controllers, per §4.2: "Before
// creating the leaf it ensures cgroup.subtree_control of the parent enables
// +cpu +memory +pids."
func enableControllers(dir string) error {
	available, err := supportedControllers()
	if err != nil {
		return fmt.Errorf("read cgroup.controllers: %w", err)
	}
	want := []string{"cpu", "memory", "pids"}
	var enable []string
	for _, c := range want {
		if available[c] {
			enable = append(enable, "+"+c)
		}
	}
	if len(enable) == 0 {
		return nil
	}

	rel := strings.TrimPrefix(dir, UnifiedMountpoint)
	rel = strings.TrimPrefix(rel, "/")
	cur := UnifiedMountpoint
	for _, seg := range strings.Split(rel, "/") {
		if err := os.MkdirAll(cur, 0o755); err != nil {
			return err
		}
		if err := cgroups.WriteFile(cur, "cgroup.subtree_control", strings.Join(enable, " ")); err != nil {
			return fmt.Errorf("enable controllers on %s: %w", cur, err)
		}
		if seg == "" {
			break
		}
		cur = cur + "/" + seg
	}
	// The loop stops before dir itself, the leaf's parent.
	if rel != "" {
		if err := os.MkdirAll(cur, 0o755); err != nil {
			return err
		}
		if err := cgroups.WriteFile(cur, "cgroup.subtree_control", strings.Join(enable, " ")); err != nil {
			return fmt.Errorf("enable controllers on %s: %w", cur, err)
		}
	}
	return nil
}

func supportedControllers() (map[string]bool, error) {
	content, err := cgroups.ReadFile(UnifiedMountpoint, "cgroup.controllers")
	if err != nil {
		return nil, err
	}
	m := make(map[string]bool)
	for _, c := range strings.Fields(content) {
		m[c] = true
	}
	return m, nil
}

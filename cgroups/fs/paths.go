package fs

import (
	"os"

	"github.com/mini-docker/mini-docker/cgroups"
)

// apply creates path if needed and enrolls pid into it, kept verbatim from
// the teacher's libcontainer/cgroups/fs/paths.go.
func apply(path string, pid int) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	return cgroups.WriteCgroupProc(path, pid)
}

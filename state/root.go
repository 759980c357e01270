// Package state implements the on-disk store described in §4.7: per-
// container and per-pod directories under a root selected by effective
// uid, atomic write-temp-then-rename JSON, and reconciliation of a
// stale "running" status against /proc/<pid> on every read. The atomic
// write and advisory-flock idioms are the same ones used by
// network.LeasePool and network's refcount file — this package is the
// general form of that pattern applied to containers and pods.
package state

import (
	"os"
	"path/filepath"
)

// Root returns the state-store root: $MINI_DOCKER_HOST if set, else
// /var/lib/mini-docker for euid 0, else $XDG_DATA_HOME/mini-docker
// (default ~/.local/share/mini-docker), per §4.7 and §6's environment
// variable table.
func Root() string {
	if h := os.Getenv("MINI_DOCKER_HOST"); h != "" {
		return h
	}
	if os.Geteuid() == 0 {
		return "/var/lib/mini-docker"
	}
	if x := os.Getenv("XDG_DATA_HOME"); x != "" {
		return filepath.Join(x, "mini-docker")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}
	return filepath.Join(home, ".local", "share", "mini-docker")
}

// Store is a handle on one state-store root.
type Store struct {
	Root string
}

// NewStore opens the default root, creating the directory skeleton if
// it doesn't exist yet.
func NewStore() (*Store, error) {
	return NewStoreAt(Root())
}

// NewStoreAt opens root explicitly (tests use this to point at a temp
// directory instead of the real filesystem location).
func NewStoreAt(root string) (*Store, error) {
	s := &Store{Root: root}
	for _, dir := range []string{
		s.containersDir(), s.podsDir(), s.imagesDir(), s.networkDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) containersDir() string { return filepath.Join(s.Root, "containers") }
func (s *Store) podsDir() string       { return filepath.Join(s.Root, "pods") }
func (s *Store) imagesDir() string     { return filepath.Join(s.Root, "images") }
func (s *Store) networkDir() string    { return filepath.Join(s.Root, "network") }

// ContainerDir returns containers/<id>.
func (s *Store) ContainerDir(id string) string { return filepath.Join(s.containersDir(), id) }

// PodDir returns pods/<id>.
func (s *Store) PodDir(id string) string { return filepath.Join(s.podsDir(), id) }

// ImagesDir exposes images/ for the image package.
func (s *Store) ImagesDir() string { return s.imagesDir() }

// NetworkLeasesPath returns network/leases.json, the file network.LeasePool
// persists to.
func (s *Store) NetworkLeasesPath() string { return filepath.Join(s.networkDir(), "leases.json") }

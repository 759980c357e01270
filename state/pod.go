package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mini-docker/mini-docker/errkind"
)

// PodState mirrors pod.json's fields (§6): an id, a name, its member
// container ids, and which namespace kinds it pins.
type PodState struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Members          []string `json:"members"`
	SharedNamespaces []string `json:"shared_namespaces"`
}

func (s *Store) podJSONPath(id string) string { return filepath.Join(s.PodDir(id), "pod.json") }

// PodNamespacePath returns pods/<id>/ns/<kind>, the bind-mounted
// namespace handle file for kind ∈ {net, ipc, uts}, per §4.7's layout
// and §4.8's "pod create" description.
func (s *Store) PodNamespacePath(id, kind string) string {
	return filepath.Join(s.PodDir(id), "ns", kind)
}

// CreatePod makes pods/<id>/ns/ and writes the initial pod.json with no
// members yet.
func (s *Store) CreatePod(st *PodState) error {
	nsDir := filepath.Join(s.PodDir(st.ID), "ns")
	if err := os.MkdirAll(nsDir, 0o755); err != nil {
		return err
	}
	return s.SavePod(st)
}

// SavePod writes pod.json atomically.
func (s *Store) SavePod(st *PodState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	path := s.podJSONPath(st.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadPod reads pod.json.
func (s *Store) LoadPod(id string) (*PodState, error) {
	data, err := os.ReadFile(s.podJSONPath(id))
	if err != nil {
		return nil, err
	}
	var st PodState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// RemovePod deletes pods/<id>/ entirely, unmounting its pinned
// namespace handles first; callers must have already confirmed no
// member is running, or passed --force and torn them down, per §4.8's
// "pod rm" description.
func (s *Store) RemovePod(id string, unmount func(path string) error) error {
	nsDir := filepath.Join(s.PodDir(id), "ns")
	for _, kind := range []string{"net", "ipc", "uts"} {
		path := filepath.Join(nsDir, kind)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := unmount(path); err != nil {
			return err
		}
	}
	return os.RemoveAll(s.PodDir(id))
}

// ListPodIDs returns every pod id currently on disk.
func (s *Store) ListPodIDs() ([]string, error) {
	entries, err := os.ReadDir(s.podsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// ResolvePod maps a user-supplied id, name, or unique id prefix (≥3
// chars) to the canonical pod id, mirroring Resolve's rules for
// containers.
func (s *Store) ResolvePod(ref string) (string, error) {
	ids, err := s.ListPodIDs()
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		if id == ref {
			return id, nil
		}
	}
	var matches []string
	for _, id := range ids {
		if st, err := s.LoadPod(id); err == nil && st.Name == ref {
			matches = append(matches, id)
			continue
		}
		if len(ref) >= 3 && len(ref) <= len(id) && id[:len(ref)] == ref {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", errkind.New(errkind.ConfigInvalid, fmt.Errorf("no pod matches %q", ref))
	default:
		return "", errkind.New(errkind.StateConflict, fmt.Errorf("%q matches %d pods", ref, len(matches)))
	}
}

// Package image implements the immutable name:tag -> rootfs registry
// of §3's Image model and §4.9's supplement: a flat directory of JSON
// records, one per tag, consulted by `run` when its image argument
// names a tag rather than a bare rootfs path.
package image

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/mini-docker/mini-docker/errkind"
)

// Image is one registered name:tag entry.
type Image struct {
	Tag        string   `json:"tag"`
	RootfsPath string   `json:"rootfs_path"`
	DefaultCmd []string `json:"default_cmd,omitempty"`
	DefaultEnv []string `json:"default_env,omitempty"`
}

// Store persists images under dir (images/ in the state-store root).
type Store struct {
	Dir string
}

func NewStore(dir string) *Store { return &Store{Dir: dir} }

func (s *Store) path(tag string) string {
	return filepath.Join(s.Dir, sanitizeTag(tag)+".json")
}

// sanitizeTag turns "name:tag" into a filesystem-safe "name_tag", the
// <name_tag> naming convention §4.7's layout table names directly.
func sanitizeTag(tag string) string {
	return strings.ReplaceAll(tag, ":", "_")
}

// Register writes img, overwriting any previous record for the same
// tag (rebuilding an image retags it; images are immutable content but
// the tag->rootfs mapping itself can be repointed, exactly as `docker
// build -t` does).
func (s *Store) Register(img *Image) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(img, "", "  ")
	if err != nil {
		return err
	}
	path := s.path(img.Tag)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Resolve loads the image registered under tag.
func (s *Store) Resolve(tag string) (*Image, error) {
	data, err := os.ReadFile(s.path(tag))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errkind.New(errkind.ConfigInvalid, fmt.Errorf("no image named %q", tag))
		}
		return nil, err
	}
	var img Image
	if err := json.Unmarshal(data, &img); err != nil {
		return nil, err
	}
	return &img, nil
}

// Remove deletes tag's registration (the rootfs directory it points at
// is left alone; `rmi` only removes the tag, not the content on disk,
// matching original_source's image_builder.py behaviour of never
// deleting a build's output directory on retag/rmi).
func (s *Store) Remove(tag string) error {
	err := os.Remove(s.path(tag))
	if os.IsNotExist(err) {
		return errkind.New(errkind.ConfigInvalid, fmt.Errorf("no image named %q", tag))
	}
	return err
}

// List returns every registered tag.
func (s *Store) List() ([]*Image, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var images []*Image
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			continue
		}
		var img Image
		if err := json.Unmarshal(data, &img); err != nil {
			continue
		}
		images = append(images, &img)
	}
	return images, nil
}

// ConfigFromOCI adapts an OCI image config subset (§4.9: only the
// entrypoint/cmd/env fields this spec's launcher actually consumes)
// into the DefaultCmd/DefaultEnv pair stored alongside the rootfs path.
func ConfigFromOCI(cfg *v1.ImageConfig) (cmd, env []string) {
	if cfg == nil {
		return nil, nil
	}
	argv := append([]string{}, cfg.Entrypoint...)
	argv = append(argv, cfg.Cmd...)
	return argv, append([]string{}, cfg.Env...)
}

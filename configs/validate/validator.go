// Package validate checks a configs.Config for the invariants §3 and §4
// require before the launcher is allowed to touch it, adapted from the
// teacher's configs/validate package (which only checked rootfs).
package validate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mini-docker/mini-docker/configs"
)

type check func(config *configs.Config) error

func Validate(config *configs.Config) error {
	checks := []check{
		rootfs,
		hostname,
		argv,
		mounts,
	}
	for _, c := range checks {
		if err := c(config); err != nil {
			return err
		}
	}
	return nil
}

// rootfs validates that the rootfs is an absolute, symlink-free path.
func rootfs(config *configs.Config) error {
	if _, err := os.Stat(config.Rootfs); err != nil {
		return fmt.Errorf("invalid rootfs: %w", err)
	}
	cleaned, err := filepath.Abs(config.Rootfs)
	if err != nil {
		return fmt.Errorf("invalid rootfs: %w", err)
	}
	if cleaned, err = filepath.EvalSymlinks(cleaned); err != nil {
		return fmt.Errorf("invalid rootfs: %w", err)
	}
	if filepath.Clean(config.Rootfs) != cleaned {
		return errors.New("invalid rootfs: not an absolute path, or a symlink")
	}
	return nil
}

func hostname(config *configs.Config) error {
	if config.Hostname != "" && !config.Namespaces.Contains(configs.NEWUTS) {
		return errors.New("unable to set hostname without a private UTS namespace")
	}
	return nil
}

func argv(config *configs.Config) error {
	if len(config.Argv) == 0 {
		return errors.New("argv must not be empty")
	}
	return nil
}

// mounts validates that every requested bind mount's host path exists,
// matching §4.3's fs.bind-missing error.
func mounts(config *configs.Config) error {
	for _, m := range config.Mounts {
		if _, err := os.Stat(m.HostPath); err != nil {
			return fmt.Errorf("fs.bind-missing: host path %s: %w", m.HostPath, err)
		}
	}
	return nil
}

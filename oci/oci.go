// Package oci parses an OCI runtime bundle's config.json and converts the
// documented field subset into a configs.Config. Adapted and extended from
// the teacher's libcontainer/specconv.CreateLibcontainerConfig, which only
// carried Rootfs/NoPivotRoot/Readonlyfs/Hostname/Labels; this fills in the
// namespaces/resources/mounts/user fields the teacher's version dropped.
package oci

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"

	"github.com/mini-docker/mini-docker/configs"
)

// CreateOpts mirrors the teacher's specconv.CreateOpts.
type CreateOpts struct {
	CgroupName       string
	NoNewKeyring     bool
	NoPivotRoot      bool
	Spec             *specs.Spec
	UseSystemdCgroup bool
	Rootless         bool
}

// LoadBundle reads config.json from bundlePath and builds the resulting
// configs.Config, the bundle-consumption entry point named in §6/§4.11.
func LoadBundle(bundlePath string, opts CreateOpts) (*configs.Config, error) {
	data, err := os.ReadFile(filepath.Join(bundlePath, "config.json"))
	if err != nil {
		return nil, fmt.Errorf("read config.json: %w", err)
	}
	var spec specs.Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse config.json: %w", err)
	}
	opts.Spec = &spec
	return ToConfig(bundlePath, &opts)
}

// getwd wraps the getcwd(2) syscall directly, like the teacher's getwd, so
// the returned path is always absolute and clean regardless of $PWD.
func getwd() (string, error) {
	for {
		wd, err := unix.Getwd()
		if err != unix.EINTR { //nolint:errorlint // unix errors are bare
			if err != nil {
				return "", os.NewSyscallError("getwd", err)
			}
			return wd, nil
		}
	}
}

// ToConfig converts opts.Spec, rooted at bundlePath, into a configs.Config.
// Grounded on the teacher's CreateLibcontainerConfig for the Rootfs/
// Readonlyfs/Hostname/Labels fields; namespaces, resources, mounts, and
// user are this spec's additions (§4.11).
func ToConfig(bundlePath string, opts *CreateOpts) (*configs.Config, error) {
	cwd := bundlePath
	if cwd == "" {
		var err error
		cwd, err = getwd()
		if err != nil {
			return nil, err
		}
	}
	spec := opts.Spec
	if spec.Root == nil {
		return nil, errors.New("root must be specified")
	}
	rootfsPath := spec.Root.Path
	if !filepath.IsAbs(rootfsPath) {
		rootfsPath = filepath.Join(cwd, rootfsPath)
	}

	labels := make([]string, 0, len(spec.Annotations))
	for k, v := range spec.Annotations {
		labels = append(labels, k+"="+v)
	}
	labels = append(labels, "bundle="+cwd)

	config := &configs.Config{
		Rootfs:       rootfsPath,
		RootfsMode:   "bind",
		NoPivotRoot:  opts.NoPivotRoot,
		Readonlyfs:   spec.Root.Readonly,
		Hostname:     spec.Hostname,
		Labels:       labels,
		NoNewKeyring: opts.NoNewKeyring,
		Rootless:     opts.Rootless,
		NetMode:      "none",
	}

	if spec.Process != nil {
		config.Argv = append([]string{}, spec.Process.Args...)
		config.Env = append([]string{}, spec.Process.Env...)
		config.Workdir = spec.Process.Cwd
		if spec.Process.User.UID != 0 || spec.Process.User.GID != 0 {
			config.User = configs.User{UID: int(spec.Process.User.UID), GID: int(spec.Process.User.GID)}
		}
	}

	for _, m := range spec.Mounts {
		if m.Type != "" && m.Type != "bind" {
			continue
		}
		ro := false
		for _, o := range m.Options {
			if o == "ro" {
				ro = true
			}
		}
		config.Mounts = append(config.Mounts, configs.Mount{
			HostPath:      m.Source,
			ContainerPath: m.Destination,
			ReadOnly:      ro,
		})
	}

	if spec.Linux != nil {
		for _, ns := range spec.Linux.Namespaces {
			t, ok := namespaceType(ns.Type)
			if !ok {
				continue
			}
			config.Namespaces = append(config.Namespaces, configs.Namespace{Type: t, Path: ns.Path})
		}
		if spec.Linux.Resources != nil {
			config.Cgroups = &configs.Cgroup{
				Name:     opts.CgroupName,
				Systemd:  opts.UseSystemdCgroup,
				Rootless: opts.Rootless,
			}
			r := &configs.Resources{}
			lr := spec.Linux.Resources
			if lr.Memory != nil && lr.Memory.Limit != nil {
				r.MemoryBytes = lr.Memory.Limit
			}
			if lr.CPU != nil && lr.CPU.Quota != nil && lr.CPU.Period != nil && *lr.CPU.Period > 0 {
				pct := (*lr.CPU.Quota * 100) / int64(*lr.CPU.Period)
				r.CPUPercent = &pct
			}
			if lr.Pids != nil {
				r.PidsLimit = &lr.Pids.Limit
			}
			config.Cgroups.Resources = r
		}
	}
	if opts.CgroupName != "" && config.Cgroups == nil {
		config.Cgroups = &configs.Cgroup{Name: opts.CgroupName, Systemd: opts.UseSystemdCgroup, Rootless: opts.Rootless}
	}

	return config, nil
}

func namespaceType(t specs.LinuxNamespaceType) (configs.NamespaceType, bool) {
	switch t {
	case specs.PIDNamespace:
		return configs.NEWPID, true
	case specs.NetworkNamespace:
		return configs.NEWNET, true
	case specs.MountNamespace:
		return configs.NEWNS, true
	case specs.UTSNamespace:
		return configs.NEWUTS, true
	case specs.IPCNamespace:
		return configs.NEWIPC, true
	case specs.UserNamespace:
		return configs.NEWUSER, true
	case specs.CgroupNamespace:
		return configs.NEWCGROUP, true
	default:
		return "", false
	}
}

// Package configs is the in-process representation of a container's
// configuration (§3's Container fields), adapted from the teacher's
// libcontainer/configs package and extended with the fields the teacher
// left out: Resources, Mounts, User, NetMode, and rootless/pod wiring.
package configs

// Config defines configuration options for executing a process inside a
// contained environment.
type Config struct {
	// NoPivotRoot uses MS_MOVE and a chroot instead of pivot_root(2). Set
	// automatically by the rootfs builder when running unprivileged.
	NoPivotRoot bool `json:"no_pivot_root"`

	// Rootfs is the absolute path to the lower (read-only) image root.
	Rootfs string `json:"rootfs"`

	// RootfsMode is "overlay" or "bind", per §4.3.
	RootfsMode string `json:"rootfs_mode"`

	// Readonlyfs remounts the container's rootfs read-only; only explicit
	// bind mounts remain writable.
	Readonlyfs bool `json:"readonlyfs"`

	// Hostname optionally sets the container's UTS hostname.
	Hostname string `json:"hostname"`

	// Argv is the command and arguments to execve as PID 1.
	Argv []string `json:"argv"`

	// Env is the ordered KEY=VALUE environment passed to the init process.
	Env []string `json:"env"`

	// Workdir is the initial working directory inside the container.
	Workdir string `json:"workdir"`

	// User is the numeric uid[:gid] the init process execve's as.
	User User `json:"user"`

	// Cgroups specifies the resource limits and driver for this container.
	Cgroups *Cgroup `json:"cgroups"`

	// Mounts are the user-requested bind volumes (§4.3), applied before
	// pivot_root.
	Mounts []Mount `json:"mounts"`

	// Labels are user-defined metadata (oci.ToConfig fills them); they are
	// not copied into the container's state.
	Labels []string `json:"labels"`

	// NoNewKeyring is carried over from the OCI create options; the
	// launcher never allocates a session keyring, so it has no effect.
	NoNewKeyring bool `json:"no_new_keyring"`

	// Namespaces are the namespaces to create (or join, for Path-bearing
	// entries) when cloning the init process.
	Namespaces Namespaces `json:"namespaces"`

	// NetMode is "none", "bridge", or "pod(<pod_id>)".
	NetMode string `json:"net_mode"`

	// Rootless selects the unprivileged operating mode (§1).
	Rootless bool `json:"rootless"`

	// Capabilities is the allow-list of capabilities to retain; everything
	// else is dropped per §4.5. Empty means use the default allow-list.
	Capabilities []string `json:"capabilities,omitempty"`

	// JoinOnly marks a config built for `exec` (§4.8): the process joins an
	// already-running container's namespaces instead of creating a rootfs
	// and setting a hostname, and is never enrolled in a fresh cgroup.
	JoinOnly bool `json:"join_only,omitempty"`
}

// User is the numeric identity the init process switches to before execve.
type User struct {
	UID int `json:"uid"`
	GID int `json:"gid"`
}

// Mount is a single user-requested bind mount (§4.3).
type Mount struct {
	HostPath      string `json:"host_path"`
	ContainerPath string `json:"container_path"`
	ReadOnly      bool   `json:"read_only"`
}

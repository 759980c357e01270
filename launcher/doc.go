// Package launcher orchestrates a container's two-process launch (§4.6):
// a parent that prepares state/cgroup/network outside any new namespace,
// and a child that becomes the container's PID 1 inside them. The two are
// connected by two pipes and re-exec the mini-docker binary itself against
// /proc/self/exe with a hidden init argument (os.Args[1]), grounded on the re-exec
// pattern used throughout the example corpus (e.g.
// helayoty-cloud-native-in-arabic's docker-like-container.go) in place of
// the teacher's own unimplemented initProcess.start/newParentProcess pair,
// whose single-byte "ready pipe" (github.com/simple_runc/libcontainer/
// process_linux.go's initWaiter) this package generalizes into the
// two-pipe handshake protocol below.
//
// Protocol:
//
//  1. Parent allocates the container's state directory, cgroup manager,
//     and (for bridge/pod mode) network attachment, and opens its log file.
//  2. Parent forks by re-executing itself with that hidden argument and
//     SysProcAttr.Cloneflags set to the namespaces the config creates
//     fresh (CLONE_NEWPID|CLONE_NEWUTS|CLONE_NEWNS|CLONE_NEWIPC, plus
//     CLONE_NEWNET/CLONE_NEWUSER as the mode dictates); namespaces with a
//     Path instead get joined with setns inside the child, never cloned.
//  3. The child blocks reading one byte from sync_parent_to_child.
//  4. The parent writes the child's uid_map/gid_map (rootless only),
//     moves the child's pid into the cgroup, attaches the veth peer to the
//     child's netns and, from the parent side, brings up loopback and sets
//     the peer's address and default route inside that netns, then writes
//     one byte to sync_parent_to_child and blocks reading
//     sync_child_to_parent.
//  5. The child: sethostname, build the rootfs, chdir(workdir), drop
//     capabilities, switch to the requested uid/gid, set NO_NEW_PRIVS,
//     install the seccomp filter, write a zero byte followed by the rootfs
//     mode it actually used to sync_child_to_parent, then execve the
//     target argv.
//  6. The parent, on step 5's signal, marks the container running and
//     either returns (detached) or forwards stdio and waits (foreground).
package launcher
